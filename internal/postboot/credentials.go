// Package postboot implements the one-shot post-bootstrap user setup:
// parse the rendered agent config back into credentials, then run the
// idempotent SQL sequence against the freshly initialized primary.
package postboot

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Credentials is what the post-bootstrap step needs out of the
// rendered agent config. Field names mirror
// internal/patroniconfig.Credentials; the two are kept as separate
// types because they round-trip through YAML rather than sharing Go
// structure (render then reparse recovers the bundle).
type Credentials struct {
	SuperuserName     string
	SuperuserPassword string
	ReplicationName   string
	ReplicationPass   string
	AppUser           string
	AppPassword       string
	AppDatabase       string
}

type patroniConfigFile struct {
	Postgresql struct {
		Authentication struct {
			Replication struct {
				Username string `yaml:"username"`
				Password string `yaml:"password"`
			} `yaml:"replication"`
			Superuser struct {
				Username string `yaml:"username"`
				Password string `yaml:"password"`
			} `yaml:"superuser"`
		} `yaml:"authentication"`
		AppUser struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			Database string `yaml:"database"`
		} `yaml:"app_user"`
	} `yaml:"postgresql"`
}

// MissingFieldError marks a required credential absent from the parsed
// config — a fatal, phase-labeled condition for the caller.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("could not extract %s from agent config", e.Field)
}

// ParseCredentials parses the rendered agent config's YAML and extracts
// the credential bundle. Superuser and replication username/password are
// required; application user fields are optional.
func ParseCredentials(data []byte) (Credentials, error) {
	var doc patroniConfigFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse agent config: %w", err)
	}

	auth := doc.Postgresql.Authentication
	creds := Credentials{
		SuperuserName:     auth.Superuser.Username,
		SuperuserPassword: auth.Superuser.Password,
		ReplicationName:   auth.Replication.Username,
		ReplicationPass:   auth.Replication.Password,
		AppUser:           doc.Postgresql.AppUser.Username,
		AppPassword:       doc.Postgresql.AppUser.Password,
		AppDatabase:       doc.Postgresql.AppUser.Database,
	}

	if creds.ReplicationName == "" {
		return Credentials{}, &MissingFieldError{Field: "replication username"}
	}
	if creds.ReplicationPass == "" {
		return Credentials{}, &MissingFieldError{Field: "replication password"}
	}
	if creds.SuperuserName == "" {
		return Credentials{}, &MissingFieldError{Field: "superuser username"}
	}
	if creds.SuperuserPassword == "" {
		return Credentials{}, &MissingFieldError{Field: "superuser password"}
	}

	return creds, nil
}
