// Package patroniconfig renders the HA agent's YAML configuration from
// environment-derived settings.
package patroniconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"postgres-ha-supervisor/internal/envconfig"
)

// Credentials holds the superuser/replication/application role material
// the rendered config embeds and that the post-bootstrap script later
// reads back out.
type Credentials struct {
	SuperuserName     string
	SuperuserPassword string
	ReplicationName   string
	ReplicationPass   string
	AppUser           string
	AppPassword       string
	AppDatabase       string
}

// Config is the agent supervisor's environment-derived configuration.
type Config struct {
	Scope          string
	Name           string
	ConnectAddress string
	EtcdHosts      string

	TTL          int
	LoopWait     int
	RetryTimeout int

	DataDir  string
	CertsDir string

	Credentials Credentials
}

// ConfigFromEnv reads the configuration from the environment.
// PATRONI_NAME, RAILWAY_PRIVATE_DOMAIN and PATRONI_ETCD3_HOSTS are
// required; everything else has a default.
func ConfigFromEnv(dataDir, certsDir string) (Config, error) {
	name, err := envconfig.Required("PATRONI_NAME")
	if err != nil {
		return Config{}, err
	}
	connectAddress, err := envconfig.Required("RAILWAY_PRIVATE_DOMAIN")
	if err != nil {
		return Config{}, err
	}
	etcdHosts, err := envconfig.Required("PATRONI_ETCD3_HOSTS")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Scope:          envconfig.StringDefault("PATRONI_SCOPE", "railway-pg-ha"),
		Name:           name,
		ConnectAddress: connectAddress,
		EtcdHosts:      etcdHosts,
		TTL:            envconfig.ParseDefault("PATRONI_TTL", 40),
		LoopWait:       envconfig.ParseDefault("PATRONI_LOOP_WAIT", 10),
		RetryTimeout:   envconfig.ParseDefault("PATRONI_RETRY_TIMEOUT", 10),
		DataDir:        dataDir,
		CertsDir:       certsDir,
		Credentials: Credentials{
			SuperuserName:     envconfig.StringDefault("PATRONI_SUPERUSER_USERNAME", "postgres"),
			SuperuserPassword: envconfig.StringDefault("PATRONI_SUPERUSER_PASSWORD", ""),
			ReplicationName:   envconfig.StringDefault("PATRONI_REPLICATION_USERNAME", "replicator"),
			ReplicationPass:   envconfig.StringDefault("PATRONI_REPLICATION_PASSWORD", ""),
			AppUser:           envconfig.StringDefault("POSTGRES_USER", "postgres"),
			AppPassword:       envconfig.StringDefault("POSTGRES_PASSWORD", ""),
			AppDatabase:       envconfig.StringDefault("POSTGRES_DB", "railway"),
		},
	}

	if err := ValidateDCSTiming(cfg.LoopWait, cfg.RetryTimeout, cfg.TTL); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ValidateDCSTiming enforces loop_wait + 2*retry_timeout <= ttl.
func ValidateDCSTiming(loopWait, retryTimeout, ttl int) error {
	if loopWait+2*retryTimeout > ttl {
		return &envconfig.ConfigError{
			Var: "PATRONI_TTL",
			Msg: fmt.Sprintf("loop_wait(%d) + 2*retry_timeout(%d) = %d exceeds ttl(%d)", loopWait, retryTimeout, loopWait+2*retryTimeout, ttl),
		}
	}
	return nil
}

// Render builds the nested document and marshals it with yaml.v3.
func Render(cfg Config) ([]byte, error) {
	c := cfg.Credentials

	doc := map[string]any{
		"scope": cfg.Scope,
		"name":  cfg.Name,
		"restapi": map[string]any{
			"listen":          "0.0.0.0:8008",
			"connect_address": fmt.Sprintf("%s:8008", cfg.ConnectAddress),
		},
		"etcd3": map[string]any{
			"hosts": cfg.EtcdHosts,
		},
		"bootstrap": map[string]any{
			"dcs": map[string]any{
				"ttl":                     cfg.TTL,
				"loop_wait":               cfg.LoopWait,
				"retry_timeout":           cfg.RetryTimeout,
				"maximum_lag_on_failover": 1048576,
				"failsafe_mode":           true,
				"postgresql": map[string]any{
					"use_pg_rewind": true,
					"use_slots":     true,
					"parameters": map[string]any{
						"wal_level":              "replica",
						"hot_standby":            "on",
						"max_wal_senders":        10,
						"max_replication_slots":  10,
						"max_connections":        200,
						"password_encryption":    "scram-sha-256",
					},
				},
			},
			"initdb": []any{
				map[string]any{"encoding": "UTF8"},
				"data-checksums",
				map[string]any{"username": c.SuperuserName},
			},
			"pg_hba": []string{
				"local all all trust",
				fmt.Sprintf("hostssl replication %s 0.0.0.0/0 scram-sha-256", c.ReplicationName),
				fmt.Sprintf("hostssl replication %s ::/0 scram-sha-256", c.ReplicationName),
				"hostssl all all 0.0.0.0/0 scram-sha-256",
				"hostssl all all ::/0 scram-sha-256",
				fmt.Sprintf("host replication %s 0.0.0.0/0 scram-sha-256", c.ReplicationName),
				fmt.Sprintf("host replication %s ::/0 scram-sha-256", c.ReplicationName),
				"host all all 0.0.0.0/0 scram-sha-256",
				"host all all ::/0 scram-sha-256",
			},
			"post_bootstrap": "/post_bootstrap.sh",
		},
		"postgresql": map[string]any{
			"listen":          "*:5432",
			"connect_address": fmt.Sprintf("%s:5432", cfg.ConnectAddress),
			"data_dir":        cfg.DataDir,
			"pgpass":          "/tmp/pgpass",
			"callbacks": map[string]any{
				"on_role_change": "/on_role_change.sh",
			},
			"remove_data_directory_on_rewind_failure":     true,
			"remove_data_directory_on_diverged_timelines": true,
			"create_replica_methods":                      []string{"basebackup"},
			"basebackup": map[string]any{
				"checkpoint": "fast",
				"wal-method": "stream",
			},
			"authentication": map[string]any{
				"replication": map[string]any{
					"username": c.ReplicationName,
					"password": c.ReplicationPass,
				},
				"superuser": map[string]any{
					"username": c.SuperuserName,
					"password": c.SuperuserPassword,
				},
			},
			"app_user": map[string]any{
				"username": c.AppUser,
				"password": c.AppPassword,
				"database": c.AppDatabase,
			},
			"parameters": map[string]any{
				"unix_socket_directories": "/var/run/postgresql",
				"ssl":                     "on",
				"ssl_cert_file":           cfg.CertsDir + "/server.crt",
				"ssl_key_file":            cfg.CertsDir + "/server.key",
				"ssl_ca_file":             cfg.CertsDir + "/root.crt",
			},
		},
	}

	return yaml.Marshal(doc)
}
