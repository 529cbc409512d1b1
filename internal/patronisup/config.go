// Package patronisup implements the database-agent supervisor: it
// prepares the database data directory, renders and writes the agent
// configuration, spawns the HA agent as a child process, and runs the
// startup-then-steady-state health monitoring loop.
package patronisup

import (
	"time"

	"postgres-ha-supervisor/internal/envconfig"
	"postgres-ha-supervisor/internal/patroniconfig"
)

// Config holds the process-supervision parameters, separate from
// patroniconfig.Config which only covers the rendered agent file.
type Config struct {
	Name                string
	DataDir             string
	VolumeRoot          string
	CertsDir            string
	ReplicationUser     string
	AdoptExistingData   bool
	StartupGracePeriod  time.Duration
	MaxStartupTimeout   time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	MaxHealthFailures   int
}

// ConfigFromEnv reads the process-supervision environment variables.
// Agent-config fields (name, etcd hosts, credentials, DCS timing) are
// read separately via patroniconfig.ConfigFromEnv.
func ConfigFromEnv(agent patroniconfig.Config, dataDir, volumeRoot, certsDir string) (Config, error) {
	return Config{
		Name:                agent.Name,
		DataDir:             dataDir,
		VolumeRoot:          volumeRoot,
		CertsDir:            certsDir,
		ReplicationUser:     agent.Credentials.ReplicationName,
		AdoptExistingData:   envconfig.BoolDefault("PATRONI_ADOPT_EXISTING_DATA", false),
		StartupGracePeriod:  time.Duration(envconfig.ParseDefault("PATRONI_STARTUP_GRACE_PERIOD", 60)) * time.Second,
		MaxStartupTimeout:   time.Duration(envconfig.ParseDefault("PATRONI_MAX_STARTUP_TIMEOUT", 300)) * time.Second,
		HealthCheckInterval: time.Duration(envconfig.ParseDefault("PATRONI_HEALTH_CHECK_INTERVAL", 5)) * time.Second,
		HealthCheckTimeout:  time.Duration(envconfig.ParseDefault("PATRONI_HEALTH_CHECK_TIMEOUT", 5)) * time.Second,
		MaxHealthFailures:   envconfig.ParseDefault("PATRONI_MAX_HEALTH_FAILURES", 3),
	}, nil
}
