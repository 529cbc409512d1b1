package lbconfig

import (
	"postgres-ha-supervisor/internal/envconfig"
)

// Config is the launcher's environment-derived tuning.
type Config struct {
	PostgresNodes  string
	MaxConn        string
	TimeoutConnect string
	TimeoutClient  string
	TimeoutServer  string
	CheckInterval  string
}

// ConfigFromEnv reads the launcher's configuration. POSTGRES_NODES is
// required.
func ConfigFromEnv() (Config, error) {
	postgresNodes, err := envconfig.Required("POSTGRES_NODES")
	if err != nil {
		return Config{}, err
	}

	return Config{
		PostgresNodes:  postgresNodes,
		MaxConn:        envconfig.StringDefault("HAPROXY_MAX_CONN", "1000"),
		TimeoutConnect: envconfig.StringDefault("HAPROXY_TIMEOUT_CONNECT", "10s"),
		TimeoutClient:  envconfig.StringDefault("HAPROXY_TIMEOUT_CLIENT", "30m"),
		TimeoutServer:  envconfig.StringDefault("HAPROXY_TIMEOUT_SERVER", "30m"),
		CheckInterval:  envconfig.StringDefault("HAPROXY_CHECK_INTERVAL", "3s"),
	}, nil
}
