// Command patroni-runner is the entrypoint for a database node: it
// validates the mounted volume, ensures SSL material is fresh, and then
// either execs standalone PostgreSQL or renders the HA agent's
// configuration, prepares the data directory, and supervises the agent
// process for the lifetime of the container.
package main

import (
	"context"
	"os"

	"postgres-ha-supervisor/internal/envconfig"
	"postgres-ha-supervisor/internal/obslog"
	"postgres-ha-supervisor/internal/patroniconfig"
	"postgres-ha-supervisor/internal/patronisup"
	"postgres-ha-supervisor/internal/telemetry"
)

const component = "patroni-runner"

func main() {
	logger := obslog.New(component)
	telem := telemetry.FromEnv(component, logger)
	telem.Send(telemetry.ComponentStarted{Component: component})

	volumeRoot := envconfig.StringDefault("RAILWAY_VOLUME_MOUNT_PATH", patronisup.ExpectedVolumeMountPath)
	dataDir := envconfig.StringDefault("PGDATA", volumeRoot+"/pgdata")
	certsDir := envconfig.StringDefault("SSL_CERTS_DIR", volumeRoot+"/certs")

	if err := patronisup.Dispatch(dataDir, volumeRoot, certsDir, telem, logger); err != nil {
		logger.Fatal("entrypoint dispatch failed", "error", err)
	}

	agentCfg, err := patroniconfig.ConfigFromEnv(dataDir, certsDir)
	if err != nil {
		logger.Fatal("invalid patroni configuration", "error", err)
	}

	rendered, err := patroniconfig.Render(agentCfg)
	if err != nil {
		logger.Fatal("failed to render patroni configuration", "error", err)
	}

	const agentConfigPath = "/tmp/patroni.yml"
	if err := os.WriteFile(agentConfigPath, rendered, 0o600); err != nil {
		logger.Fatal("failed to write patroni configuration", "error", err)
	}
	logger.Info("patroni configuration written", "path", agentConfigPath)

	procCfg, err := patronisup.ConfigFromEnv(agentCfg, dataDir, volumeRoot, certsDir)
	if err != nil {
		logger.Fatal("invalid process-supervision configuration", "error", err)
	}

	state, err := patronisup.PrepareDataDir(procCfg, logger)
	if err != nil {
		logger.Fatal("failed to prepare data directory", "error", err)
	}
	logger.Info("data directory prepared", "state", state.String())

	clearClientEnv()

	supervisor := patronisup.NewSupervisor(procCfg, telem, logger)
	supervisor.AgentConfigPath = agentConfigPath

	code, err := supervisor.Run(context.Background())
	if err != nil {
		telem.SendSync(telemetry.ComponentError{Component: component, Error: err.Error(), Context: "supervisor run"})
		logger.Error("supervisor exited with error", "error", err)
	}
	os.Exit(code)
}

// clearClientEnv removes variables that would otherwise override the
// client-library defaults the rendered configuration and post-bootstrap
// script rely on.
func clearClientEnv() {
	for _, v := range []string{"PGHOST", "PGPORT", "PGUSER", "PGPASSWORD", "PGDATABASE"} {
		os.Unsetenv(v)
	}
}
