// Command post-bootstrap runs once on the freshly initialized primary,
// invoked by the HA agent without inherited environment variables: it
// must read credentials from the rendered agent config rather than the
// environment.
package main

import (
	"context"
	"os"

	"postgres-ha-supervisor/internal/envconfig"
	"postgres-ha-supervisor/internal/obslog"
	"postgres-ha-supervisor/internal/postboot"
	"postgres-ha-supervisor/internal/telemetry"
)

const component = "post-bootstrap"

func main() {
	logger := obslog.New(component)
	node := envconfig.StringDefault("PATRONI_NAME", "unknown")
	volumeRoot := envconfig.StringDefault("RAILWAY_VOLUME_MOUNT_PATH", "/var/lib/postgresql/data")

	telem := telemetry.FromEnv("postgres-ha", logger)

	logger.Info("post-bootstrap starting")

	if err := postboot.Run(context.Background(), volumeRoot, telem, node); err != nil {
		logger.Error("post-bootstrap failed", "error", err)
		os.Exit(1)
	}

	logger.Info("post-bootstrap completed")
}
