package postboot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"postgres-ha-supervisor/internal/telemetry"
)

const defaultPatroniConfigPath = "/tmp/patroni.yml"

// Run executes the one-shot post-bootstrap sequence: read the rendered
// agent config, apply the SQL sequence, and write the bootstrap marker.
// Every failure emits a phase-labeled BootstrapFailed event before
// returning; the caller is expected to exit non-zero on error.
func Run(ctx context.Context, volumeRoot string, telem *telemetry.Client, node string) error {
	start := time.Now()
	telem.Send(telemetry.BootstrapStarted{Node: node, IsFresh: true})

	data, err := os.ReadFile(defaultPatroniConfigPath)
	if err != nil {
		telem.Send(telemetry.BootstrapFailed{Node: node, Error: err.Error(), Phase: "read_config"})
		return fmt.Errorf("failed to read agent config: %w", err)
	}

	creds, err := ParseCredentials(data)
	if err != nil {
		telem.Send(telemetry.BootstrapFailed{Node: node, Error: err.Error(), Phase: "read_credentials"})
		return err
	}

	usersCreated, err := ApplyUsers(ctx, creds)
	if err != nil {
		telem.Send(telemetry.BootstrapFailed{Node: node, Error: err.Error(), Phase: "create_users"})
		return err
	}

	markerPath := filepath.Join(volumeRoot, ".patroni_bootstrap_complete")
	if err := os.WriteFile(markerPath, nil, 0o644); err != nil {
		return fmt.Errorf("failed to write bootstrap marker: %w", err)
	}

	telem.Send(telemetry.BootstrapCompleted{
		Node:         node,
		DurationMs:   time.Since(start).Milliseconds(),
		UsersCreated: usersCreated,
	})

	return nil
}
