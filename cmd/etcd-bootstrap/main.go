// Command etcd-bootstrap runs the consensus-store bootstrap supervisor:
// it determines whether this node is the bootstrap leader or a
// follower, joins or starts the cluster accordingly, and supervises the
// etcd process across restarts until it exits cleanly.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"postgres-ha-supervisor/internal/etcdsup"
	"postgres-ha-supervisor/internal/obslog"
	"postgres-ha-supervisor/internal/telemetry"
)

const component = "etcd-bootstrap"

func main() {
	logger := obslog.New(component)

	cfg, err := etcdsup.ConfigFromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	telem := telemetry.FromEnv(component, logger)
	telem.Send(telemetry.ComponentStarted{Component: component})

	supervisor, err := etcdsup.NewSupervisor(cfg, telem, logger)
	if err != nil {
		logger.Fatal("failed to build supervisor", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-stop
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := supervisor.Run(ctx); err != nil {
		telem.SendSync(telemetry.ComponentError{Component: component, Error: err.Error(), Context: "supervisor run"})
		logger.Fatal("supervisor exited with error", "error", err)
	}

	logger.Info("etcd-bootstrap exiting cleanly")
}
