package etcdsup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"

	"postgres-ha-supervisor/internal/telemetry"
)

// Supervisor runs the bootstrap startup path and retry loop: on each
// attempt it decides bootstrap parameters, spawns the consensus daemon,
// runs the post-start watchdog concurrently, and reacts to the daemon's
// exit (wipe on unmarked failure, preserve on marked crash-restart).
type Supervisor struct {
	Config    Config
	Cluster   *Cluster
	Telemetry *telemetry.Client
	Logger    *log.Logger

	// EtcdBinary is the path to the consensus daemon binary.
	EtcdBinary string
}

// NewSupervisor wires a Supervisor from its config and collaborators.
func NewSupervisor(cfg Config, telem *telemetry.Client, logger *log.Logger) (*Supervisor, error) {
	descriptor, err := ParseDescriptor(cfg.InitialCluster)
	if err != nil {
		return nil, err
	}
	cluster := &Cluster{
		CLI:        EtcdctlCLI{},
		Descriptor: descriptor,
		MyName:     cfg.Name,
		DataDir:    cfg.DataDir,
		Telemetry:  telem,
	}
	return &Supervisor{
		Config:     cfg,
		Cluster:    cluster,
		Telemetry:  telem,
		Logger:     logger,
		EtcdBinary: "/usr/local/bin/etcd",
	}, nil
}

// Run executes the startup path and retry loop until the daemon exits
// cleanly, or exits non-zero after Config.MaxRetries attempts.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.Config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := CleanStaleData(s.Config, s.Telemetry); err != nil {
		return err
	}

	leaderName := s.Cluster.Descriptor.LeaderName()
	isLeader := s.Config.Name == leaderName

	if s.Logger != nil {
		s.Logger.Info("bootstrap leader determined", "leader", leaderName, "is_leader", isLeader)
	}

	for attempt := 1; attempt <= s.Config.MaxRetries; attempt++ {
		if s.Logger != nil {
			s.Logger.Info("starting etcd", "attempt", attempt, "max_retries", s.Config.MaxRetries)
		}

		var params *BootstrapParams
		var err error
		if isLeader {
			params, err = BootstrapAsLeader(ctx, s.Cluster, s.Config, s.Telemetry)
		} else {
			params, err = BootstrapAsFollower(ctx, s.Cluster, s.Config, leaderName, s.Telemetry)
		}
		if err != nil {
			return err
		}
		if params == nil {
			if s.Telemetry != nil {
				s.Telemetry.Send(telemetry.EtcdStartupFailed{Node: s.Config.Name, Attempt: attempt, MaxAttempts: s.Config.MaxRetries, Error: "no healthy peer / member add failed"})
			}
			if !s.sleepOrDone(ctx, s.Config.RetryDelay) {
				return ctx.Err()
			}
			continue
		}

		exitCode, runErr := s.runOneAttempt(ctx, *params)
		if runErr != nil {
			return runErr
		}

		if exitCode == 0 {
			if s.Logger != nil {
				s.Logger.Info("etcd exited cleanly")
			}
			return nil
		}

		if s.Logger != nil {
			s.Logger.Warn("etcd exited non-zero", "code", exitCode)
		}

		if _, err := os.Stat(s.Config.BootstrapMarker()); os.IsNotExist(err) {
			_ = ClearDirectory(s.Config.DataDir)
		}

		if attempt < s.Config.MaxRetries {
			if !s.sleepOrDone(ctx, s.Config.RetryDelay) {
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed to start etcd after %d attempts", s.Config.MaxRetries)
}

func (s *Supervisor) sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// runOneAttempt spawns the daemon with params, runs the watchdog
// concurrently, and waits for the daemon to exit. It returns the
// daemon's exit code (0 on success).
func (s *Supervisor) runOneAttempt(ctx context.Context, params BootstrapParams) (int, error) {
	cmd := exec.CommandContext(ctx, s.EtcdBinary, "--auto-compaction-retention=1", "--max-learners=2")
	cmd.Env = append(os.Environ(),
		"ETCD_INITIAL_CLUSTER="+params.InitialCluster,
		"ETCD_INITIAL_CLUSTER_STATE="+params.InitialClusterState,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start etcd: %w", err)
	}

	watchdogCtx, cancelWatchdog := context.WithCancel(ctx)
	defer cancelWatchdog()
	go s.runWatchdog(watchdogCtx, params.JoinedAsLearner)

	err := cmd.Wait()
	cancelWatchdog()

	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("error waiting for etcd: %w", err)
}

// runWatchdog is the post-start watchdog: every 5s, probe cluster
// health; if a learner and not yet promoted, attempt
// promotion; once healthy and (not a learner or promoted), write the
// marker.
func (s *Supervisor) runWatchdog(ctx context.Context, joinedAsLearner bool) {
	promoted := false
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		healthy, err := s.Cluster.CheckClusterHealth(ctx)
		if err != nil || !healthy {
			continue
		}

		if joinedAsLearner && !promoted {
			if err := s.Cluster.PromoteSelf(ctx); err != nil {
				if s.Logger != nil {
					s.Logger.Warn("promotion failed, will retry", "error", err)
				}
			} else {
				promoted = true
			}
		}

		markerPath := s.Config.BootstrapMarker()
		if _, err := os.Stat(markerPath); os.IsNotExist(err) && (!joinedAsLearner || promoted) {
			if err := os.WriteFile(markerPath, []byte{}, 0o644); err != nil {
				if s.Logger != nil {
					s.Logger.Warn("failed to write bootstrap marker", "error", err)
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.Info("bootstrap marked complete")
			}
		}
	}
}
