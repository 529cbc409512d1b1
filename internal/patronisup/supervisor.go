package patronisup

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"postgres-ha-supervisor/internal/telemetry"
)

const healthEndpoint = "http://localhost:8008/health"

// Supervisor runs the HA agent as a child process and exits non-zero
// if it dies or becomes unresponsive, so the container runtime restarts
// it. The main loop selects over the signal stream, the child's exit,
// and a timer, taking the first to complete.
type Supervisor struct {
	Config    Config
	Telemetry *telemetry.Client
	Logger    *log.Logger

	// AgentBinary is the path to the HA agent binary.
	AgentBinary string
	// AgentArgs are the arguments passed to AgentBinary; defaults to
	// []string{AgentConfigPath} when nil.
	AgentArgs []string
	// AgentConfigPath is the rendered configuration file the agent reads.
	AgentConfigPath string
	// HealthURL overrides the agent health endpoint; defaults to
	// healthEndpoint. Exposed for tests.
	HealthURL string

	client *http.Client
}

// NewSupervisor wires a Supervisor.
func NewSupervisor(cfg Config, telem *telemetry.Client, logger *log.Logger) *Supervisor {
	return &Supervisor{
		Config:          cfg,
		Telemetry:       telem,
		Logger:          logger,
		AgentBinary:     "/usr/local/bin/patroni",
		AgentConfigPath: "/tmp/patroni.yml",
		HealthURL:       healthEndpoint,
		client:          &http.Client{},
	}
}

// Run starts the agent, waits up to MaxStartupTimeout (polling health
// every HealthCheckInterval) for it to become healthy, then runs the
// steady-state monitoring loop until ctx is cancelled or the agent dies.
// Returns the component's exit status: 0 for a clean shutdown.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	args := s.AgentArgs
	if args == nil {
		args = []string{s.AgentConfigPath}
	}
	cmd := exec.Command(s.AgentBinary, args...)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("failed to start agent: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Info("agent started", "pid", cmd.Process.Pid)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if s.Logger != nil {
		s.Logger.Info("waiting for agent to initialize",
			"max_startup_timeout", s.Config.MaxStartupTimeout, "poll_interval", s.Config.HealthCheckInterval)
	}

	healthy, code, err := s.awaitStartup(ctx, cmd, stop, done)
	if err != nil || !healthy {
		return code, err
	}

	if s.Logger != nil {
		s.Logger.Info("agent healthy, starting health monitoring",
			"interval", s.Config.HealthCheckInterval, "max_failures", s.Config.MaxHealthFailures)
	}
	return s.monitorSteadyState(ctx, cmd, stop, done)
}

// awaitStartup polls health every HealthCheckInterval until the agent
// reports healthy or MaxStartupTimeout elapses. Health checks are
// suppressed for the first StartupGracePeriod so a slow initdb is not
// mistaken for an unresponsive agent; signals and child death are still
// handled during the grace window.
func (s *Supervisor) awaitStartup(ctx context.Context, cmd *exec.Cmd, stop chan os.Signal, done chan error) (bool, int, error) {
	deadline := time.Now().Add(s.Config.MaxStartupTimeout)
	graceEnd := time.Now().Add(s.Config.StartupGracePeriod)
	ticker := time.NewTicker(s.Config.HealthCheckInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			code, err := s.gracefulShutdown(cmd, done)
			return false, code, err
		case sig := <-stop:
			if s.Logger != nil {
				s.Logger.Info("received signal during startup, stopping agent", "signal", sig.String())
			}
			code, err := s.gracefulShutdown(cmd, done)
			return false, code, err
		case err := <-done:
			if s.Telemetry != nil {
				s.Telemetry.Send(telemetry.ProcessDied{Process: "patroni", Node: s.Config.Name})
			}
			if s.Logger != nil {
				s.Logger.Error("agent process died during startup", "error", err)
			}
			return false, 1, nil
		case <-ticker.C:
			if time.Now().Before(graceEnd) {
				continue
			}
			if s.checkHealth(ctx) {
				return true, 0, nil
			}
		}
	}

	if s.Logger != nil {
		s.Logger.Error("agent did not become healthy within startup timeout")
	}
	if s.Telemetry != nil {
		s.Telemetry.Send(telemetry.ComponentError{Component: "patroni", Error: "agent did not become healthy within startup timeout", Context: "startup"})
	}
	s.hardKill(cmd, done)
	return false, 1, nil
}

// monitorSteadyState polls health every HealthCheckInterval; after
// MaxHealthFailures consecutive failures it escalates to SIGTERM, waits
// 2s, then SIGKILL, and exits non-zero to trigger a restart.
func (s *Supervisor) monitorSteadyState(ctx context.Context, cmd *exec.Cmd, stop chan os.Signal, done chan error) (int, error) {
	failures := 0
	ticker := time.NewTicker(s.Config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.gracefulShutdown(cmd, done)
		case sig := <-stop:
			if s.Logger != nil {
				s.Logger.Info("received signal, stopping agent", "signal", sig.String())
			}
			return s.gracefulShutdown(cmd, done)
		case err := <-done:
			if s.Telemetry != nil {
				s.Telemetry.Send(telemetry.ProcessDied{Process: "patroni", Node: s.Config.Name})
			}
			if s.Logger != nil {
				s.Logger.Error("agent process died unexpectedly", "error", err)
			}
			return 1, nil
		case <-ticker.C:
			if s.checkHealth(ctx) {
				if failures > 0 && s.Logger != nil {
					s.Logger.Info("agent recovered after failed health checks", "failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			if s.Logger != nil {
				s.Logger.Warn("health check failed", "failures", failures, "max_failures", s.Config.MaxHealthFailures)
			}
			if s.Telemetry != nil {
				s.Telemetry.Send(telemetry.HealthCheckFailed{Node: s.Config.Name, ConsecutiveFailures: failures, MaxFailures: s.Config.MaxHealthFailures})
			}

			if failures >= s.Config.MaxHealthFailures {
				if s.Logger != nil {
					s.Logger.Error("agent unresponsive, exiting to trigger restart", "max_failures", s.Config.MaxHealthFailures)
				}
				s.hardKill(cmd, done)
				return 1, nil
			}
		}
	}
}

// checkHealth issues GET /health with HealthCheckTimeout, folding any
// error (unreachable, non-2xx, timeout) into false.
func (s *Supervisor) checkHealth(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, s.Config.HealthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.HealthURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// gracefulShutdown sends SIGTERM, awaits the child's exit, and returns
// 0. No hard-kill is used on graceful shutdown.
func (s *Supervisor) gracefulShutdown(cmd *exec.Cmd, done chan error) (int, error) {
	_ = cmd.Process.Signal(syscall.SIGTERM)
	<-done
	return 0, nil
}

// hardKill escalates from SIGTERM to SIGKILL after a 2s grace window,
// used when the agent fails to become healthy within the startup
// timeout or goes unresponsive in steady state — never on a graceful
// shutdown request.
func (s *Supervisor) hardKill(cmd *exec.Cmd, done chan error) {
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(2 * time.Second):
	}
	_ = cmd.Process.Signal(syscall.SIGKILL)
	<-done
}
