// Command haproxy-launcher synthesizes the load balancer's
// configuration from POSTGRES_NODES and starts it. By default it execs
// the balancer binary, replacing the supervisor process; setting
// HAPROXY_SUPERVISE=true instead keeps the supervisor resident and runs
// the backend-health probe loop alongside the child.
package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"postgres-ha-supervisor/internal/envconfig"
	"postgres-ha-supervisor/internal/lbconfig"
	"postgres-ha-supervisor/internal/lbprobe"
	"postgres-ha-supervisor/internal/obslog"
	"postgres-ha-supervisor/internal/telemetry"
)

const component = "haproxy-launcher"

func main() {
	logger := obslog.New(component)
	telem := telemetry.FromEnv(component, logger)
	telem.Send(telemetry.ComponentStarted{Component: component})

	cfg, err := lbconfig.ConfigFromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	nodes, err := lbconfig.ParseNodes(cfg.PostgresNodes)
	if err != nil {
		logger.Fatal("invalid POSTGRES_NODES", "error", err)
	}

	hosts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		hosts = append(hosts, n.Host)
	}
	telem.Send(telemetry.HaproxyConfigGenerating{Nodes: hosts})

	rendered, err := lbconfig.Render(cfg, nodes)
	if err != nil {
		logger.Fatal("failed to render haproxy config", "error", err)
	}

	if err := os.WriteFile(lbconfig.ConfigFile, []byte(rendered), 0o644); err != nil {
		logger.Fatal("failed to write haproxy config", "error", err)
	}

	logger.Info("haproxy config written", "path", lbconfig.ConfigFile)
	for _, line := range splitLines(rendered) {
		logger.Info(line)
	}

	haproxyPath, err := exec.LookPath("haproxy")
	if err != nil {
		logger.Fatal("haproxy binary not found in PATH", "error", err)
	}

	if !envconfig.BoolDefault("HAPROXY_SUPERVISE", false) {
		// SendSync: exec replaces the process, so a background send
		// would never leave the socket.
		_ = telem.SendSync(telemetry.HaproxyStarted{NodeCount: len(nodes), SingleNodeMode: len(nodes) == 1})
		execErr := syscall.Exec(haproxyPath, []string{"haproxy", "-f", lbconfig.ConfigFile}, os.Environ())
		logger.Fatal("failed to exec haproxy", "error", execErr)
		return
	}

	runSupervised(haproxyPath, telem, logger, len(nodes))
}

func runSupervised(haproxyPath string, telem *telemetry.Client, logger *log.Logger, nodeCount int) {
	singleNode := nodeCount == 1
	cmd := exec.Command(haproxyPath, "-f", lbconfig.ConfigFile)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		logger.Fatal("failed to start haproxy", "error", err)
	}
	logger.Info("haproxy started, beginning monitoring", "pid", cmd.Process.Pid)
	telem.Send(telemetry.HaproxyStarted{NodeCount: nodeCount, SingleNodeMode: singleNode})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	probe := lbprobe.NewSupervisor(telem, logger, singleNode)
	go probe.Run(ctx)

	select {
	case sig := <-stop:
		logger.Info("received signal, stopping haproxy", "signal", sig.String())
		_ = cmd.Process.Signal(syscall.SIGTERM)
		<-done
		os.Exit(0)
	case err := <-done:
		cancel()
		if err != nil {
			logger.Error("haproxy exited unexpectedly", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
