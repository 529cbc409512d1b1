// Package lbprobe implements the load balancer's optional resident
// monitoring loop: backend-health scraping via the CSV stats page, plus
// process-liveness watching, for deployments that keep the supervisor
// resident instead of exec'ing into the balancer binary.
package lbprobe

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"postgres-ha-supervisor/internal/telemetry"
)

const (
	statsURL      = "http://localhost:8404/stats;csv"
	checkInterval = 5 * time.Second
	probeTimeout  = 2 * time.Second

	csvColPxName = 0
	csvColSvName = 1
	csvColStatus = 17

	primaryBackendName = "postgresql_primary_backend"
)

// CountHealthyPrimaryServers parses HAProxy's CSV stats page and counts
// rows for primaryBackendName whose row kind is not the synthetic
// "BACKEND" summary row and whose status is "UP".
func CountHealthyPrimaryServers(body string) int {
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1

	count := 0
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if len(record) <= csvColStatus {
			continue
		}
		if record[csvColPxName] != primaryBackendName {
			continue
		}
		if record[csvColSvName] == "BACKEND" {
			continue
		}
		if record[csvColStatus] == "UP" {
			count++
		}
	}
	return count
}

func fetchStats(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stats page returned status %d", resp.StatusCode)
	}

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Supervisor polls the balancer's stats page and its child process,
// emitting a DcsUnavailable event when the primary backend loses all
// healthy servers and clearing the alert on recovery.
type Supervisor struct {
	Telemetry  *telemetry.Client
	Logger     *log.Logger
	SingleNode bool

	client *http.Client
}

// NewSupervisor builds a Supervisor with a fixed 2s probe timeout.
func NewSupervisor(telem *telemetry.Client, logger *log.Logger, singleNode bool) *Supervisor {
	return &Supervisor{
		Telemetry:  telem,
		Logger:     logger,
		SingleNode: singleNode,
		client:     &http.Client{Timeout: probeTimeout},
	}
}

// Run polls every checkInterval until ctx is cancelled. Single-node
// deployments have no per-node health endpoint to distinguish
// primary/replica, so backend monitoring is skipped entirely and the
// sole node is always treated as the primary.
func (s *Supervisor) Run(ctx context.Context) {
	if s.SingleNode {
		if s.Logger != nil {
			s.Logger.Info("single node mode: skipping backend health monitoring")
		}
		return
	}

	alerted := false
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		body, err := fetchStats(ctx, s.client)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("failed to check backend health", "error", err)
			}
			continue
		}

		healthy := CountHealthyPrimaryServers(body)
		if healthy == 0 {
			if !alerted {
				if s.Logger != nil {
					s.Logger.Warn("no healthy primary backend - cluster has no leader")
				}
				if s.Telemetry != nil {
					s.Telemetry.Send(telemetry.DcsUnavailable{Node: "haproxy", Scope: primaryBackendName})
				}
				alerted = true
			}
			continue
		}

		if alerted && s.Logger != nil {
			s.Logger.Info("primary backend recovered", "healthy_count", healthy)
		}
		alerted = false
	}
}
