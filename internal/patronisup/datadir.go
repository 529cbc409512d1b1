package patronisup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// DataState classifies the data directory's condition relative to the
// bootstrap marker and the adopt-existing-data flag.
type DataState int

const (
	// DataStateEmpty means no PostgreSQL data was found; a fresh
	// bootstrap will initialize it.
	DataStateEmpty DataState = iota
	// DataStateValid means pg_control and the bootstrap marker are both
	// present: a normal restart of an already-bootstrapped node.
	DataStateValid
	// DataStateStale means pg_control exists without a marker: data
	// left over from a bootstrap attempt that never completed.
	DataStateStale
	// DataStateAdopted means PATRONI_ADOPT_EXISTING_DATA is set and
	// pre-existing vanilla PostgreSQL data was found without a marker;
	// the marker is written immediately to adopt it as already bootstrapped.
	DataStateAdopted
)

func (s DataState) String() string {
	switch s {
	case DataStateValid:
		return "valid"
	case DataStateStale:
		return "stale"
	case DataStateAdopted:
		return "adopted"
	default:
		return "empty"
	}
}

// BootstrapMarker returns the path to the bootstrap-complete marker at
// the volume root.
func BootstrapMarker(volumeRoot string) string {
	return filepath.Join(volumeRoot, ".patroni_bootstrap_complete")
}

// PrepareDataDir inspects the data directory against the bootstrap
// marker, adopts pre-existing vanilla data when PATRONI_ADOPT_EXISTING_DATA
// is set, and ensures the directory exists with 0700 permissions before
// the agent starts.
func PrepareDataDir(cfg Config, logger *log.Logger) (DataState, error) {
	if cfg.AdoptExistingData {
		if err := updatePgHBAForReplication(cfg.DataDir, cfg.ReplicationUser, logger); err != nil {
			return DataStateEmpty, err
		}
	}

	pgControlPath := filepath.Join(cfg.DataDir, "global", "pg_control")
	hasPgControl := fileExists(pgControlPath)
	marker := BootstrapMarker(cfg.VolumeRoot)
	hasMarker := fileExists(marker)

	var state DataState
	switch {
	case cfg.AdoptExistingData && hasPgControl && !hasMarker:
		if logger != nil {
			logger.Info("adopting pre-existing data directory into HA cluster")
		}
		if err := os.WriteFile(marker, []byte{}, 0o644); err != nil {
			return DataStateEmpty, fmt.Errorf("failed to create bootstrap marker: %w", err)
		}
		state = DataStateAdopted
	case hasPgControl && hasMarker:
		if logger != nil {
			logger.Info("found valid data directory with bootstrap marker")
		}
		state = DataStateValid
	case hasPgControl:
		if logger != nil {
			logger.Warn("found pg_control but no bootstrap marker - stale data from failed bootstrap")
		}
		state = DataStateStale
	default:
		if logger != nil {
			logger.Info("no PostgreSQL data found")
		}
		state = DataStateEmpty
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return state, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.Chmod(cfg.DataDir, 0o700); err != nil {
		return state, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	return state, nil
}

// updatePgHBAForReplication prepends SCRAM replication entries for
// replUser to an existing pg_hba.conf, idempotently: a no-op if entries
// for that user already exist.
func updatePgHBAForReplication(dataDir, replUser string, logger *log.Logger) error {
	pgHBAPath := filepath.Join(dataDir, "pg_hba.conf")
	content, err := os.ReadFile(pgHBAPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read pg_hba.conf: %w", err)
	}

	text := string(content)
	if strings.Contains(text, "replication "+replUser) || strings.Contains(text, "replication\t"+replUser) {
		if logger != nil {
			logger.Info("replication entries already present in pg_hba.conf", "user", replUser)
		}
		return nil
	}

	if logger != nil {
		logger.Info("adding replication entries to pg_hba.conf", "user", replUser)
	}

	entries := fmt.Sprintf(
		"# Replication entries added for user %s\nhostssl replication %s 0.0.0.0/0 scram-sha-256\nhostssl replication %s ::/0 scram-sha-256\nhost replication %s 0.0.0.0/0 scram-sha-256\nhost replication %s ::/0 scram-sha-256\n\n",
		replUser, replUser, replUser, replUser, replUser,
	)

	if err := os.WriteFile(pgHBAPath, []byte(entries+text), 0o600); err != nil {
		return fmt.Errorf("failed to write pg_hba.conf: %w", err)
	}
	if err := os.Chmod(pgHBAPath, 0o600); err != nil {
		return fmt.Errorf("failed to set pg_hba.conf permissions: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
