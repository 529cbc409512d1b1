package patronisup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"postgres-ha-supervisor/internal/cmdutil"
	"postgres-ha-supervisor/internal/envconfig"
	"postgres-ha-supervisor/internal/sslmgr"
	"postgres-ha-supervisor/internal/telemetry"
)

// ExpectedVolumeMountPath is the volume path this system expects on
// Railway-hosted deployments; a mismatch is a fatal misconfiguration.
const ExpectedVolumeMountPath = "/var/lib/postgresql/data"

const certRenewalWindow = 30 * 24 * time.Hour

// Dispatch implements the entrypoint wrapper: validate the mounted
// volume and the credentials a fresh install needs, hand the data
// directory to the postgres user, ensure a fresh SSL certificate, and
// choose between standalone PostgreSQL and the HA supervision loop
// based on PATRONI_ENABLED.
//
// When node is meant to standalone-exec postgres, Dispatch replaces the
// current process via syscall.Exec and never returns on success.
func Dispatch(dataDir, volumeRoot, certsDir string, telem *telemetry.Client, logger *log.Logger) error {
	if railwayVolume := os.Getenv("RAILWAY_VOLUME_MOUNT_PATH"); railwayVolume != "" && railwayVolume != ExpectedVolumeMountPath {
		return fmt.Errorf("volume not mounted to expected path: expected %s, got %s", ExpectedVolumeMountPath, railwayVolume)
	}
	if err := validateDataDir(dataDir); err != nil {
		return err
	}
	if err := requireFreshInstallPasswords(dataDir); err != nil {
		return err
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	// Chown the whole volume, not just the data directory: the
	// bootstrap marker lives at the volume root and is written by a
	// process running as postgres.
	if err := chownToPostgres(context.Background(), volumeRoot); err != nil {
		return fmt.Errorf("failed to chown data directory: %w", err)
	}
	if logger != nil {
		logger.Info("volume ownership set", "volume", volumeRoot, "data_dir", dataDir)
	}

	paths := sslmgr.ForDir(certsDir)
	regenerated, err := sslmgr.EnsureCert(paths, certRenewalWindow)
	if err != nil {
		return fmt.Errorf("failed to ensure SSL certificate: %w", err)
	}
	if err := chownToPostgres(context.Background(), certsDir); err != nil {
		return fmt.Errorf("failed to chown certificate directory: %w", err)
	}
	if regenerated && telem != nil {
		telem.Send(telemetry.SslRenewed{Node: dataDir, Reason: "missing or expiring certificate"})
	}
	if logger != nil {
		if regenerated {
			logger.Info("SSL certificate (re)generated", "certs_dir", certsDir)
		} else {
			logger.Info("SSL certificate valid and fresh", "certs_dir", certsDir)
		}
	}

	if !envconfig.BoolDefault("PATRONI_ENABLED", false) {
		return execStandalonePostgres(logger)
	}

	return nil
}

// validateDataDir rejects a PGDATA outside the mounted volume: data
// written elsewhere would not survive a container restart.
func validateDataDir(dataDir string) error {
	if !strings.HasPrefix(dataDir, ExpectedVolumeMountPath) {
		return &envconfig.ConfigError{
			Var: "PGDATA",
			Msg: fmt.Sprintf("data directory %s must be under the volume mount %s", dataDir, ExpectedVolumeMountPath),
		}
	}
	return nil
}

// requireFreshInstallPasswords refuses to initialize a brand-new data
// directory without credentials: the rendered auth rules demand
// scram-sha-256 for every connection, so empty passwords would leave
// the cluster unauthenticable. An already-initialized directory keeps
// its existing credentials and passes.
func requireFreshInstallPasswords(dataDir string) error {
	if fileExists(filepath.Join(dataDir, "global", "pg_control")) {
		return nil
	}
	if os.Getenv("POSTGRES_PASSWORD") == "" {
		return &envconfig.ConfigError{Var: "POSTGRES_PASSWORD", Msg: "required for a fresh install"}
	}
	if envconfig.BoolDefault("PATRONI_ENABLED", false) && os.Getenv("PATRONI_REPLICATION_PASSWORD") == "" {
		return &envconfig.ConfigError{Var: "PATRONI_REPLICATION_PASSWORD", Msg: "required for a fresh HA install"}
	}
	return nil
}

// chownToPostgres recursively hands path to the postgres user. The
// volume mounts as root, so a fresh volume, or root-owned files left
// over from a failed bootstrap, would otherwise be unwritable by
// initdb. Bounded at TimeoutChown; exceeding it is fatal.
func chownToPostgres(ctx context.Context, path string) error {
	_, err := cmdutil.RunChecked(ctx, cmdutil.TimeoutChown, "chown", "-R", "postgres:postgres", path)
	return err
}

// execStandalonePostgres runs the non-HA path: PGHOST/PGPORT are
// cleared so psql and the entrypoint script fall back
// to the Unix socket, then the process execs into the upstream
// docker-entrypoint.sh, passing through any extra arguments.
func execStandalonePostgres(logger *log.Logger) error {
	os.Unsetenv("PGHOST")
	os.Unsetenv("PGPORT")

	entrypoint, err := exec.LookPath("docker-entrypoint.sh")
	if err != nil {
		entrypoint = "/usr/local/bin/docker-entrypoint.sh"
	}

	if logger != nil {
		logger.Info("starting standalone PostgreSQL", "entrypoint", entrypoint)
	}

	argv := append([]string{filepath.Base(entrypoint)}, os.Args[1:]...)
	return syscall.Exec(entrypoint, argv, os.Environ())
}
