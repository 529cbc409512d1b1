package patronisup

import (
	"path/filepath"
	"testing"
)

func TestValidateDataDirRejectsPathOutsideVolume(t *testing.T) {
	if err := validateDataDir("/tmp/pgdata"); err == nil {
		t.Fatal("expected error for data directory outside the volume mount")
	}
}

func TestValidateDataDirAcceptsPathUnderVolume(t *testing.T) {
	if err := validateDataDir(ExpectedVolumeMountPath + "/pgdata"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// A fresh data directory (no pg_control) must not be initialized with
// empty credentials: every rendered auth rule demands scram-sha-256.
func TestRequireFreshInstallPasswordsErrorsWhenSuperuserPasswordMissing(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("PATRONI_ENABLED", "false")

	if err := requireFreshInstallPasswords(t.TempDir()); err == nil {
		t.Fatal("expected error for fresh install without POSTGRES_PASSWORD")
	}
}

func TestRequireFreshInstallPasswordsErrorsWhenReplicationPasswordMissingInHAMode(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("PATRONI_REPLICATION_PASSWORD", "")
	t.Setenv("PATRONI_ENABLED", "true")

	if err := requireFreshInstallPasswords(t.TempDir()); err == nil {
		t.Fatal("expected error for fresh HA install without PATRONI_REPLICATION_PASSWORD")
	}
}

func TestRequireFreshInstallPasswordsAcceptsWhenSet(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("PATRONI_REPLICATION_PASSWORD", "repl-secret")
	t.Setenv("PATRONI_ENABLED", "true")

	if err := requireFreshInstallPasswords(t.TempDir()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// An already-initialized directory keeps its existing credentials; the
// guard only applies to fresh installs.
func TestRequireFreshInstallPasswordsSkipsWhenDataPresent(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("PATRONI_ENABLED", "false")

	dataDir := t.TempDir()
	mustMkdirAll(t, filepath.Join(dataDir, "global"))
	mustWriteFile(t, filepath.Join(dataDir, "global", "pg_control"), "")

	if err := requireFreshInstallPasswords(dataDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
