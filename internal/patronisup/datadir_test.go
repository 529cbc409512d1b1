package patronisup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrepareDataDirEmptyWhenNoPgControl(t *testing.T) {
	root := t.TempDir()
	cfg := Config{DataDir: filepath.Join(root, "pgdata"), VolumeRoot: root}

	state, err := PrepareDataDir(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != DataStateEmpty {
		t.Fatalf("state = %v, want DataStateEmpty", state)
	}
}

func TestPrepareDataDirValidWhenPgControlAndMarkerPresent(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "pgdata")
	mustMkdirAll(t, filepath.Join(dataDir, "global"))
	mustWriteFile(t, filepath.Join(dataDir, "global", "pg_control"), "")
	mustWriteFile(t, BootstrapMarker(root), "")

	state, err := PrepareDataDir(Config{DataDir: dataDir, VolumeRoot: root}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != DataStateValid {
		t.Fatalf("state = %v, want DataStateValid", state)
	}
}

func TestPrepareDataDirStaleWhenMarkerMissing(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "pgdata")
	mustMkdirAll(t, filepath.Join(dataDir, "global"))
	mustWriteFile(t, filepath.Join(dataDir, "global", "pg_control"), "")

	state, err := PrepareDataDir(Config{DataDir: dataDir, VolumeRoot: root}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != DataStateStale {
		t.Fatalf("state = %v, want DataStateStale", state)
	}
}

func TestPrepareDataDirAdoptsExistingDataAndWritesMarker(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "pgdata")
	mustMkdirAll(t, filepath.Join(dataDir, "global"))
	mustWriteFile(t, filepath.Join(dataDir, "global", "pg_control"), "")

	cfg := Config{DataDir: dataDir, VolumeRoot: root, AdoptExistingData: true, ReplicationUser: "replicator"}
	state, err := PrepareDataDir(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != DataStateAdopted {
		t.Fatalf("state = %v, want DataStateAdopted", state)
	}
	if !fileExists(BootstrapMarker(root)) {
		t.Fatal("expected bootstrap marker to be written when adopting data")
	}
}

func TestUpdatePgHBAIdempotentWhenEntriesPresent(t *testing.T) {
	dataDir := t.TempDir()
	original := "local all all trust\nhostssl replication replicator 0.0.0.0/0 scram-sha-256\n"
	mustWriteFile(t, filepath.Join(dataDir, "pg_hba.conf"), original)

	if err := updatePgHBAForReplication(dataDir, "replicator", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := mustReadFile(t, filepath.Join(dataDir, "pg_hba.conf"))
	if got != original {
		t.Fatalf("pg_hba.conf was modified when entries already existed:\n%s", got)
	}
}

func TestUpdatePgHBAPrependsEntriesWhenMissing(t *testing.T) {
	dataDir := t.TempDir()
	original := "local all all trust\n"
	mustWriteFile(t, filepath.Join(dataDir, "pg_hba.conf"), original)

	if err := updatePgHBAForReplication(dataDir, "replicator", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := mustReadFile(t, filepath.Join(dataDir, "pg_hba.conf"))
	if got == original {
		t.Fatal("expected replication entries to be added")
	}

	info, err := os.Stat(filepath.Join(dataDir, "pg_hba.conf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("pg_hba.conf mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestUpdatePgHBANoOpWhenFileAbsent(t *testing.T) {
	dataDir := t.TempDir()
	if err := updatePgHBAForReplication(dataDir, "replicator", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func mustReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
