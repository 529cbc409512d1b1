package etcdsup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeCLI is an in-memory consensus-CLI double used to drive the
// bootstrap state machine without a live etcd cluster.
type fakeCLI struct {
	healthy       map[string]bool
	members       map[string][]Member
	addLearnerOut string
	addLearnerErr error
	removeErr     error
	promoteErr    error
	promoteCalls  int
	removedIDs    []string
}

func (f *fakeCLI) EndpointHealth(ctx context.Context, endpoint string) (bool, error) {
	return f.healthy[endpoint], nil
}

func (f *fakeCLI) MemberList(ctx context.Context, endpoint string) ([]Member, error) {
	return f.members[endpoint], nil
}

func (f *fakeCLI) MemberAddLearner(ctx context.Context, endpoint, name, peerURL string) (string, error) {
	return f.addLearnerOut, f.addLearnerErr
}

func (f *fakeCLI) MemberRemove(ctx context.Context, endpoint, id string) error {
	f.removedIDs = append(f.removedIDs, id)
	return f.removeErr
}

func (f *fakeCLI) MemberPromote(ctx context.Context, endpoint, id string) error {
	f.promoteCalls++
	return f.promoteErr
}

// On an empty volume with no reachable remote peer, only the lex-min
// node selects cluster_state=new.
func TestBootstrapAsLeaderFreshWhenNoPeerReachable(t *testing.T) {
	cfg := Config{
		Name:           "a",
		InitialCluster: "a=http://a:2380,b=http://b:2380",
		DataDir:        t.TempDir(),
		MaxRetries:     1,
	}
	descriptor, err := ParseDescriptor(cfg.InitialCluster)
	if err != nil {
		t.Fatal(err)
	}
	cli := &fakeCLI{healthy: map[string]bool{}}
	cluster := &Cluster{CLI: cli, Descriptor: descriptor, MyName: cfg.Name, DataDir: cfg.DataDir}

	params, err := BootstrapAsLeader(context.Background(), cluster, cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params == nil {
		t.Fatal("expected params, got nil (retry)")
	}
	if params.InitialClusterState != "new" {
		t.Fatalf("expected cluster_state=new, got %q", params.InitialClusterState)
	}
	if params.InitialCluster != "a=http://a:2380" {
		t.Fatalf("expected single-member cluster, got %q", params.InitialCluster)
	}
	if params.JoinedAsLearner {
		t.Fatal("leader fresh-bootstrap must not be a learner")
	}
}

// With a marker present, restarting always resumes with the full
// descriptor and never wipes data, regardless of remote reachability.
func TestBootstrapAsLeaderResumesWhenMarkerPresent(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, ".bootstrap_complete"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Name: "a", InitialCluster: "a=http://a:2380,b=http://b:2380", DataDir: dataDir}
	descriptor, _ := ParseDescriptor(cfg.InitialCluster)
	cli := &fakeCLI{healthy: map[string]bool{}}
	cluster := &Cluster{CLI: cli, Descriptor: descriptor, MyName: cfg.Name, DataDir: cfg.DataDir}

	params, err := BootstrapAsLeader(context.Background(), cluster, cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.InitialCluster != cfg.InitialCluster {
		t.Fatalf("expected full descriptor resume, got %q", params.InitialCluster)
	}
	if params.InitialClusterState != "existing" {
		t.Fatalf("expected cluster_state=existing, got %q", params.InitialClusterState)
	}
	if params.JoinedAsLearner {
		t.Fatal("resume must not be a learner")
	}
}

func TestBootstrapAsFollowerResumesWhenMarkerPresent(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, ".bootstrap_complete"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Name: "b", InitialCluster: "a=http://a:2380,b=http://b:2380", DataDir: dataDir}
	descriptor, _ := ParseDescriptor(cfg.InitialCluster)
	cli := &fakeCLI{healthy: map[string]bool{}}
	cluster := &Cluster{CLI: cli, Descriptor: descriptor, MyName: cfg.Name, DataDir: cfg.DataDir}

	params, err := BootstrapAsFollower(context.Background(), cluster, cfg, "a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.InitialClusterState != "existing" || params.JoinedAsLearner {
		t.Fatalf("unexpected params: %+v", params)
	}
}

// If HasLocalData cannot complete (unreadable WAL dir),
// AddSelfToCluster must not wipe data —
// it should treat data as present and reconstruct the descriptor
// instead of removing the stale entry.
func TestAddSelfToClusterFailSafeOnUnreadableData(t *testing.T) {
	dataDir := t.TempDir()
	// "member" exists as a plain file, not a directory: stat/readdir on
	// <data_dir>/member/wal fails with ENOTDIR regardless of caller
	// privilege, reliably exercising the fail-safe error path.
	if err := os.WriteFile(filepath.Join(dataDir, "member"), []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Name: "b", InitialCluster: "a=http://a:2380,b=http://b:2380", DataDir: dataDir}
	descriptor, _ := ParseDescriptor(cfg.InitialCluster)

	endpoint := "http://a:2379"
	cli := &fakeCLI{
		members: map[string][]Member{
			endpoint: {{ID: "1", Name: "b", PeerURL: "http://b:2380", IsLearner: false}},
		},
	}
	cluster := &Cluster{CLI: cli, Descriptor: descriptor, MyName: cfg.Name, DataDir: cfg.DataDir}

	_, err := cluster.AddSelfToCluster(context.Background(), endpoint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cli.removedIDs) != 0 {
		t.Fatalf("fail-safe violated: stale entry was removed despite unreadable data dir: %v", cli.removedIDs)
	}
}

// Startup-path fail-safe: if HasLocalData cannot complete,
// CleanStaleData must not wipe the data directory, and
// must not propagate the stat/readdir error as fatal either — both would
// violate "inability to determine is treated as 'data present'".
func TestCleanStaleDataFailSafeOnUnreadableData(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "member"), []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(dataDir, "sentinel")
	if err := os.WriteFile(marker, []byte("must survive"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Name: "b", InitialCluster: "a=http://a:2380,b=http://b:2380", DataDir: dataDir}

	if err := CleanStaleData(cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("fail-safe violated: data directory was wiped despite unreadable WAL dir: %v", err)
	}
}

// Against an oracle that flips is_learner to false after one promotion
// call, PromoteSelf issues exactly one promotion RPC.
func TestPromoteSelfPromotesExactlyOnce(t *testing.T) {
	descriptor, _ := ParseDescriptor("a=http://a:2380")
	endpoint := "http://a:2379"
	cli := &fakeCLI{
		healthy: map[string]bool{endpoint: true},
		members: map[string][]Member{
			endpoint: {{ID: "42", Name: "a", IsLearner: true}},
		},
	}
	cluster := &Cluster{CLI: cli, Descriptor: descriptor, MyName: "a"}

	if err := cluster.PromoteSelf(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cli.promoteCalls != 1 {
		t.Fatalf("expected exactly one promote call, got %d", cli.promoteCalls)
	}
}

// An "is not a learner" error from the promote RPC is treated as
// success.
func TestPromoteSelfIdempotentOnNotLearnerError(t *testing.T) {
	descriptor, _ := ParseDescriptor("a=http://a:2380")
	endpoint := "http://a:2379"
	cli := &fakeCLI{
		healthy: map[string]bool{endpoint: true},
		members: map[string][]Member{
			endpoint: {{ID: "42", Name: "a", IsLearner: true}},
		},
		promoteErr: errors.New("etcdserver: can't promote a member that is not a learner"),
	}
	cluster := &Cluster{CLI: cli, Descriptor: descriptor, MyName: "a"}

	if err := cluster.PromoteSelf(context.Background()); err != nil {
		t.Fatalf("expected idempotent success, got error: %v", err)
	}
}

func TestPromoteSelfNoOpWhenAlreadyVoting(t *testing.T) {
	descriptor, _ := ParseDescriptor("a=http://a:2380")
	endpoint := "http://a:2379"
	cli := &fakeCLI{
		healthy: map[string]bool{endpoint: true},
		members: map[string][]Member{
			endpoint: {{ID: "42", Name: "a", IsLearner: false}},
		},
	}
	cluster := &Cluster{CLI: cli, Descriptor: descriptor, MyName: "a"}

	if err := cluster.PromoteSelf(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cli.promoteCalls != 0 {
		t.Fatalf("expected no promote call when already voting, got %d", cli.promoteCalls)
	}
}

func TestExtractInitialClusterPrefersReturnedDescriptor(t *testing.T) {
	out := "added member 12 to cluster\n\nETCD_NAME=\"b\"\nETCD_INITIAL_CLUSTER=\"a=http://a:2380,b=http://b:2380\"\n"
	cluster, ok := ExtractInitialCluster(out)
	if !ok || cluster != "a=http://a:2380,b=http://b:2380" {
		t.Fatalf("ExtractInitialCluster = %q, %v", cluster, ok)
	}
}

func TestExtractInitialClusterFalseWhenAbsent(t *testing.T) {
	if _, ok := ExtractInitialCluster("added member 12 to cluster\n"); ok {
		t.Fatal("expected no cluster string extracted")
	}
}

func TestHasLocalDataFalseWhenWalDirMissing(t *testing.T) {
	has, err := HasLocalData(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if has {
		t.Fatal("expected no data")
	}
}

func TestHasLocalDataTrueWhenWalHasEntries(t *testing.T) {
	dataDir := t.TempDir()
	walDir := filepath.Join(dataDir, "member", "wal")
	if err := os.MkdirAll(walDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(walDir, "0000000000000000-0000000000000000.wal"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	has, err := HasLocalData(dataDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Fatal("expected data present")
	}
}
