package etcdsup

import (
	"context"
	"fmt"
	"strings"

	"postgres-ha-supervisor/internal/cmdutil"
)

// Member is a consensus cluster membership record, parsed from the CSV
// listing returned by "etcdctl member list -w simple":
// id,status,name,peerURL,clientURL[,isLearner].
type Member struct {
	ID        string
	Name      string
	PeerURL   string
	IsLearner bool
}

// CLI is the set of consensus-CLI operations the bootstrap state machine
// needs. The concrete implementation shells out to etcdctl (see
// EtcdctlCLI below); tests substitute a fake so the state machine can be
// exercised without a live cluster.
type CLI interface {
	EndpointHealth(ctx context.Context, endpoint string) (bool, error)
	MemberList(ctx context.Context, endpoint string) ([]Member, error)
	MemberAddLearner(ctx context.Context, endpoint, name, peerURL string) (string, error)
	MemberRemove(ctx context.Context, endpoint, id string) error
	MemberPromote(ctx context.Context, endpoint, id string) error
}

// EtcdctlCLI implements CLI by shelling out to the etcdctl binary:
// every operation is a thin wrapper over cmdutil.Run's three
// error-surfacing policies.
type EtcdctlCLI struct{}

func (EtcdctlCLI) EndpointHealth(ctx context.Context, endpoint string) (bool, error) {
	return cmdutil.EtcdctlProbe(ctx, "endpoint", "health", "--endpoints="+endpoint)
}

func (EtcdctlCLI) MemberList(ctx context.Context, endpoint string) ([]Member, error) {
	out, err := cmdutil.Etcdctl(ctx, "member", "list", "--endpoints="+endpoint, "-w", "simple")
	if err != nil {
		return nil, err
	}
	return parseMemberList(out)
}

func (EtcdctlCLI) MemberAddLearner(ctx context.Context, endpoint, name, peerURL string) (string, error) {
	return cmdutil.Etcdctl(ctx, "member", "add", name, "--learner", "--peer-urls="+peerURL, "--endpoints="+endpoint)
}

func (EtcdctlCLI) MemberRemove(ctx context.Context, endpoint, id string) error {
	_, err := cmdutil.Etcdctl(ctx, "member", "remove", id, "--endpoints="+endpoint)
	return err
}

func (EtcdctlCLI) MemberPromote(ctx context.Context, endpoint, id string) error {
	_, err := cmdutil.Etcdctl(ctx, "member", "promote", id, "--endpoints="+endpoint)
	return err
}

func parseMemberList(output string) ([]Member, error) {
	var members []Member
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := make([]string, 0, 6)
		for _, p := range strings.Split(line, ",") {
			parts = append(parts, strings.TrimSpace(p))
		}
		if len(parts) < 5 {
			return nil, fmt.Errorf("invalid member list line %q: expected at least 5 comma-separated fields", line)
		}
		m := Member{ID: parts[0], Name: parts[2], PeerURL: parts[3]}
		if len(parts) > 5 {
			m.IsLearner = parts[5] == "true"
		}
		members = append(members, m)
	}
	return members, nil
}

// ExtractInitialCluster looks for a line containing
// "ETCD_INITIAL_CLUSTER=..." in etcdctl's "member add" output and
// returns the quoted value, or ("", false) if not present/empty.
func ExtractInitialCluster(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "ETCD_INITIAL_CLUSTER=") {
			continue
		}
		idx := strings.Index(line, "ETCD_INITIAL_CLUSTER=")
		value := strings.TrimPrefix(line[idx:], "ETCD_INITIAL_CLUSTER=")
		value = strings.Trim(value, `"`)
		if value != "" {
			return value, true
		}
	}
	return "", false
}

// IsNotLearnerError reports whether err's message indicates the member
// was already a voting member — PromoteSelf treats this as idempotent
// success.
func IsNotLearnerError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "is not a learner")
}
