package etcdsup

import (
	"context"
	"errors"
	"fmt"

	"postgres-ha-supervisor/internal/telemetry"
)

// Cluster is the node-local view of the consensus cluster: its CLI
// transport, the static descriptor, and a telemetry sink for membership
// repair events.
type Cluster struct {
	CLI        CLI
	Descriptor Descriptor
	MyName     string
	DataDir    string
	Telemetry  *telemetry.Client
}

// CheckClusterHealth tries the local client endpoint first (works for
// voting members), then falls back to any voting member's endpoint
// found via the descriptor (works for learners, whose local endpoint is
// not yet serving).
func (c *Cluster) CheckClusterHealth(ctx context.Context) (bool, error) {
	healthy, err := c.CLI.EndpointHealth(ctx, "http://127.0.0.1:2379")
	if err != nil {
		return false, err
	}
	if healthy {
		return true, nil
	}

	endpoint, ok, err := c.GetVotingMemberEndpoint(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return c.CLI.EndpointHealth(ctx, endpoint)
}

// GetVotingMemberEndpoint probes every descriptor entry's client
// endpoint and returns the first that answers healthy.
func (c *Cluster) GetVotingMemberEndpoint(ctx context.Context) (string, bool, error) {
	for _, name := range c.Descriptor.Names() {
		peerURL, _ := c.Descriptor.PeerURL(name)
		endpoint := PeerToClientURL(peerURL)
		healthy, err := c.CLI.EndpointHealth(ctx, endpoint)
		if err != nil {
			return "", false, err
		}
		if healthy {
			return endpoint, true, nil
		}
	}
	return "", false, nil
}

// GetMyMemberID looks up this node's member id via endpoint's member list.
func (c *Cluster) GetMyMemberID(ctx context.Context, endpoint string) (string, bool, error) {
	members, err := c.CLI.MemberList(ctx, endpoint)
	if err != nil {
		return "", false, err
	}
	for _, m := range members {
		if m.Name == c.MyName {
			return m.ID, true, nil
		}
	}
	return "", false, nil
}

// IsLearner reports whether this node is currently a learner. A node
// absent from the member list is reported as "not a learner" (it
// simply isn't a member).
func (c *Cluster) IsLearner(ctx context.Context, endpoint string) (bool, error) {
	members, err := c.CLI.MemberList(ctx, endpoint)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.Name == c.MyName {
			return m.IsLearner, nil
		}
	}
	return false, nil
}

// RemoveStaleSelf removes any member list entry matching this node's
// name or peer URL, emitting EtcdStaleMemberRemoved on success.
func (c *Cluster) RemoveStaleSelf(ctx context.Context, endpoint, myPeerURL string) error {
	members, err := c.CLI.MemberList(ctx, endpoint)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.Name != c.MyName && m.PeerURL != myPeerURL {
			continue
		}
		if err := c.CLI.MemberRemove(ctx, endpoint, m.ID); err != nil {
			if c.Telemetry != nil {
				c.Telemetry.Send(telemetry.ComponentError{Component: "etcd", Error: err.Error(), Context: fmt.Sprintf("removing stale member %s", m.ID)})
			}
			return err
		}
		if c.Telemetry != nil {
			c.Telemetry.Send(telemetry.EtcdStaleMemberRemoved{Node: c.MyName, RemovedID: m.ID})
		}
		return nil
	}
	return nil
}

// GetCurrentCluster rebuilds a "name=peer_url,..." descriptor string
// from endpoint's live member list, appending this node if it is not
// already present.
func (c *Cluster) GetCurrentCluster(ctx context.Context, endpoint, myPeerURL string) (string, error) {
	members, err := c.CLI.MemberList(ctx, endpoint)
	if err != nil {
		return "", err
	}
	var parts []string
	haveSelf := false
	for _, m := range members {
		if m.Name == "" || m.PeerURL == "" {
			continue
		}
		parts = append(parts, m.Name+"="+m.PeerURL)
		if m.Name == c.MyName {
			haveSelf = true
		}
	}
	if !haveSelf {
		parts = append(parts, c.MyName+"="+myPeerURL)
	}
	return joinComma(parts), nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// ErrNoLocalPeerURL is returned when this node's name is not present in
// its own descriptor.
var ErrNoLocalPeerURL = errors.New("could not find my peer URL in ETCD_INITIAL_CLUSTER")

// AddSelfToCluster adds this node as a learner via leaderEndpoint. If
// this node is already listed as a member, the fail-safe data check
// decides whether to remove+re-add the stale entry (no local data) or
// to simply reconstruct the descriptor (local data present — this node
// already caught up once and should not be touched).
func (c *Cluster) AddSelfToCluster(ctx context.Context, leaderEndpoint string) (string, error) {
	myPeerURL, ok := c.Descriptor.PeerURL(c.MyName)
	if !ok {
		return "", ErrNoLocalPeerURL
	}

	members, err := c.CLI.MemberList(ctx, leaderEndpoint)
	if err != nil {
		return "", err
	}

	for _, m := range members {
		if m.Name != c.MyName && m.PeerURL != myPeerURL {
			continue
		}

		hasData, err := HasLocalData(c.DataDir)
		if err != nil {
			// Fail-safe: can't determine state, assume data exists.
			hasData = true
		}

		if hasData {
			return c.GetCurrentCluster(ctx, leaderEndpoint, myPeerURL)
		}

		if err := c.RemoveStaleSelf(ctx, leaderEndpoint, myPeerURL); err != nil {
			return "", err
		}
		if err := ClearDirectory(c.DataDir); err != nil {
			if c.Telemetry != nil {
				c.Telemetry.Send(telemetry.ComponentError{Component: "etcd", Error: err.Error(), Context: "clearing partial data"})
			}
		} else if c.Telemetry != nil {
			c.Telemetry.Send(telemetry.EtcdDataCleared{Node: c.MyName, Reason: "no local data but registered as member"})
		}
		break
	}

	output, err := c.CLI.MemberAddLearner(ctx, leaderEndpoint, c.MyName, myPeerURL)
	if err != nil {
		if c.Telemetry != nil {
			c.Telemetry.Send(telemetry.ComponentError{Component: "etcd", Error: err.Error(), Context: fmt.Sprintf("adding %s as learner", c.MyName)})
		}
		return "", err
	}

	if cluster, ok := ExtractInitialCluster(output); ok {
		return cluster, nil
	}
	return c.GetCurrentCluster(ctx, leaderEndpoint, myPeerURL)
}

// PromoteSelf promotes this node from learner to voting member. A
// "not a learner" error from the CLI is treated as idempotent success:
// the node was already promoted by a previous attempt.
func (c *Cluster) PromoteSelf(ctx context.Context) error {
	endpoint, ok, err := c.GetVotingMemberEndpoint(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("could not find voting member endpoint")
	}

	memberID, ok, err := c.GetMyMemberID(ctx, endpoint)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("could not find my member id")
	}

	learner, err := c.IsLearner(ctx, endpoint)
	if err != nil {
		return err
	}
	if !learner {
		return nil
	}

	err = c.CLI.MemberPromote(ctx, endpoint, memberID)
	if err == nil {
		if c.Telemetry != nil {
			c.Telemetry.Send(telemetry.EtcdNodePromoted{Node: c.MyName})
		}
		return nil
	}
	if IsNotLearnerError(err) {
		return nil
	}
	if c.Telemetry != nil {
		c.Telemetry.Send(telemetry.ComponentError{Component: "etcd", Error: err.Error(), Context: fmt.Sprintf("promoting %s to voting member", c.MyName)})
	}
	return err
}
