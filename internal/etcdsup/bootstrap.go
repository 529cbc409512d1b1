package etcdsup

import (
	"context"
	"fmt"
	"os"
	"time"

	"postgres-ha-supervisor/internal/telemetry"
)

// BootstrapParams is the outcome of one attempt's parameter selection:
// what to pass as ETCD_INITIAL_CLUSTER / ETCD_INITIAL_CLUSTER_STATE when
// spawning the daemon, and whether this node joined as a non-voting
// learner (so the watchdog knows to attempt promotion).
type BootstrapParams struct {
	InitialCluster      string
	InitialClusterState string
	JoinedAsLearner     bool
}

// retryNeeded is returned by BootstrapAsLeader/BootstrapAsFollower (as a
// nil *BootstrapParams, nil error) to mean "this attempt found nothing
// actionable; the caller should sleep RetryDelay and try again" — a
// distinct outcome from a hard error.

// CheckExistingCluster looks for a healthy cluster on any peer other
// than myName — used by the bootstrap leader to detect "my volume was
// lost but the cluster survived on my peers". Such a node must join
// the survivors, never re-bootstrap.
func CheckExistingCluster(ctx context.Context, cluster *Cluster, myName string) (string, bool, error) {
	for _, name := range cluster.Descriptor.Names() {
		if name == myName {
			continue
		}
		peerURL, _ := cluster.Descriptor.PeerURL(name)
		endpoint := PeerToClientURL(peerURL)
		healthy, err := cluster.CLI.EndpointHealth(ctx, endpoint)
		if err != nil {
			return "", false, err
		}
		if healthy {
			return endpoint, true, nil
		}
	}
	return "", false, nil
}

// WaitForAnyHealthyPeer polls the preferred leader, then every other
// peer, until one answers healthy or peerWaitTimeout elapses.
func WaitForAnyHealthyPeer(ctx context.Context, cluster *Cluster, cfg Config, preferredLeader string) (name, endpoint string, err error) {
	deadline := time.Now().Add(cfg.PeerWaitTimeout)

	for time.Now().Before(deadline) {
		if endpoint, ok := cluster.Descriptor.LeaderEndpoint(preferredLeader); ok {
			healthy, err := cluster.CLI.EndpointHealth(ctx, endpoint)
			if err != nil {
				return "", "", err
			}
			if healthy {
				return preferredLeader, endpoint, nil
			}
		}

		for _, name := range cluster.Descriptor.Names() {
			if name == cfg.Name || name == preferredLeader {
				continue
			}
			peerURL, _ := cluster.Descriptor.PeerURL(name)
			clientEndpoint := PeerToClientURL(peerURL)
			healthy, err := cluster.CLI.EndpointHealth(ctx, clientEndpoint)
			if err != nil {
				return "", "", err
			}
			if healthy {
				return name, clientEndpoint, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(cfg.PeerCheckInterval):
		}
	}

	return "", "", fmt.Errorf("timeout waiting for any healthy peer")
}

// CleanStaleData wipes the data directory when data is present but no
// bootstrap marker exists — a previous attempt crashed mid-bootstrap.
// Data with a marker, or no data at all, is left untouched.
func CleanStaleData(cfg Config, telem *telemetry.Client) error {
	if _, err := os.Stat(cfg.DataDir); os.IsNotExist(err) {
		return nil
	}

	hasData, err := HasLocalData(cfg.DataDir)
	if err != nil {
		// Fail-safe: can't determine state, assume data exists and skip
		// the wipe rather than risk destroying a healthy volume.
		return nil
	}
	_, markerErr := os.Stat(cfg.BootstrapMarker())
	markerExists := markerErr == nil

	if hasData && !markerExists {
		if err := ClearDirectory(cfg.DataDir); err != nil {
			if telem != nil {
				telem.Send(telemetry.ComponentError{Component: "etcd", Error: err.Error(), Context: "clearing stale data on startup"})
			}
			return err
		}
		if telem != nil {
			telem.Send(telemetry.EtcdDataCleared{Node: cfg.Name, Reason: "stale data from incomplete bootstrap"})
		}
	}
	return nil
}

// BootstrapAsLeader determines this attempt's parameters for the
// bootstrap leader. Returns (nil, nil) when the caller should retry
// (transient failure), and a non-nil error only for a hard,
// non-retryable condition.
func BootstrapAsLeader(ctx context.Context, cluster *Cluster, cfg Config, telem *telemetry.Client) (*BootstrapParams, error) {
	if _, err := os.Stat(cfg.BootstrapMarker()); err == nil {
		return &BootstrapParams{InitialCluster: cfg.InitialCluster, InitialClusterState: "existing", JoinedAsLearner: false}, nil
	}

	existingEndpoint, found, err := CheckExistingCluster(ctx, cluster, cfg.Name)
	if err != nil {
		return nil, nil // transient; retry
	}

	if found {
		if telem != nil {
			telem.Send(telemetry.EtcdRecoveryMode{Node: cfg.Name, Reason: "Leader volume lost, cluster exists"})
		}

		myPeerURL, ok := cluster.Descriptor.PeerURL(cfg.Name)
		if !ok {
			return nil, ErrNoLocalPeerURL
		}

		_ = cluster.RemoveStaleSelf(ctx, existingEndpoint, myPeerURL)

		output, err := cluster.CLI.MemberAddLearner(ctx, existingEndpoint, cfg.Name, myPeerURL)
		if err != nil {
			return nil, nil // transient; retry
		}

		if telem != nil {
			telem.Send(telemetry.EtcdNodeJoined{Node: cfg.Name, JoinedAs: "learner"})
		}

		clusterStr, ok := ExtractInitialCluster(output)
		if !ok {
			clusterStr, err = cluster.GetCurrentCluster(ctx, existingEndpoint, myPeerURL)
			if err != nil {
				return nil, nil
			}
		}

		return &BootstrapParams{InitialCluster: clusterStr, InitialClusterState: "existing", JoinedAsLearner: true}, nil
	}

	myPeerURL, ok := cluster.Descriptor.PeerURL(cfg.Name)
	if !ok {
		return nil, ErrNoLocalPeerURL
	}

	if telem != nil {
		telem.Send(telemetry.EtcdBootstrap{Node: cfg.Name, IsLeader: true, ClusterSize: cluster.Descriptor.Len()})
	}

	return &BootstrapParams{
		InitialCluster:      cfg.Name + "=" + myPeerURL,
		InitialClusterState: "new",
		JoinedAsLearner:     false,
	}, nil
}

// BootstrapAsFollower determines this attempt's parameters for a
// non-leader node: wait for any healthy peer, then join as a learner.
func BootstrapAsFollower(ctx context.Context, cluster *Cluster, cfg Config, bootstrapLeader string, telem *telemetry.Client) (*BootstrapParams, error) {
	if _, err := os.Stat(cfg.BootstrapMarker()); err == nil {
		return &BootstrapParams{InitialCluster: cfg.InitialCluster, InitialClusterState: "existing", JoinedAsLearner: false}, nil
	}

	_, endpoint, err := WaitForAnyHealthyPeer(ctx, cluster, cfg, bootstrapLeader)
	if err != nil {
		return nil, nil // transient; retry
	}

	clusterStr, err := cluster.AddSelfToCluster(ctx, endpoint)
	if err != nil {
		return nil, nil // transient; retry
	}

	if telem != nil {
		telem.Send(telemetry.EtcdNodeJoined{Node: cfg.Name, JoinedAs: "learner"})
	}

	return &BootstrapParams{InitialCluster: clusterStr, InitialClusterState: "existing", JoinedAsLearner: true}, nil
}
