// Package etcdsup implements the consensus-store bootstrap supervisor:
// leader selection, learner join/promotion, stale-membership repair,
// and the post-start watchdog.
package etcdsup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"postgres-ha-supervisor/internal/envconfig"
)

// Config is the supervisor's environment-derived configuration.
type Config struct {
	Name              string
	InitialCluster    string
	DataDir           string
	MaxRetries        int
	RetryDelay        time.Duration
	PeerWaitTimeout   time.Duration
	PeerCheckInterval time.Duration
}

// ConfigFromEnv reads the configuration from the environment. ETCD_NAME
// and ETCD_INITIAL_CLUSTER are required; everything else has a default.
func ConfigFromEnv() (Config, error) {
	name, err := envconfig.Required("ETCD_NAME")
	if err != nil {
		return Config{}, err
	}
	initialCluster, err := envconfig.Required("ETCD_INITIAL_CLUSTER")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Name:              name,
		InitialCluster:    initialCluster,
		DataDir:           envconfig.StringDefault("ETCD_DATA_DIR", "/var/lib/etcd"),
		MaxRetries:        envconfig.ParseDefault("ETCD_MAX_RETRIES", 60),
		RetryDelay:        time.Duration(envconfig.ParseDefault("ETCD_RETRY_DELAY", 5)) * time.Second,
		PeerWaitTimeout:   time.Duration(envconfig.ParseDefault("ETCD_PEER_WAIT_TIMEOUT", 300)) * time.Second,
		PeerCheckInterval: time.Duration(envconfig.ParseDefault("ETCD_PEER_CHECK_INTERVAL", 5)) * time.Second,
	}

	if _, err := ParseDescriptor(cfg.InitialCluster); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// BootstrapMarker is the path to the bootstrap-complete sentinel file.
func (c Config) BootstrapMarker() string {
	return c.DataDir + "/.bootstrap_complete"
}

// Descriptor is the static name -> peer_url mapping parsed from
// ETCD_INITIAL_CLUSTER, plus the insertion order so callers can iterate
// deterministically.
type Descriptor struct {
	peers map[string]string
	order []string
}

// ParseDescriptor parses "name1=url1,name2=url2,...". A malformed entry
// (missing '=', empty name, or empty url) is a fatal configuration
// error, and so is a repeated name: the descriptor must name each
// member exactly once, since a duplicate would make lex-min leader
// selection ambiguous.
func ParseDescriptor(s string) (Descriptor, error) {
	d := Descriptor{peers: make(map[string]string)}
	for _, entry := range strings.Split(s, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Descriptor{}, fmt.Errorf("config error: ETCD_INITIAL_CLUSTER: invalid cluster entry %q: expected 'name=url' format", entry)
		}
		if _, exists := d.peers[parts[0]]; exists {
			return Descriptor{}, fmt.Errorf("config error: ETCD_INITIAL_CLUSTER: duplicate member name %q", parts[0])
		}
		d.order = append(d.order, parts[0])
		d.peers[parts[0]] = parts[1]
	}
	return d, nil
}

// Names returns the member names in parse order.
func (d Descriptor) Names() []string { return append([]string(nil), d.order...) }

// PeerURL returns the peer URL for name, or ("", false) if absent.
func (d Descriptor) PeerURL(name string) (string, bool) {
	v, ok := d.peers[name]
	return v, ok
}

// Len is the number of members in the descriptor.
func (d Descriptor) Len() int { return len(d.peers) }

// LeaderName returns the lexicographically smallest member name — the
// bootstrap leader. Empty if the descriptor has no members.
func (d Descriptor) LeaderName() string {
	names := make([]string, 0, len(d.peers))
	for n := range d.peers {
		names = append(names, n)
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

// PeerToClientURL rewrites a peer URL's well-known peer port (2380) to
// the client port (2379).
func PeerToClientURL(peerURL string) string {
	return strings.Replace(peerURL, ":2380", ":2379", 1)
}

// LeaderEndpoint returns the bootstrap leader's client endpoint.
func (d Descriptor) LeaderEndpoint(leader string) (string, bool) {
	url, ok := d.peers[leader]
	if !ok {
		return "", false
	}
	return PeerToClientURL(url), true
}
