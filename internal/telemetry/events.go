package telemetry

import "fmt"

// Event is a tagged telemetry event. EventType returns the stable short
// identifier the ingest side groups on; Message renders a human-readable
// summary logged alongside the send.
type Event interface {
	EventType() string
	Message() string
}

type PostgresFailover struct {
	Node    string
	NewRole string
	Scope   string
}

func (e PostgresFailover) EventType() string { return "POSTGRES_HA_FAILOVER" }
func (e PostgresFailover) Message() string   { return fmt.Sprintf("%s promoted to %s", e.Node, e.NewRole) }

type PostgresRejoined struct {
	Node  string
	Role  string
	Scope string
}

func (e PostgresRejoined) EventType() string { return "POSTGRES_HA_REJOINED" }
func (e PostgresRejoined) Message() string   { return fmt.Sprintf("%s rejoined as %s", e.Node, e.Role) }

type BootstrapStarted struct {
	Node    string
	IsFresh bool
}

func (e BootstrapStarted) EventType() string { return "POSTGRES_HA_BOOTSTRAP_STARTED" }
func (e BootstrapStarted) Message() string {
	return fmt.Sprintf("Bootstrap started on %s (fresh=%v)", e.Node, e.IsFresh)
}

type BootstrapCompleted struct {
	Node         string
	DurationMs   int64
	UsersCreated []string
}

func (e BootstrapCompleted) EventType() string { return "POSTGRES_HA_BOOTSTRAP_COMPLETED" }
func (e BootstrapCompleted) Message() string {
	return fmt.Sprintf("Bootstrap completed on %s in %dms", e.Node, e.DurationMs)
}

type BootstrapFailed struct {
	Node  string
	Error string
	Phase string
}

func (e BootstrapFailed) EventType() string { return "POSTGRES_HA_BOOTSTRAP_FAILED" }
func (e BootstrapFailed) Message() string {
	return fmt.Sprintf("Bootstrap failed on %s during %s: %s", e.Node, e.Phase, e.Error)
}

type SslRenewed struct {
	Node   string
	Reason string
}

func (e SslRenewed) EventType() string { return "POSTGRES_HA_SSL_RENEWED" }
func (e SslRenewed) Message() string   { return fmt.Sprintf("SSL renewed on %s (%s)", e.Node, e.Reason) }

type HealthCheckFailed struct {
	Node                string
	ConsecutiveFailures int
	MaxFailures         int
}

func (e HealthCheckFailed) EventType() string { return "POSTGRES_HA_HEALTH_CHECK_FAILED" }
func (e HealthCheckFailed) Message() string {
	return fmt.Sprintf("Health check failed on %s (%d/%d)", e.Node, e.ConsecutiveFailures, e.MaxFailures)
}

type ProcessDied struct {
	Node     string
	Process  string
	ExitCode *int
}

func (e ProcessDied) EventType() string { return "POSTGRES_HA_PROCESS_DIED" }
func (e ProcessDied) Message() string {
	code := "none"
	if e.ExitCode != nil {
		code = fmt.Sprintf("%d", *e.ExitCode)
	}
	return fmt.Sprintf("%s died on %s (exit %s)", e.Process, e.Node, code)
}

type EtcdBootstrap struct {
	Node        string
	IsLeader    bool
	ClusterSize int
}

func (e EtcdBootstrap) EventType() string { return "ETCD_CLUSTER_BOOTSTRAP" }
func (e EtcdBootstrap) Message() string {
	return fmt.Sprintf("etcd bootstrap on %s (leader=%v, size=%d)", e.Node, e.IsLeader, e.ClusterSize)
}

type EtcdNodeJoined struct {
	Node     string
	JoinedAs string
}

func (e EtcdNodeJoined) EventType() string { return "ETCD_NODE_JOINED" }
func (e EtcdNodeJoined) Message() string   { return fmt.Sprintf("etcd %s joined as %s", e.Node, e.JoinedAs) }

type EtcdNodePromoted struct {
	Node string
}

func (e EtcdNodePromoted) EventType() string { return "ETCD_NODE_PROMOTED" }
func (e EtcdNodePromoted) Message() string   { return fmt.Sprintf("etcd %s promoted to voting", e.Node) }

type EtcdStaleMemberRemoved struct {
	Node      string
	RemovedID string
}

func (e EtcdStaleMemberRemoved) EventType() string { return "ETCD_STALE_MEMBER_REMOVED" }
func (e EtcdStaleMemberRemoved) Message() string {
	return fmt.Sprintf("etcd %s removed stale member %s", e.Node, e.RemovedID)
}

// EtcdDataCleared reports that a stale, unmarked data directory was
// wiped before a bootstrap attempt.
type EtcdDataCleared struct {
	Node   string
	Reason string
}

func (e EtcdDataCleared) EventType() string { return "ETCD_DATA_CLEARED" }
func (e EtcdDataCleared) Message() string {
	return fmt.Sprintf("etcd %s data directory cleared: %s", e.Node, e.Reason)
}

type EtcdRecoveryMode struct {
	Node   string
	Reason string
}

func (e EtcdRecoveryMode) EventType() string { return "ETCD_RECOVERY_MODE" }
func (e EtcdRecoveryMode) Message() string {
	return fmt.Sprintf("etcd %s recovery mode: %s", e.Node, e.Reason)
}

type EtcdStartupFailed struct {
	Node        string
	Attempt     int
	MaxAttempts int
	Error       string
}

func (e EtcdStartupFailed) EventType() string { return "ETCD_STARTUP_FAILED" }
func (e EtcdStartupFailed) Message() string {
	return fmt.Sprintf("etcd %s startup failed (%d/%d): %s", e.Node, e.Attempt, e.MaxAttempts, e.Error)
}

type HaproxyStarted struct {
	NodeCount      int
	SingleNodeMode bool
}

func (e HaproxyStarted) EventType() string { return "HAPROXY_STARTED" }
func (e HaproxyStarted) Message() string {
	return fmt.Sprintf("HAProxy started (%d nodes, single=%v)", e.NodeCount, e.SingleNodeMode)
}

type HaproxyConfigGenerating struct {
	Nodes []string
}

func (e HaproxyConfigGenerating) EventType() string { return "HAPROXY_CONFIG_GENERATING" }
func (e HaproxyConfigGenerating) Message() string {
	return fmt.Sprintf("Generating HAProxy config for: %v", e.Nodes)
}

// DcsUnavailable reports that the load balancer's probe loop found
// zero UP rows for a backend.
type DcsUnavailable struct {
	Node  string
	Scope string
}

func (e DcsUnavailable) EventType() string { return "DCS_UNAVAILABLE" }
func (e DcsUnavailable) Message() string {
	return fmt.Sprintf("%s: no healthy backend in scope %s", e.Node, e.Scope)
}

type ComponentStarted struct {
	Component string
	Version   string
}

func (e ComponentStarted) EventType() string { return "COMPONENT_STARTED" }
func (e ComponentStarted) Message() string {
	if e.Version == "" {
		return fmt.Sprintf("%s started", e.Component)
	}
	return fmt.Sprintf("%s v%s started", e.Component, e.Version)
}

type ComponentError struct {
	Component string
	Error     string
	Context   string
}

func (e ComponentError) EventType() string { return "COMPONENT_ERROR" }
func (e ComponentError) Message() string {
	return fmt.Sprintf("%s error in %s: %s", e.Component, e.Context, e.Error)
}
