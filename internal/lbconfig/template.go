package lbconfig

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// ConfigFile is the fixed path the launcher writes haproxy.cfg to and
// execs the balancer binary against.
const ConfigFile = "/usr/local/etc/haproxy/haproxy.cfg"

const configTemplate = `global
    maxconn {{.MaxConn}}
    log stdout format raw local0

defaults
    log global
    mode tcp
    retries 3
    timeout connect {{.TimeoutConnect}}
    timeout client {{.TimeoutClient}}
    timeout server {{.TimeoutServer}}
    timeout check 5s

resolvers railway
    parse-resolv-conf
    resolve_retries 3
    timeout resolve 1s
    timeout retry   1s
    hold other      10s
    hold refused    10s
    hold nx         10s
    hold timeout    10s
    hold valid      10s
    hold obsolete   10s

# Stats page for monitoring
listen stats
    bind *:8404
    mode http
    stats enable
    stats uri /stats
    stats refresh 10s

# Primary PostgreSQL (read-write)
frontend postgresql_primary
    bind *:5432
    default_backend postgresql_primary_backend

{{.PrimaryBackend}}

# Replica PostgreSQL (read-only)
frontend postgresql_replicas
    bind *:5433
    default_backend postgresql_replicas_backend

{{.ReplicaBackend}}
`

var parsedConfigTemplate = template.Must(template.New("haproxy.cfg").Parse(configTemplate))

type templateData struct {
	MaxConn        string
	TimeoutConnect string
	TimeoutClient  string
	TimeoutServer  string
	PrimaryBackend string
	ReplicaBackend string
}

// Render builds the complete haproxy.cfg text for the given nodes and
// tuning config. A single node omits the HTTP health check in favor of
// a plain TCP probe: with no peers there is no HA agent quorum deciding
// primary/replica, so the sole node is treated as always the primary.
func Render(cfg Config, nodes []Node) (string, error) {
	singleNode := len(nodes) == 1

	serverEntries := generateServerEntries(nodes, singleNode)
	primaryBackend := generatePrimaryBackend(cfg, serverEntries, singleNode)
	replicaBackend := generateReplicaBackend(cfg, serverEntries, singleNode)

	data := templateData{
		MaxConn:        cfg.MaxConn,
		TimeoutConnect: cfg.TimeoutConnect,
		TimeoutClient:  cfg.TimeoutClient,
		TimeoutServer:  cfg.TimeoutServer,
		PrimaryBackend: primaryBackend,
		ReplicaBackend: replicaBackend,
	}

	var buf bytes.Buffer
	if err := parsedConfigTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render haproxy config: %w", err)
	}
	return buf.String(), nil
}

func generateServerEntries(nodes []Node, singleNode bool) string {
	lines := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if singleNode {
			lines = append(lines, fmt.Sprintf("    server %s %s:%s check resolvers railway resolve-prefer ipv4", n.Name, n.Host, n.PgPort))
		} else {
			lines = append(lines, fmt.Sprintf("    server %s %s:%s check port %s resolvers railway resolve-prefer ipv4", n.Name, n.Host, n.PgPort, n.PatroniPort))
		}
	}
	return strings.Join(lines, "\n")
}

func generatePrimaryBackend(cfg Config, serverEntries string, singleNode bool) string {
	if singleNode {
		return fmt.Sprintf("backend postgresql_primary_backend\n    default-server inter %s fall 3 rise 2 on-marked-down shutdown-sessions\n%s", cfg.CheckInterval, serverEntries)
	}
	return fmt.Sprintf("backend postgresql_primary_backend\n    option httpchk\n    http-check send meth GET uri /primary\n    http-check expect status 200\n    default-server inter %s fall 3 rise 2 on-marked-down shutdown-sessions\n%s", cfg.CheckInterval, serverEntries)
}

func generateReplicaBackend(cfg Config, serverEntries string, singleNode bool) string {
	if singleNode {
		return fmt.Sprintf("backend postgresql_replicas_backend\n    balance roundrobin\n    default-server inter %s fall 3 rise 2 on-marked-down shutdown-sessions\n%s", cfg.CheckInterval, serverEntries)
	}
	return fmt.Sprintf("backend postgresql_replicas_backend\n    balance roundrobin\n    option httpchk\n    http-check send meth GET uri /replica\n    http-check expect status 200\n    default-server inter %s fall 3 rise 2 on-marked-down shutdown-sessions\n%s", cfg.CheckInterval, serverEntries)
}
