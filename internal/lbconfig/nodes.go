// Package lbconfig synthesizes the load balancer's configuration from
// POSTGRES_NODES.
package lbconfig

import (
	"fmt"
	"strings"

	"postgres-ha-supervisor/internal/envconfig"
)

// Node is a single PostgreSQL backend: its short name, host, database
// port, and HA-agent REST port used for health checks.
type Node struct {
	Name        string
	Host        string
	PgPort      string
	PatroniPort string
}

// ParseNodes parses POSTGRES_NODES ("host:pg_port:agent_port,...").
// Any entry with other than 3 colon-separated fields is a fatal
// configuration error.
func ParseNodes(postgresNodes string) ([]Node, error) {
	var nodes []Node
	for _, entry := range strings.Split(postgresNodes, ",") {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, &envconfig.ConfigError{
				Var: "POSTGRES_NODES",
				Msg: fmt.Sprintf("invalid node format %q: expected hostname:pgport:patroniport", entry),
			}
		}
		host := parts[0]
		name := host
		if idx := strings.Index(host, "."); idx >= 0 {
			name = host[:idx]
		}
		nodes = append(nodes, Node{
			Name:        name,
			Host:        host,
			PgPort:      parts[1],
			PatroniPort: parts[2],
		})
	}
	return nodes, nil
}
