// Package rolechange implements the HA agent's role-change callback:
// map the agent's (action, role, scope) invocation to a telemetry
// event.
package rolechange

import (
	"fmt"

	"postgres-ha-supervisor/internal/telemetry"
)

// Event builds the telemetry event for a role-change callback
// invocation. Only action == "on_role_change" produces a meaningful
// event; any other action (or missing scope/node) falls back to a
// generic component-error event describing the unexpected state.
func Event(action, role, scope, node string) telemetry.Event {
	if action != "on_role_change" {
		return nil
	}

	switch role {
	case "master", "primary":
		return telemetry.PostgresFailover{Node: node, NewRole: role, Scope: scope}
	case "replica", "standby":
		return telemetry.PostgresRejoined{Node: node, Role: role, Scope: scope}
	default:
		return telemetry.ComponentError{
			Component: "patroni",
			Error:     fmt.Sprintf("unexpected on_role_change state: role=%q, scope=%q, node=%q", role, scope, node),
			Context:   "on_role_change",
		}
	}
}
