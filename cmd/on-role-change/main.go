// Command on-role-change is the HA agent's role-change callback. It is
// invoked as: on-role-change <action> <role> <scope>, and must never
// block the agent — it always exits 0.
package main

import (
	"os"

	"postgres-ha-supervisor/internal/envconfig"
	"postgres-ha-supervisor/internal/obslog"
	"postgres-ha-supervisor/internal/rolechange"
	"postgres-ha-supervisor/internal/telemetry"
)

func main() {
	args := os.Args[1:]

	var action, role, scope string
	if len(args) > 0 {
		action = args[0]
	}
	if len(args) > 1 {
		role = args[1]
	}
	if len(args) > 2 {
		scope = args[2]
	}

	node := envconfig.StringDefault("PATRONI_NAME", "")
	logger := obslog.New("on-role-change")
	telem := telemetry.FromEnv("postgres-ha", logger)

	if event := rolechange.Event(action, role, scope, node); event != nil {
		telem.SendSync(event)
	}

	os.Exit(0)
}
