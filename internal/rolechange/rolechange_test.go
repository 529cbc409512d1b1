package rolechange

import "testing"

func TestEventIgnoresNonRoleChangeAction(t *testing.T) {
	if ev := Event("on_start", "primary", "railway-pg-ha", "node-a"); ev != nil {
		t.Fatalf("expected nil event, got %+v", ev)
	}
}

func TestEventMapsPrimaryToFailover(t *testing.T) {
	ev := Event("on_role_change", "primary", "railway-pg-ha", "node-a")
	if ev == nil || ev.EventType() != "POSTGRES_HA_FAILOVER" {
		t.Fatalf("expected failover event, got %+v", ev)
	}
}

func TestEventMapsMasterToFailover(t *testing.T) {
	ev := Event("on_role_change", "master", "railway-pg-ha", "node-a")
	if ev == nil || ev.EventType() != "POSTGRES_HA_FAILOVER" {
		t.Fatalf("expected failover event, got %+v", ev)
	}
}

func TestEventMapsReplicaToRejoined(t *testing.T) {
	ev := Event("on_role_change", "replica", "railway-pg-ha", "node-b")
	if ev == nil || ev.EventType() != "POSTGRES_HA_REJOINED" {
		t.Fatalf("expected rejoined event, got %+v", ev)
	}
}

func TestEventMapsStandbyToRejoined(t *testing.T) {
	ev := Event("on_role_change", "standby", "railway-pg-ha", "node-b")
	if ev == nil || ev.EventType() != "POSTGRES_HA_REJOINED" {
		t.Fatalf("expected rejoined event, got %+v", ev)
	}
}

func TestEventMapsUnknownRoleToComponentError(t *testing.T) {
	ev := Event("on_role_change", "weird", "railway-pg-ha", "node-c")
	if ev == nil || ev.EventType() != "COMPONENT_ERROR" {
		t.Fatalf("expected component error event, got %+v", ev)
	}
}
