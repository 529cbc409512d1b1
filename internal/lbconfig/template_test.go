package lbconfig

import (
	"strings"
	"testing"
)

func baseConfig() Config {
	return Config{
		MaxConn:        "1000",
		TimeoutConnect: "10s",
		TimeoutClient:  "30m",
		TimeoutServer:  "30m",
		CheckInterval:  "3s",
	}
}

func TestParseNodesRejectsMalformedEntry(t *testing.T) {
	if _, err := ParseNodes("postgres-1.example.internal:5432"); err == nil {
		t.Fatal("expected error for entry missing a field")
	}
}

func TestParseNodesShortNameFromFirstDotSegment(t *testing.T) {
	nodes, err := ParseNodes("postgres-1.example.internal:5432:8008")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "postgres-1" {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
}

// Multi-node configs use HTTP health probes on the agent port and
// route traffic to the PostgreSQL port.
func TestRenderMultiNodeUsesHTTPHealthCheck(t *testing.T) {
	nodes, err := ParseNodes("postgres-1.example.internal:5432:8008,postgres-2.example.internal:5432:8008")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := Render(baseConfig(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"server postgres-1 postgres-1.example.internal:5432 check port 8008",
		"server postgres-2 postgres-2.example.internal:5432 check port 8008",
		"option httpchk",
		"http-check send meth GET uri /primary",
		"http-check send meth GET uri /replica",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered config missing %q\n---\n%s", want, out)
		}
	}
}

// Single-entry configs omit the HTTP probe and use a plain TCP check.
func TestRenderSingleNodeOmitsHTTPHealthCheck(t *testing.T) {
	nodes, err := ParseNodes("postgres-1.example.internal:5432:8008")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := Render(baseConfig(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(out, "option httpchk") {
		t.Errorf("single-node config should not use HTTP health check:\n%s", out)
	}
	if !strings.Contains(out, "server postgres-1 postgres-1.example.internal:5432 check resolvers railway") {
		t.Errorf("single-node config missing plain TCP server entry:\n%s", out)
	}
}
