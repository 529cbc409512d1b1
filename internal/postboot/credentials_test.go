package postboot

import "testing"

const sampleConfig = `
postgresql:
  authentication:
    replication:
      username: "replicator"
      password: "replpass"
    superuser:
      username: "postgres"
      password: "superpass"
  app_user:
    username: "appuser"
    password: "apppass"
    database: "appdb"
`

func TestParseCredentialsExtractsAllFields(t *testing.T) {
	creds, err := ParseCredentials([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.ReplicationName != "replicator" || creds.ReplicationPass != "replpass" {
		t.Fatalf("unexpected replication creds: %+v", creds)
	}
	if creds.SuperuserName != "postgres" || creds.SuperuserPassword != "superpass" {
		t.Fatalf("unexpected superuser creds: %+v", creds)
	}
	if creds.AppUser != "appuser" || creds.AppPassword != "apppass" || creds.AppDatabase != "appdb" {
		t.Fatalf("unexpected app creds: %+v", creds)
	}
}

func TestParseCredentialsMissingReplicationPassword(t *testing.T) {
	const cfg = `
postgresql:
  authentication:
    replication:
      username: "replicator"
    superuser:
      username: "postgres"
      password: "superpass"
`
	if _, err := ParseCredentials([]byte(cfg)); err == nil {
		t.Fatal("expected error for missing replication password")
	}
}

func TestParseCredentialsOptionalAppFieldsAbsent(t *testing.T) {
	const cfg = `
postgresql:
  authentication:
    replication:
      username: "replicator"
      password: "replpass"
    superuser:
      username: "postgres"
      password: "superpass"
`
	creds, err := ParseCredentials([]byte(cfg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.AppUser != "" || creds.AppDatabase != "" {
		t.Fatalf("expected empty optional app fields, got %+v", creds)
	}
}
