package postboot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// socketDSN builds a pgx connection string for the local Unix-socket
// superuser connection (no TCP, no password prompt dependency on
// inherited environment).
func socketDSN(superuser string) string {
	return fmt.Sprintf("postgres:///postgres?host=/var/run/postgresql&user=%s", superuser)
}

// ApplyUsers runs the post-bootstrap SQL sequence against the local
// superuser connection. Role setup runs inside one transaction;
// database creation runs as separate statements on the same
// connection, since CREATE DATABASE cannot execute inside a
// transaction block.
func ApplyUsers(ctx context.Context, creds Credentials) ([]string, error) {
	conn, err := pgx.Connect(ctx, socketDSN(creds.SuperuserName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer conn.Close(ctx)

	usersCreated, err := applyRoles(ctx, conn, creds)
	if err != nil {
		return nil, err
	}

	if err := applyDatabase(ctx, conn, creds); err != nil {
		return nil, err
	}

	return usersCreated, nil
}

func applyRoles(ctx context.Context, conn *pgx.Conn, creds Credentials) ([]string, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET password_encryption = 'scram-sha-256'"); err != nil {
		return nil, fmt.Errorf("failed to set password encryption: %w", err)
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("ALTER ROLE %s WITH PASSWORD %s", pgx.Identifier{creds.SuperuserName}.Sanitize(), quoteLiteral(creds.SuperuserPassword)),
	); err != nil {
		return nil, fmt.Errorf("failed to alter superuser: %w", err)
	}

	var replExists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT FROM pg_roles WHERE rolname = $1)", creds.ReplicationName).Scan(&replExists); err != nil {
		return nil, fmt.Errorf("failed to check replication role: %w", err)
	}
	replSQL := fmt.Sprintf("ALTER ROLE %s WITH REPLICATION LOGIN PASSWORD %s", pgx.Identifier{creds.ReplicationName}.Sanitize(), quoteLiteral(creds.ReplicationPass))
	if !replExists {
		replSQL = fmt.Sprintf("CREATE ROLE %s WITH REPLICATION LOGIN PASSWORD %s", pgx.Identifier{creds.ReplicationName}.Sanitize(), quoteLiteral(creds.ReplicationPass))
	}
	if _, err := tx.Exec(ctx, replSQL); err != nil {
		return nil, fmt.Errorf("failed to create/update replication role: %w", err)
	}

	usersCreated := []string{creds.SuperuserName, creds.ReplicationName}

	if creds.AppUser != "" && creds.AppUser != creds.SuperuserName && creds.AppPassword != "" {
		var appExists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT FROM pg_roles WHERE rolname = $1)", creds.AppUser).Scan(&appExists); err != nil {
			return nil, fmt.Errorf("failed to check app role: %w", err)
		}
		appSQL := fmt.Sprintf("ALTER ROLE %s WITH PASSWORD %s", pgx.Identifier{creds.AppUser}.Sanitize(), quoteLiteral(creds.AppPassword))
		if !appExists {
			appSQL = fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD %s", pgx.Identifier{creds.AppUser}.Sanitize(), quoteLiteral(creds.AppPassword))
		}
		if _, err := tx.Exec(ctx, appSQL); err != nil {
			return nil, fmt.Errorf("failed to create/update app role: %w", err)
		}
		usersCreated = append(usersCreated, creds.AppUser)
	}

	var postgresExists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT FROM pg_roles WHERE rolname = 'postgres')").Scan(&postgresExists); err != nil {
		return nil, fmt.Errorf("failed to check postgres compatibility role: %w", err)
	}
	if !postgresExists {
		if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE ROLE postgres WITH SUPERUSER LOGIN PASSWORD %s", quoteLiteral(creds.SuperuserPassword))); err != nil {
			return nil, fmt.Errorf("failed to create postgres compatibility role: %w", err)
		}
	} else if _, err := tx.Exec(ctx, "ALTER ROLE postgres WITH SUPERUSER"); err != nil {
		return nil, fmt.Errorf("failed to ensure postgres role is superuser: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit role setup: %w", err)
	}

	return usersCreated, nil
}

func applyDatabase(ctx context.Context, conn *pgx.Conn, creds Credentials) error {
	if creds.AppDatabase == "" || creds.AppDatabase == "postgres" {
		return nil
	}

	var dbExists bool
	if err := conn.QueryRow(ctx, "SELECT EXISTS(SELECT FROM pg_database WHERE datname = $1)", creds.AppDatabase).Scan(&dbExists); err != nil {
		return fmt.Errorf("failed to check app database: %w", err)
	}
	if !dbExists {
		if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{creds.AppDatabase}.Sanitize())); err != nil {
			return fmt.Errorf("failed to create app database: %w", err)
		}
	}

	if creds.AppUser != "" && creds.AppUser != creds.SuperuserName {
		grant := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", pgx.Identifier{creds.AppDatabase}.Sanitize(), pgx.Identifier{creds.AppUser}.Sanitize())
		if _, err := conn.Exec(ctx, grant); err != nil {
			return fmt.Errorf("failed to grant app database privileges: %w", err)
		}
	}

	return nil
}

// quoteLiteral escapes a SQL string literal: doubled single quotes,
// wrapped in quotes.
func quoteLiteral(s string) string {
	escaped := ""
	for _, r := range s {
		if r == '\'' {
			escaped += "''"
		} else {
			escaped += string(r)
		}
	}
	return "'" + escaped + "'"
}
