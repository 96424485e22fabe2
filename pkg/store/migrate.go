package store

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the embedded schema. It is idempotent and safe to run on
// every startup: the DDL itself is IF NOT EXISTS throughout, and an applied
// checksum is recorded in dinnerlock_migrations so an unchanged schema is a
// single SELECT.
//
// Migration DDL bypasses the adapter's statement guard on purpose. The
// analyzer bans CREATE for runtime statements; migrations run before the
// adapter exists and are the one sanctioned owner of DDL.
func Migrate(ctx context.Context, db Execer) error {
	checksum := schemaChecksum()

	var applied bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM dinnerlock_migrations WHERE checksum = $1)",
		checksum,
	).Scan(&applied)
	if err == nil && applied {
		logrus.WithField("checksum", checksum[:12]).Debug("schema unchanged, skipping migration")
		return nil
	}
	// An error here usually means dinnerlock_migrations does not exist yet;
	// fall through and create everything.

	statements := splitStatements(schemaSQL)
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration statement: %w", err)
		}
	}

	names := make([]string, 0, len(statements))
	for _, stmt := range statements {
		names = append(names, statementName(stmt))
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO dinnerlock_migrations (checksum, statements) VALUES ($1, $2) ON CONFLICT (checksum) DO NOTHING",
		checksum, pq.Array(names),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"checksum":   checksum[:12],
		"statements": len(statements),
	}).Info("schema migrated")
	return nil
}

func schemaChecksum() string {
	sum := sha256.Sum256([]byte(schemaSQL))
	return hex.EncodeToString(sum[:])
}

// splitStatements breaks the schema file into individual statements. The
// schema contains no string literals with semicolons, so a plain split is
// enough here.
func splitStatements(ddl string) []string {
	var out []string
	for _, raw := range strings.Split(ddl, ";") {
		stmt := stripSQLComments(raw)
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(raw)+";")
	}
	return out
}

func stripSQLComments(stmt string) string {
	var lines []string
	for _, line := range strings.Split(stmt, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// statementName derives a short label ("create_table sessions" style) for
// the migration record.
func statementName(stmt string) string {
	fields := strings.Fields(stripSQLComments(stmt))
	if len(fields) == 0 {
		return "unknown"
	}
	upTo := min(len(fields), 6)
	for i, f := range fields[:upTo] {
		switch strings.ToUpper(f) {
		case "TABLE", "INDEX":
			// Skip IF NOT EXISTS to land on the object name.
			for j := i + 1; j < len(fields); j++ {
				switch strings.ToUpper(fields[j]) {
				case "IF", "NOT", "EXISTS", "UNIQUE":
					continue
				default:
					return strings.ToLower(fields[0] + " " + f + " " + fields[j])
				}
			}
		}
	}
	return strings.ToLower(strings.Join(fields[:upTo], " "))
}
