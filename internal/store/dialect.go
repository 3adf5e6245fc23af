package store

import (
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
	dialectMySQL    dialect = "mysql"
)

// sqlDriver is the database/sql driver name registered by the imports above.
func (d dialect) sqlDriver() string {
	switch d {
	case dialectPostgres:
		return "pgx"
	case dialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// rebind rewrites ? placeholders to $n for postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	idType := "TEXT"
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	text := "TEXT"
	switch d {
	case dialectPostgres:
		serial = "BIGSERIAL PRIMARY KEY"
	case dialectMySQL:
		idType = "VARCHAR(64)"
		serial = "BIGINT AUTO_INCREMENT PRIMARY KEY"
		text = "LONGTEXT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id ` + idType + ` PRIMARY KEY,
			source VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			state VARCHAR(32),
			tokens INTEGER DEFAULT 0,
			patches INTEGER DEFAULT 0,
			patch_errors INTEGER DEFAULT 0,
			bytes BIGINT DEFAULT 0,
			terminated BOOLEAN DEFAULT FALSE,
			text ` + text + `,
			tree ` + text + `,
			request ` + text + `,
			error ` + text + `,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			id ` + serial + `,
			event VARCHAR(64) NOT NULL,
			session_id VARCHAR(64),
			metadata ` + text + `,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	if d == dialectSQLite {
		stmts = append([]string{`PRAGMA journal_mode=WAL;`}, stmts...)
	}
	if d != dialectMySQL {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
			`CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_id)`,
		)
	}
	return stmts
}
