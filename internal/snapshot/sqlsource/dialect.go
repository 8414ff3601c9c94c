package sqlsource

import (
	"fmt"
	"strconv"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	// Name is the configuration name ("sqlite" or "postgres").
	Name string
	// Driver is the database/sql driver name.
	Driver string

	blobType    string
	timeType    string
	placeholder func(n int) string
}

var (
	// SQLite uses the pure-Go modernc.org/sqlite driver.
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		blobType:    "BLOB",
		timeType:    "DATETIME",
		placeholder: func(int) string { return "?" },
	}

	// Postgres uses the lib/pq driver.
	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "postgres",
		blobType:    "BYTEA",
		timeType:    "TIMESTAMPTZ",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case SQLite.Name, "sqlite3":
		return SQLite, nil
	case Postgres.Name, "postgresql", "pq":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("sqlsource: unsupported driver %q", name)
	}
}

func (d Dialect) createTable() string {
	return `CREATE TABLE IF NOT EXISTS contract_state (
	contract_id TEXT NOT NULL,
	state_key TEXT NOT NULL,
	value ` + d.blobType + ` NOT NULL,
	updated_at ` + d.timeType + ` NOT NULL,
	PRIMARY KEY (contract_id, state_key)
)`
}

func (d Dialect) createIndex() string {
	return `CREATE INDEX IF NOT EXISTS contract_state_updated_at ON contract_state (updated_at DESC)`
}

func (d Dialect) selectRecent(limit int) string {
	q := `SELECT contract_id, state_key, value, updated_at FROM contract_state ORDER BY updated_at DESC`
	if limit > 0 {
		q += ` LIMIT ` + d.placeholder(1)
	}
	return q
}

func (d Dialect) upsert() string {
	return `INSERT INTO contract_state (contract_id, state_key, value, updated_at) VALUES (` +
		d.placeholder(1) + `, ` + d.placeholder(2) + `, ` + d.placeholder(3) + `, ` + d.placeholder(4) +
		`) ON CONFLICT (contract_id, state_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
}

func (d Dialect) count() string {
	return `SELECT COUNT(*) FROM contract_state`
}
