/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations is the schema source for the SQLite backend.
var Migrations = migrate.EmbedFileSystemMigrationSource{
	FileSystem: migrationFiles,
	Root:       "migrations",
}

// SQLiteStore keeps ledger entries in a single table, indexed by kind and
// day. It gives the same Query results as FileStore for the same appends.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at dsn and applies migrations.
// It is safe to call on an existing database.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := Migrate(db, migrate.Up); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLiteStore(db), nil
}

// Migrate applies the ledger schema in the given direction.
func Migrate(db *sql.DB, direction migrate.MigrationDirection) (int, error) {
	n, err := migrate.Exec(db, "sqlite3", Migrations, direction)
	if err != nil {
		return n, fmt.Errorf("failed to apply ledger migrations: %w", err)
	}
	return n, nil
}

func newSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// DB returns the underlying handle, used by the migrate command.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Append(ctx context.Context, kind Kind, partition, line string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ledger_entries (kind, day, line) VALUES (?, ?, ?)",
		string(kind), partition, sanitize(line))
	if err != nil {
		return fmt.Errorf("appending to %s ledger: %w", kind, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, kind Kind, filter Filter) ([]Entry, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}

	query := "SELECT day, line FROM ledger_entries WHERE kind = ?"
	args := []interface{}{string(kind)}
	if filter.Partition != "" {
		query += " AND day = ?"
		args = append(args, filter.Partition)
	}
	query += " ORDER BY day, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s ledger: %w", kind, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var day, line string
		if err := rows.Scan(&day, &line); err != nil {
			return nil, fmt.Errorf("scanning %s ledger: %w", kind, err)
		}
		if filter.matches(day, line) {
			entries = append(entries, Entry{Kind: kind, Partition: day, Line: line})
		}
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Remove(ctx context.Context, kind Kind, match func(string) bool) (int, error) {
	if err := validKind(kind); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, "SELECT id, line FROM ledger_entries WHERE kind = ?", string(kind))
	if err != nil {
		return 0, fmt.Errorf("querying %s ledger: %w", kind, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		var line string
		if err := rows.Scan(&id, &line); err != nil {
			rows.Close()
			return 0, err
		}
		if match(line) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ledger_entries WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("removing from %s ledger: %w", kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
