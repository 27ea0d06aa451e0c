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
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/inspectsync/config"
)

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStore_ReopenKeepsEntries(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ledger.db")
	store, err := OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), Copy, "2024-10-01", "a.csv"))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(dsn)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Query(context.Background(), Copy, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, Lines(entries))
}

func TestSQLiteStore_AppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs("copy_logs", "2024-10-01", "a.csv").
		WillReturnError(errors.New("disk I/O error"))

	store := newSQLiteStore(db)
	err = store.Append(context.Background(), Copy, "2024-10-01", "a.csv")
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_QueryByPartition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"day", "line"}).
		AddRow("2024-10-02", "/scan/a.csv parsed successfully").
		AddRow("2024-10-02", "/scan/b.csv parsed successfully")
	mock.ExpectQuery("SELECT day, line FROM ledger_entries WHERE kind = \\? AND day = \\?").
		WithArgs("parser_logs", "2024-10-02").
		WillReturnRows(rows)

	store := newSQLiteStore(db)
	entries, err := store.Query(context.Background(), Parser, Filter{Partition: "2024-10-02"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	fileStore, err := NewStore(&config.Configuration{Folders: config.FolderConfig{Logs: dir}})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, fileStore)

	sqliteStore, err := NewStore(&config.Configuration{Ledger: config.LedgerConfig{Driver: config.LedgerDriverSQLite, Dns: filepath.Join(dir, "ledger.db")}})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, sqliteStore)
	require.NoError(t, sqliteStore.Close())

	_, err = NewStore(&config.Configuration{Ledger: config.LedgerConfig{Driver: "mongo"}})
	assert.Error(t, err)
}
