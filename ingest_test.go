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

package inspectsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/inspectsync/ledger"
)

func TestCopyNewFiles(t *testing.T) {
	p, cnf, _ := setupPipeline(t)
	ctx := context.Background()

	first := gofakeit.Regex("SN[0-9]{6}") + "_20241001.csv"
	writeSourceCSV(t, filepath.Join(cnf.MachineDataFolder, first), row("SN1", "PASS"))

	copied, err := p.CopyNewFiles(ctx, cnf.MachineDataFolder, cnf.Folders.Scan)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)
	assert.FileExists(t, filepath.Join(cnf.Folders.Scan, first))
	assert.FileExists(t, filepath.Join(cnf.MachineDataFolder, first), "source must be copied, not moved")
	assert.Equal(t, []string{first}, ledgerLines(t, p, ledger.Copy))

	// Removing the working copy must not cause a second copy.
	require.NoError(t, os.Remove(filepath.Join(cnf.Folders.Scan, first)))
	copied, err = p.CopyNewFiles(ctx, cnf.MachineDataFolder, cnf.Folders.Scan)
	require.NoError(t, err)
	assert.Zero(t, copied)
	assert.NoFileExists(t, filepath.Join(cnf.Folders.Scan, first))

	second := "SN2_20241001.csv"
	writeSourceCSV(t, filepath.Join(cnf.MachineDataFolder, second), row("SN2", "PASS"))
	copied, err = p.CopyNewFiles(ctx, cnf.MachineDataFolder, cnf.Folders.Scan)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)
	assert.Equal(t, []string{first, second}, ledgerLines(t, p, ledger.Copy))
}

func TestCopyNewFiles_RemembersEarlierPartitions(t *testing.T) {
	p, cnf, _ := setupPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.store.Append(ctx, ledger.Copy, "2023-01-15", "SN1_old.csv"))
	writeSourceCSV(t, filepath.Join(cnf.MachineDataFolder, "SN1_old.csv"), row("SN1", "PASS"))

	copied, err := p.CopyNewFiles(ctx, cnf.MachineDataFolder, cnf.Folders.Scan)
	require.NoError(t, err)
	assert.Zero(t, copied)
}

func TestCopyNewFiles_ContinuesAfterFailure(t *testing.T) {
	p, cnf, _ := setupPipeline(t)

	writeSourceCSV(t, filepath.Join(cnf.MachineDataFolder, "a.csv"), row("SN1", "PASS"))
	writeSourceCSV(t, filepath.Join(cnf.MachineDataFolder, "b.csv"), row("SN2", "PASS"))
	// A directory in the way makes the copy of a.csv fail.
	require.NoError(t, os.Mkdir(filepath.Join(cnf.Folders.Scan, "a.csv"), 0o755))

	copied, err := p.CopyNewFiles(context.Background(), cnf.MachineDataFolder, cnf.Folders.Scan)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)
	assert.Equal(t, []string{"b.csv"}, ledgerLines(t, p, ledger.Copy))
}

func TestCopyNewFiles_MissingSource(t *testing.T) {
	p, cnf, _ := setupPipeline(t)

	_, err := p.CopyNewFiles(context.Background(), filepath.Join(cnf.BaseDir, "absent"), cnf.Folders.Scan)
	assert.Error(t, err)
}

func TestCopyNewFiles_IncludesHiddenFiles(t *testing.T) {
	p, cnf, _ := setupPipeline(t)

	require.NoError(t, os.WriteFile(filepath.Join(cnf.MachineDataFolder, ".station.ini"), []byte("line=3\n"), 0o644))
	writeSourceCSV(t, filepath.Join(cnf.MachineDataFolder, "SN1_a.csv"), row("SN1", "PASS"))

	copied, err := p.CopyNewFiles(context.Background(), cnf.MachineDataFolder, cnf.Folders.Scan)
	require.NoError(t, err)
	assert.Equal(t, 2, copied)
	assert.FileExists(t, filepath.Join(cnf.Folders.Scan, ".station.ini"))
	assert.Equal(t, []string{".station.ini", "SN1_a.csv"}, ledgerLines(t, p, ledger.Copy))
}
