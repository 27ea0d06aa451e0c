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
	"net/http"
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDocument(t *testing.T) {
	p, cnf, _ := setupPipeline(t)
	fake := newFakeERP(t)

	path := filepath.Join(cnf.Folders.Pending, "data_2024-10-01_09_30.json")
	require.NoError(t, writeDocument(path, batch("M-100", "SN1", "SN2")))

	assert.True(t, p.ProcessDocument(context.Background(), path))
	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(cnf.Folders.Done, "data_2024-10-01_09_30.json"))
	assert.Equal(t, []string{"SN1", "SN2"}, serialsOf(fake.childrenOf("M-100")))
}

func TestProcessDocument_FailureLeavesFileUntouched(t *testing.T) {
	p, cnf, _ := setupPipeline(t)
	fake := newFakeERP(t)
	fake.setPing(http.StatusBadGateway)

	path := filepath.Join(cnf.Folders.Pending, "data_2024-10-01_09_30.json")
	require.NoError(t, writeDocument(path, batch("M-100", "SN1")))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.False(t, p.ProcessDocument(context.Background(), path))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, filepath.Join(cnf.Folders.Done, "data_2024-10-01_09_30.json"))
}

func TestProcessDocument_NoData(t *testing.T) {
	p, cnf, _ := setupPipeline(t)
	fake := newFakeERP(t)

	assert.False(t, p.ProcessDocument(context.Background(), filepath.Join(cnf.Folders.Pending, "missing.json")))

	bad := filepath.Join(cnf.Folders.Pending, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	assert.False(t, p.ProcessDocument(context.Background(), bad))
	assert.FileExists(t, bad)
	assert.Zero(t, fake.count(http.MethodHead))
}

func TestProcessDocument_KeepsEarlierDoneDocument(t *testing.T) {
	p, cnf, _ := setupPipeline(t)
	newFakeERP(t)

	name := "data_2024-10-01_09_30.json"
	require.NoError(t, os.WriteFile(filepath.Join(cnf.Folders.Done, name), []byte("earlier"), 0o644))
	path := filepath.Join(cnf.Folders.Pending, name)
	require.NoError(t, writeDocument(path, batch("M-100", "SN1")))

	require.True(t, p.ProcessDocument(context.Background(), path))
	earlier, err := os.ReadFile(filepath.Join(cnf.Folders.Done, name))
	require.NoError(t, err)
	assert.Equal(t, "earlier", string(earlier))
	assert.FileExists(t, filepath.Join(cnf.Folders.Done, "data_2024-10-01_09_30_1.json"))
}

func TestProcessPendingDocuments_OldestFirst(t *testing.T) {
	p, cnf, _ := setupPipeline(t)
	fake := newFakeERP(t)

	require.NoError(t, writeDocument(filepath.Join(cnf.Folders.Pending, "data_2024-10-01_09_40.json"), batch("M-100", "SN2")))
	require.NoError(t, writeDocument(filepath.Join(cnf.Folders.Pending, "data_2024-10-01_09_30.json"), batch("M-100", "SN1")))
	require.NoError(t, os.WriteFile(filepath.Join(cnf.Folders.Pending, "notes.txt"), []byte("ignored"), 0o644))

	synced, pending := p.ProcessPendingDocuments(context.Background())
	assert.Equal(t, 2, synced)
	assert.Zero(t, pending)
	assert.Equal(t, []string{"SN1", "SN2"}, serialsOf(fake.childrenOf("M-100")))
	assert.FileExists(t, filepath.Join(cnf.Folders.Pending, "notes.txt"))
}

func TestProcessPendingDocuments_Empty(t *testing.T) {
	p, _, _ := setupPipeline(t)
	fake := newFakeERP(t)

	synced, pending := p.ProcessPendingDocuments(context.Background())
	assert.Zero(t, synced)
	assert.Zero(t, pending)
	assert.Zero(t, fake.count(http.MethodHead))
}

func TestProcessDocument_InvalidSequenceStillSyncs(t *testing.T) {
	p, cnf, _ := setupPipeline(t)
	fake := newFakeERP(t)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	doc := batch("M-100", "SN1", "SN2")
	doc.Records[1].SequenceID = doc.Records[0].SequenceID
	path := filepath.Join(cnf.Folders.Pending, "data_2024-10-01_09_30.json")
	require.NoError(t, writeDocument(path, doc))

	assert.True(t, p.ProcessDocument(context.Background(), path))
	assert.Equal(t, []string{"SN1", "SN2"}, serialsOf(fake.childrenOf("M-100")))

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Batch document failed validation" {
			warned = true
			assert.Equal(t, path, entry.Data["document"])
		}
	}
	assert.True(t, warned)
}
