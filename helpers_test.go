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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/inspectsync/config"
	"github.com/blnkfinance/inspectsync/ledger"
	"github.com/blnkfinance/inspectsync/model"
)

const testERPURL = "https://erp.example/api/resource/PreAOI"

var testHeader = []string{
	ColumnSerial, ColumnModel, ColumnTop, ColumnResult, ColumnInspectionStart, ColumnInspectionEnd,
}

// testClock is a settable clock for Pipeline.Now.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setupPipeline(t *testing.T) (*Pipeline, *config.Configuration, *testClock) {
	t.Helper()
	base := t.TempDir()

	cnf := &config.Configuration{
		ProjectName:       "inspectsync-test",
		BaseDir:           base,
		MachineDataFolder: filepath.Join(base, "machine"),
		RegistryFolders:   []string{filepath.Join(base, "lm"), filepath.Join(base, "lm_bkp")},
		ERP: config.ERPConfig{
			URL:        testERPURL,
			APIKey:     "key",
			APISecret:  "secret",
			TimeoutSec: 5,
		},
		Folders: config.FolderConfig{
			Scan:    filepath.Join(base, "Scan_Folder"),
			Pending: filepath.Join(base, "JSON_Data_Folder"),
			Backup:  filepath.Join(base, "Backup_Folder"),
			Done:    filepath.Join(base, "Done_Folder"),
			Logs:    filepath.Join(base, "Logs_Folder"),
		},
		Retry: config.RetryConfig{ProbeAttempts: 2, RecordAttempts: 3},
	}
	for _, dir := range append([]string{cnf.MachineDataFolder}, cnf.RegistryFolders...) {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, config.EnsureFolders(cnf))
	config.MockConfig(cnf)

	store, err := ledger.NewFileStore(cnf.Folders.Logs)
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2024, 10, 1, 9, 30, 0, 0, time.Local)}
	p := NewPipeline(store)
	p.Now = clock.Now
	return p, cnf, clock
}

func writeSourceCSV(t *testing.T, path string, rows ...[]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(testHeader))
	for _, row := range rows {
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
}

func row(serial, result string) []string {
	return []string{serial, "M-100", "T", result, "2024-10-01 09:00:00", "2024-10-01 09:00:42"}
}

func writeRegistry(t *testing.T, dir, name, batchID string, serials ...string) {
	t.Helper()
	doc := model.RegistryDocument{BatchID: batchID, Entries: []model.RegistryEntry{}}
	for _, s := range serials {
		doc.Entries = append(doc.Entries, model.RegistryEntry{SerialNo: s})
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func readBatch(t *testing.T, path string) *model.BatchDocument {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc model.BatchDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	return &doc
}

func ledgerLines(t *testing.T, p *Pipeline, kind ledger.Kind) []string {
	t.Helper()
	entries, err := p.store.Query(context.Background(), kind, ledger.Filter{})
	require.NoError(t, err)
	return ledger.Lines(entries)
}

// fakeERP is an in-memory ERP resource endpoint served through httpmock.
type fakeERP struct {
	mu        sync.Mutex
	pingCode  int
	conflicts int
	seq       int
	parents   map[string]string
	children  map[string][]map[string]interface{}
	calls     []string
}

func newFakeERP(t *testing.T) *fakeERP {
	t.Helper()
	f := &fakeERP{
		pingCode: http.StatusOK,
		parents:  map[string]string{},
		children: map[string][]map[string]interface{}{},
	}

	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	child := `=~^` + regexp.QuoteMeta(testERPURL) + `/`
	httpmock.RegisterResponder("HEAD", testERPURL, f.ping)
	httpmock.RegisterResponder("GET", testERPURL, f.list)
	httpmock.RegisterResponder("POST", testERPURL, f.create)
	httpmock.RegisterResponder("GET", child, f.get)
	httpmock.RegisterResponder("PUT", child, f.put)
	return f
}

func (f *fakeERP) seed(batchID string, children ...map[string]interface{}) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	name := fmt.Sprintf("PAOI-%04d", f.seq)
	f.parents[batchID] = name
	f.children[name] = children
	return name
}

func (f *fakeERP) setPing(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingCode = code
}

func (f *fakeERP) childrenOf(batchID string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.children[f.parents[batchID]]
}

func (f *fakeERP) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeERP) ping(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Method)
	return httpmock.NewStringResponse(f.pingCode, ""), nil
}

func (f *fakeERP) list(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "LIST")

	var filters [][]string
	if err := json.Unmarshal([]byte(req.URL.Query().Get("filters")), &filters); err != nil || len(filters) == 0 || len(filters[0]) != 3 {
		return httpmock.NewStringResponse(http.StatusBadRequest, `{"exc_type":"ValidationError"}`), nil
	}
	data := []map[string]string{}
	if name, ok := f.parents[filters[0][2]]; ok {
		data = append(data, map[string]string{"name": name})
	}
	return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"data": data})
}

func (f *fakeERP) create(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Method)

	var body struct {
		ModelID string                   `json:"model_id"`
		PreAOI  []map[string]interface{} `json:"pre_aoi"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
	}
	f.seq++
	name := fmt.Sprintf("PAOI-%04d", f.seq)
	f.parents[body.ModelID] = name
	f.children[name] = body.PreAOI
	return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"data": map[string]string{"name": name}})
}

func (f *fakeERP) get(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Method)

	name := path.Base(req.URL.Path)
	children, ok := f.children[name]
	if !ok {
		return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
	}
	return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"name": name, "pre_aoi": children},
	})
}

func (f *fakeERP) put(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Method)

	if f.conflicts > 0 {
		f.conflicts--
		return httpmock.NewStringResponse(http.StatusConflict, `{"exc_type":"TimestampMismatchError"}`), nil
	}
	var body struct {
		PreAOI []map[string]interface{} `json:"pre_aoi"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
	}
	name := path.Base(req.URL.Path)
	f.children[name] = body.PreAOI
	return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"data": map[string]string{"name": name}})
}
