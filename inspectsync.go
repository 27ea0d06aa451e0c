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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/inspectsync/config"
	"github.com/blnkfinance/inspectsync/erp"
	"github.com/blnkfinance/inspectsync/internal/files"
	"github.com/blnkfinance/inspectsync/internal/notification"
	"github.com/blnkfinance/inspectsync/ledger"
	"github.com/blnkfinance/inspectsync/model"
)

var (
	tracer = otel.Tracer("inspectsync.pipeline")
)

// DocumentLayout names the batch document a cycle writes into the pending folder.
const DocumentLayout = "data_2006-01-02_15_04.json"

// ERPClient is the subset of the ERP resource API the synchroniser needs.
type ERPClient interface {
	Ping(ctx context.Context) error
	FindParent(ctx context.Context, batchID string) (string, bool, error)
	GetChildren(ctx context.Context, parent string) ([]erp.Child, error)
	CreateParent(ctx context.Context, batchID string, record model.InspectionRecord) (string, error)
	ReplaceChildren(ctx context.Context, parent string, children []erp.Child) error
}

// Pipeline runs the ingestion-to-synchronisation cycle over a ledger store.
type Pipeline struct {
	store ledger.Store

	// Now is the clock used for ledger partitions and document names.
	Now func() time.Time
	// ERP overrides the client built from each cycle's config snapshot.
	ERP ERPClient

	mu         sync.Mutex
	snapshot   atomic.Pointer[config.Configuration]
	cycleStart atomic.Pointer[time.Time]

	lastMu sync.RWMutex
	last   *model.CycleResult
}

// NewPipeline initializes a pipeline over the given ledger store.
//
// Parameters:
// - store ledger.Store: The copy, parser, skip and backup ledgers.
//
// Returns:
// - *Pipeline: A pipeline using the wall clock and the configured ERP endpoint.
func NewPipeline(store ledger.Store) *Pipeline {
	return &Pipeline{store: store, Now: time.Now}
}

// DocumentName returns the pending document name for a cycle started at t.
func DocumentName(t time.Time) string {
	return t.Format(DocumentLayout)
}

// RunCycle runs one full cycle: pending documents, intake, parsing, sync of
// the new document, then reconciliation and backup. Concurrent callers are
// serialised. Failures of single files or records are logged and never stop
// the cycle; only a missing configuration is returned as an error.
//
// Parameters:
// - ctx context.Context: Cancels waits between retries and remaining work.
//
// Returns:
// - model.CycleResult: What the cycle did.
// - error: An error if no configuration snapshot is available.
func (p *Pipeline) RunCycle(ctx context.Context) (model.CycleResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cnf, err := config.Fetch()
	if err != nil {
		return model.CycleResult{}, err
	}
	p.snapshot.Store(cnf)
	defer p.snapshot.Store(nil)

	start := p.now()
	p.cycleStart.Store(&start)
	defer p.cycleStart.Store(nil)

	result := model.CycleResult{
		CycleID:       model.GenerateUUIDWithSuffix("cycle"),
		ConfigVersion: cnf.Version,
		StartedAt:     start,
	}

	ctx, span := tracer.Start(ctx, "RunCycle", trace.WithAttributes(
		attribute.String("cycle_id", result.CycleID),
		attribute.Int64("config_version", int64(cnf.Version)),
	))
	defer span.End()

	log := logrus.WithFields(logrus.Fields{
		"cycle_id":       result.CycleID,
		"config_version": cnf.Version,
	})
	log.Info("Cycle started")

	result.DocumentsSynced, result.DocumentsPending = p.ProcessPendingDocuments(ctx)

	copied, err := p.CopyNewFiles(ctx, cnf.MachineDataFolder, cnf.Folders.Scan)
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Error("Intake failed")
	}
	result.FilesCopied = copied

	docPath := filepath.Join(cnf.Folders.Pending, DocumentName(start))
	result.FilesParsed, result.FilesSkipped = p.parseScanFolder(ctx, cnf, docPath)

	if _, err := os.Stat(docPath); err == nil {
		if p.ProcessDocument(ctx, docPath) {
			result.DocumentsSynced++
		} else {
			result.DocumentsPending++
		}
	}

	result.FilesBackedUp = p.reconcile(ctx, cnf, start)

	result.FinishedAt = p.now()
	p.setLast(result)

	span.SetAttributes(
		attribute.Int("files_copied", result.FilesCopied),
		attribute.Int("files_parsed", result.FilesParsed),
		attribute.Int("files_skipped", result.FilesSkipped),
		attribute.Int("documents_synced", result.DocumentsSynced),
		attribute.Int("documents_pending", result.DocumentsPending),
	)
	log.WithFields(logrus.Fields{
		"files_copied":      result.FilesCopied,
		"files_parsed":      result.FilesParsed,
		"files_skipped":     result.FilesSkipped,
		"files_backed_up":   len(result.FilesBackedUp),
		"documents_synced":  result.DocumentsSynced,
		"documents_pending": result.DocumentsPending,
		"duration":          result.Duration().String(),
	}).Info("Cycle finished")

	if result.DocumentsPending > 0 {
		notification.NotifyError(fmt.Errorf("cycle %s left %d batch document(s) pending in %s", result.CycleID, result.DocumentsPending, cnf.Folders.Pending))
	}
	return result, nil
}

// LastCycle returns the result of the most recent finished cycle.
func (p *Pipeline) LastCycle() (model.CycleResult, bool) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	if p.last == nil {
		return model.CycleResult{}, false
	}
	return *p.last, true
}

func (p *Pipeline) parseScanFolder(ctx context.Context, cnf *config.Configuration, docPath string) (parsed, skipped int) {
	names, err := files.ListFiles(cnf.Folders.Scan, ".csv")
	if err != nil {
		logrus.WithError(err).WithField("folder", cnf.Folders.Scan).Error("Unable to list scan folder")
		return 0, 0
	}

	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		outcome, err := p.ParseSourceFile(ctx, filepath.Join(cnf.Folders.Scan, name), docPath, cnf.RegistryFolders)
		if err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).WithField("file", name).Error("Unable to parse source file")
		}
		switch outcome {
		case OutcomeParsed:
			parsed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return parsed, skipped
}

func (p *Pipeline) reconcile(ctx context.Context, cnf *config.Configuration, day time.Time) []string {
	parsed, err := p.ParsedFiles(ctx, day)
	if err != nil {
		logrus.WithError(err).Error("Unable to read parser ledger")
		return nil
	}
	skipped, err := p.SkippedFiles(ctx, day)
	if err != nil {
		logrus.WithError(err).Error("Unable to read skip ledger")
		return nil
	}

	moved, err := p.BackupParsedFiles(ctx, cnf.Folders.Scan, cnf.Folders.Backup, parsed, skipped)
	if err != nil {
		logrus.WithError(err).Error("Backup failed")
	}
	return moved
}

// settings returns the running cycle's snapshot, or the current one when the
// pipeline stages are called on their own.
func (p *Pipeline) settings() (*config.Configuration, error) {
	if cnf := p.snapshot.Load(); cnf != nil {
		return cnf, nil
	}
	return config.Fetch()
}

// partition returns the ledger partition of the running cycle, so that
// everything a cycle writes lands where its reconciliation reads, even when
// the cycle runs past midnight. Outside a cycle it is today's partition.
func (p *Pipeline) partition() string {
	if start := p.cycleStart.Load(); start != nil {
		return ledger.Partition(*start)
	}
	return ledger.Partition(p.now())
}

// Drain blocks until a cycle in progress has finished.
func (p *Pipeline) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
}

func (p *Pipeline) erpClient(cnf *config.Configuration) ERPClient {
	if p.ERP != nil {
		return p.ERP
	}
	return erp.NewClient(cnf.ERP)
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Pipeline) setLast(result model.CycleResult) {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	p.last = &result
}
