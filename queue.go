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
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/inspectsync/internal/files"
)

// ProcessPendingDocuments retries every batch document left in the pending
// folder, oldest first. Document names embed their creation time, so name
// order is age order.
//
// Returns:
// - int: Documents synchronised and moved to the done folder.
// - int: Documents still pending.
func (p *Pipeline) ProcessPendingDocuments(ctx context.Context) (synced, pending int) {
	ctx, span := tracer.Start(ctx, "ProcessPendingDocuments")
	defer span.End()

	cnf, err := p.settings()
	if err != nil {
		logrus.WithError(err).Error("No configuration, pending documents not processed")
		return 0, 0
	}

	names, err := files.ListFiles(cnf.Folders.Pending, ".json")
	if err != nil {
		span.RecordError(err)
		logrus.WithError(err).WithField("folder", cnf.Folders.Pending).Error("Unable to list pending documents")
		return 0, 0
	}
	if len(names) == 0 {
		logrus.Info("No pending documents")
		return 0, 0
	}

	for _, name := range names {
		if ctx.Err() != nil {
			pending++
			continue
		}
		if p.ProcessDocument(ctx, filepath.Join(cnf.Folders.Pending, name)) {
			synced++
		} else {
			pending++
		}
	}
	return synced, pending
}

// ProcessDocument synchronises the document at path and, if every record
// succeeded, moves it to the done folder. Otherwise the file stays where it
// is, unmodified, for the next cycle.
func (p *Pipeline) ProcessDocument(ctx context.Context, path string) bool {
	log := logrus.WithField("document", path)

	cnf, err := p.settings()
	if err != nil {
		log.WithError(err).Error("No configuration, document not processed")
		return false
	}

	doc, err := readDocument(path)
	if err != nil {
		log.WithError(err).Error("No data to synchronise")
		return false
	}

	report := p.SyncDocument(ctx, doc)
	if !report.OK() {
		log.WithFields(logrus.Fields{
			"model_id": report.BatchID,
			"synced":   report.Synced,
			"total":    report.Total,
			"failed":   strings.Join(report.Failed, ","),
		}).WithError(report.Err).Error("Document not fully synchronised, kept in pending")
		return false
	}

	dst := uniquePath(cnf.Folders.Done, filepath.Base(path))
	if err := files.MoveFile(path, dst); err != nil {
		log.WithError(err).Error("Document synchronised but could not be moved to done")
		return false
	}
	log.WithFields(logrus.Fields{
		"model_id": report.BatchID,
		"parent":   report.Parent,
		"records":  report.Synced,
		"done":     dst,
	}).Info("Document synchronised")
	return true
}

// uniquePath returns dir/name, or dir/name with a numeric suffix when a
// document of the same name was already finished.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, stem+"_"+strconv.Itoa(i)+ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
