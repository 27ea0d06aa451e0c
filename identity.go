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
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/inspectsync/internal/files"
	"github.com/blnkfinance/inspectsync/ledger"
	"github.com/blnkfinance/inspectsync/model"
)

// ResolveIdentity looks serial up in the laser-marking registry documents
// under folders, scanned in the given order with files in lexical order. The
// first document listing serial wins. On a match every skip-ledger line
// mentioning serial is removed, so the file it came from is retried as parsed.
//
// Parameters:
// - ctx context.Context: Stops the scan when cancelled.
// - serial string: The board serial number.
// - folders []string: Registry folders in priority order.
//
// Returns:
// - string: The batch identifier (model_id) of the matching document.
// - bool: Whether a match was found.
func (p *Pipeline) ResolveIdentity(ctx context.Context, serial string, folders []string) (string, bool) {
	ctx, span := tracer.Start(ctx, "ResolveIdentity")
	defer span.End()

	log := logrus.WithField("serial_no", serial)
	for _, folder := range folders {
		names, err := files.ListFiles(folder, ".json")
		if err != nil {
			log.WithError(err).WithField("folder", folder).Warn("Unable to read registry folder")
			continue
		}

		for _, name := range names {
			if ctx.Err() != nil {
				return "", false
			}
			path := filepath.Join(folder, name)
			doc, err := readRegistryDocument(path)
			if err != nil {
				log.WithError(err).WithField("file", path).Warn("Skipping unreadable registry file")
				continue
			}
			if !doc.Contains(serial) {
				continue
			}

			log = log.WithFields(logrus.Fields{"model_id": doc.BatchID, "file": path})
			if doc.BatchID == "" {
				log.Warn("Registry document has no model_id")
			}
			log.Info("Serial found in registry")
			p.clearSkipped(ctx, serial)
			return doc.BatchID, true
		}
	}

	log.Info("Serial not found in any registry folder")
	return "", false
}

func (p *Pipeline) clearSkipped(ctx context.Context, serial string) {
	removed, err := p.store.Remove(ctx, ledger.Skipped, ledger.Contains(serial))
	if err != nil {
		logrus.WithError(err).WithField("serial_no", serial).Error("Unable to update skip ledger")
		return
	}
	if removed > 0 {
		logrus.WithFields(logrus.Fields{"serial_no": serial, "removed": removed}).Info("Cleared skip ledger entries")
	}
}

func readRegistryDocument(path string) (*model.RegistryDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc model.RegistryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
