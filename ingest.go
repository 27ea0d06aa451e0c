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
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/inspectsync/internal/files"
	"github.com/blnkfinance/inspectsync/ledger"
)

// CopyNewFiles copies every file in src that no copy-ledger partition has
// recorded into dest, and records its name in today's partition. Originals
// stay in src. A failure on one file is logged and the rest continue.
//
// Parameters:
// - ctx context.Context: Stops the loop between files when cancelled.
// - src string: The machine data folder.
// - dest string: The scan folder.
//
// Returns:
// - int: The number of files copied.
// - error: An error if the ledger or src cannot be read.
func (p *Pipeline) CopyNewFiles(ctx context.Context, src, dest string) (int, error) {
	ctx, span := tracer.Start(ctx, "CopyNewFiles")
	defer span.End()

	entries, err := p.store.Query(ctx, ledger.Copy, ledger.Filter{})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("reading copy ledger: %w", err)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.Line] = struct{}{}
	}

	names, err := files.ListAllFiles(src)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("listing %s: %w", src, err)
	}

	copied := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		if _, ok := seen[name]; ok {
			continue
		}

		log := logrus.WithField("file", name)
		if err := files.CopyFile(filepath.Join(src, name), filepath.Join(dest, name)); err != nil {
			log.WithError(err).Error("Unable to copy source file")
			continue
		}
		seen[name] = struct{}{}
		copied++

		if err := p.store.Append(ctx, ledger.Copy, p.partition(), name); err != nil {
			// The copy stands; without the entry the file is copied again next cycle.
			log.WithError(err).Error("Unable to record copy")
			continue
		}
		log.Info("Copied source file")
	}
	return copied, nil
}
