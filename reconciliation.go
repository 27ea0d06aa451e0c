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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/inspectsync/internal/files"
	"github.com/blnkfinance/inspectsync/ledger"
)

// ParsedFiles returns the names of the source files the parser ledger
// recorded on day.
func (p *Pipeline) ParsedFiles(ctx context.Context, day time.Time) ([]string, error) {
	return p.ledgerFiles(ctx, ledger.Parser, day, ledger.ParsedFilename)
}

// SkippedFiles returns the names of the source files the skip ledger
// recorded on day.
func (p *Pipeline) SkippedFiles(ctx context.Context, day time.Time) ([]string, error) {
	return p.ledgerFiles(ctx, ledger.Skipped, day, ledger.SkippedFilename)
}

func (p *Pipeline) ledgerFiles(ctx context.Context, kind ledger.Kind, day time.Time, extract func(string) (string, bool)) ([]string, error) {
	entries, err := p.store.Query(ctx, kind, ledger.Filter{Partition: ledger.Partition(day)})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", kind, err)
	}

	var names []string
	for _, e := range entries {
		if name, ok := extract(e.Line); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// BackupParsedFiles moves every file in scan that appears in parsed and not
// in skipped to backup, recording each move in the backup ledger. Skipped
// files stay in scan for a later identity pass.
//
// Parameters:
// - ctx context.Context: Stops the loop between files when cancelled.
// - scan string: The scan folder.
// - backup string: The backup folder.
// - parsed []string: File names from the parser ledger.
// - skipped []string: File names from the skip ledger.
//
// Returns:
// - []string: The names of the files moved.
// - error: An error if scan cannot be listed.
func (p *Pipeline) BackupParsedFiles(ctx context.Context, scan, backup string, parsed, skipped []string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "BackupParsedFiles")
	defer span.End()

	if len(parsed) == 0 {
		logrus.Info("No parsed files to back up")
		return nil, nil
	}

	isParsed := toSet(parsed)
	isSkipped := toSet(skipped)

	names, err := files.ListFiles(scan, "")
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing %s: %w", scan, err)
	}

	var moved []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		log := logrus.WithField("file", name)
		if _, ok := isSkipped[name]; ok {
			log.Info("File is skipped, left in scan folder")
			continue
		}
		if _, ok := isParsed[name]; !ok {
			continue
		}

		if err := files.MoveFile(filepath.Join(scan, name), filepath.Join(backup, name)); err != nil {
			log.WithError(err).Error("Unable to back up file")
			continue
		}
		moved = append(moved, name)

		line := ledger.BackupLine(name, scan, backup, p.now())
		if err := p.store.Append(ctx, ledger.Backup, p.partition(), line); err != nil {
			log.WithError(err).Error("Unable to record backup")
			continue
		}
		log.WithField("backup", backup).Info("File backed up")
	}
	return moved, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
