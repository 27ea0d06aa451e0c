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

// Package ledger stores the pipeline's append-only logs: which files were
// copied, parsed, skipped and backed up. Entries are partitioned by calendar
// date and are never compacted.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blnkfinance/inspectsync/config"
)

// Kind names one ledger.
type Kind string

const (
	Copy    Kind = "copy_logs"
	Parser  Kind = "parser_logs"
	Skipped Kind = "skipped_logs"
	Backup  Kind = "backup_logs"
)

// PartitionLayout is the date format of a partition key.
const PartitionLayout = "2006-01-02"

// Kinds lists every ledger kind.
var Kinds = []Kind{Copy, Parser, Skipped, Backup}

// Entry is one ledger line together with where it lives.
type Entry struct {
	Kind      Kind
	Partition string
	Line      string
}

// Filter selects entries in Query. An empty Partition matches every
// partition and a nil Match matches every line.
type Filter struct {
	Partition string
	Match     func(line string) bool
}

func (f Filter) matches(partition, line string) bool {
	if f.Partition != "" && f.Partition != partition {
		return false
	}
	return f.Match == nil || f.Match(line)
}

// Store is an append-only event log. Remove is the one exception and exists
// so a file that later resolves can leave the skipped ledger.
type Store interface {
	Append(ctx context.Context, kind Kind, partition, line string) error
	Query(ctx context.Context, kind Kind, filter Filter) ([]Entry, error)
	Remove(ctx context.Context, kind Kind, match func(line string) bool) (int, error)
	Close() error
}

// Partition returns the partition key for t.
func Partition(t time.Time) string {
	return t.Format(PartitionLayout)
}

// Contains returns a Match func selecting lines that contain substr.
func Contains(substr string) func(string) bool {
	return func(line string) bool {
		return strings.Contains(line, substr)
	}
}

// Lines extracts the line text of entries.
func Lines(entries []Entry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line)
	}
	return lines
}

// NewStore opens the ledger backend selected in cnf.
func NewStore(cnf *config.Configuration) (Store, error) {
	switch cnf.Ledger.Driver {
	case config.LedgerDriverSQLite:
		return OpenSQLite(cnf.Ledger.Dns)
	case config.LedgerDriverFile, "":
		return NewFileStore(cnf.Folders.Logs)
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", cnf.Ledger.Driver)
	}
}

func sanitize(line string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(line)
}

func validKind(kind Kind) error {
	for _, k := range Kinds {
		if k == kind {
			return nil
		}
	}
	return fmt.Errorf("unknown ledger kind %q", kind)
}
