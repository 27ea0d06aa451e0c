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
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var kindFolders = map[Kind]string{
	Copy:    "Copy_Logs",
	Parser:  "Parser_Logs",
	Skipped: "Skipped_Logs",
	Backup:  "Backup_Logs",
}

// FileStore keeps one plain-text file per (kind, date) under root, e.g.
// Copy_Logs/copy_logs_2024-10-01.log, one entry per line.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates the ledger folders under root if needed.
func NewFileStore(root string) (*FileStore, error) {
	for _, folder := range kindFolders {
		if err := os.MkdirAll(filepath.Join(root, folder), 0o755); err != nil {
			return nil, fmt.Errorf("error creating ledger folder: %w", err)
		}
	}
	return &FileStore{root: root}, nil
}

// Path returns the file holding the given partition.
func (s *FileStore) Path(kind Kind, partition string) string {
	return filepath.Join(s.root, kindFolders[kind], fmt.Sprintf("%s_%s.log", kind, partition))
}

func (s *FileStore) Append(_ context.Context, kind Kind, partition, line string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(kind, partition), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s ledger: %w", kind, err)
	}
	defer f.Close()

	if _, err := f.WriteString(sanitize(line) + "\n"); err != nil {
		return fmt.Errorf("appending to %s ledger: %w", kind, err)
	}
	return f.Sync()
}

func (s *FileStore) Query(ctx context.Context, kind Kind, filter Filter) ([]Entry, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions, err := s.partitions(kind)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, partition := range partitions {
		if filter.Partition != "" && filter.Partition != partition {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := readLines(s.Path(kind, partition))
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			if filter.matches(partition, line) {
				entries = append(entries, Entry{Kind: kind, Partition: partition, Line: line})
			}
		}
	}
	return entries, nil
}

// Remove rewrites every partition of kind without the matching lines.
// Partitions with no match are left untouched.
func (s *FileStore) Remove(ctx context.Context, kind Kind, match func(string) bool) (int, error) {
	if err := validKind(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions, err := s.partitions(kind)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		path := s.Path(kind, partition)
		lines, err := readLines(path)
		if err != nil {
			return removed, err
		}

		kept := make([]string, 0, len(lines))
		for _, line := range lines {
			if match(line) {
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) == len(lines) {
			continue
		}

		if err := rewrite(path, kept); err != nil {
			return removed, err
		}
		removed += len(lines) - len(kept)
	}
	return removed, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) partitions(kind Kind) ([]string, error) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(string(kind)) + `_(\d{4}-\d{2}-\d{2})\.log$`)
	dirEntries, err := os.ReadDir(filepath.Join(s.root, kindFolders[kind]))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s ledger folder: %w", kind, err)
	}

	var partitions []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if m := pattern.FindStringSubmatch(de.Name()); m != nil {
			partitions = append(partitions, m[1])
		}
	}
	sort.Strings(partitions)
	return partitions, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func rewrite(path string, lines []string) error {
	tmp := path + ".tmp"
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("rewriting ledger %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rewriting ledger %s: %w", path, err)
	}
	return nil
}
