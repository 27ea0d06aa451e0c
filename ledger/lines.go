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
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	ParsedMarker  = "parsed successfully"
	SkippedMarker = "Skipped"
)

// ParsedLine is the parser ledger entry for a successfully parsed file.
func ParsedLine(path string) string {
	return fmt.Sprintf("%s %s", path, ParsedMarker)
}

// SkippedLine is the skipped ledger entry for a file whose serial did not resolve.
func SkippedLine(path string) string {
	return fmt.Sprintf("%s %s", SkippedMarker, path)
}

// BackupLine records a file relocated into archival storage.
func BackupLine(name, src, dst string, at time.Time) string {
	return fmt.Sprintf("%s moved from %s to %s on %s", name, src, dst, at.Format("2006-01-02 15:04:05"))
}

// ParsedFilename extracts the file name from a parser ledger line.
func ParsedFilename(line string) (string, bool) {
	line = strings.TrimSpace(line)
	idx := strings.LastIndex(line, " "+ParsedMarker)
	if idx <= 0 {
		return "", false
	}
	return baseName(line[:idx])
}

// SkippedFilename extracts the file name from a skipped ledger line.
func SkippedFilename(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, SkippedMarker+" ") {
		return "", false
	}
	return baseName(line[len(SkippedMarker)+1:])
}

func baseName(path string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}
	// Lines written on another OS may use the other separator.
	path = strings.ReplaceAll(path, "\\", "/")
	name := filepath.Base(filepath.FromSlash(path))
	if name == "." || name == string(filepath.Separator) {
		return "", false
	}
	return name, true
}
