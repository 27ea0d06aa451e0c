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

package model

import (
	"fmt"
	"strconv"
)

const (
	// SequencePrefix is the fixed two-character prefix of every sequence identifier.
	SequencePrefix = "PD"
	// SequenceBaseline is used for new documents and documents without records.
	SequenceBaseline = "PD0000"
)

// ParseSequenceID strips the two-character prefix and parses the remainder.
func ParseSequenceID(id string) (int, error) {
	if len(id) <= len(SequencePrefix) {
		return 0, fmt.Errorf("invalid sequence id %q", id)
	}
	n, err := strconv.Atoi(id[len(SequencePrefix):])
	if err != nil {
		return 0, fmt.Errorf("invalid sequence id %q: %w", id, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid sequence id %q: negative", id)
	}
	return n, nil
}

// FormatSequenceID pads n to four digits behind the prefix. Values above
// 9999 keep all their digits.
func FormatSequenceID(n int) string {
	return fmt.Sprintf("%s%04d", SequencePrefix, n)
}

// NextSequenceID returns the identifier following last.
func NextSequenceID(last string) (string, error) {
	n, err := ParseSequenceID(last)
	if err != nil {
		return "", err
	}
	return FormatSequenceID(n + 1), nil
}
