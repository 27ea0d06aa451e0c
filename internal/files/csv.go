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

package files

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMissingColumn is returned when a CSV header lacks a required column.
var ErrMissingColumn = errors.New("required column not found in CSV")

// Row maps the requested column names to a record's values.
type Row map[string]string

// ReadCSV reads a CSV with a header row and returns one Row per record, keyed
// by the names in columns. Header names are matched case-insensitively after
// trimming, and a leading UTF-8 byte order mark is ignored. Blank records are
// skipped. Records may be shorter than the header; missing cells read as "".
func ReadCSV(reader io.Reader, columns []string) ([]Row, error) {
	csvReader := csv.NewReader(bufio.NewReader(reader))
	csvReader.FieldsPerRecord = -1

	headers, err := csvReader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading CSV headers: %w", err)
	}

	columnMap, err := createColumnMap(headers, columns)
	if err != nil {
		return nil, err
	}

	var rows []Row
	rowNum := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			return nil, fmt.Errorf("error reading row %d: %w", rowNum, err)
		}
		if blank(record) {
			continue
		}

		row := make(Row, len(columns))
		for _, col := range columns {
			row[col] = field(record, columnMap[col])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func createColumnMap(headers, required []string) (map[string]int, error) {
	byName := make(map[string]int, len(headers))
	for i, header := range headers {
		if i == 0 {
			header = strings.TrimPrefix(header, "\ufeff")
		}
		key := strings.ToLower(strings.TrimSpace(header))
		if _, seen := byName[key]; !seen {
			byName[key] = i
		}
	}

	columnMap := make(map[string]int, len(required))
	for _, col := range required {
		index, exists := byName[strings.ToLower(col)]
		if !exists {
			return nil, fmt.Errorf("%w: '%s'", ErrMissingColumn, col)
		}
		columnMap[col] = index
	}
	return columnMap, nil
}

func field(record []string, index int) string {
	if index < len(record) {
		return strings.TrimSpace(record[index])
	}
	return ""
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
