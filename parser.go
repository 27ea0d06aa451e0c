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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/inspectsync/internal/files"
	"github.com/blnkfinance/inspectsync/ledger"
	"github.com/blnkfinance/inspectsync/model"
)

// Source file columns.
const (
	ColumnSerial          = "Board serial number"
	ColumnModel           = "Model"
	ColumnTop             = "Top"
	ColumnResult          = "Result(Operator Confirmation)"
	ColumnInspectionStart = "Inspection start"
	ColumnInspectionEnd   = "Inspection end"
)

var sourceColumns = []string{
	ColumnSerial,
	ColumnModel,
	ColumnTop,
	ColumnResult,
	ColumnInspectionStart,
	ColumnInspectionEnd,
}

var (
	// ErrNoRows is returned for a source file without data rows.
	ErrNoRows = errors.New("no data rows")
	// ErrNoSerial is returned when the first row has no board serial number.
	ErrNoSerial = errors.New("first row has no board serial number")
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = files.ErrMissingColumn
)

// ParseOutcome tells what ParseSourceFile did with a file.
type ParseOutcome int

const (
	// OutcomeInvalid means the file could not be used and nothing was written.
	OutcomeInvalid ParseOutcome = iota
	// OutcomeSkipped means the serial was not in any registry and a skip line was written.
	OutcomeSkipped
	// OutcomeParsed means the rows were appended to the batch document.
	OutcomeParsed
)

func (o ParseOutcome) String() string {
	switch o {
	case OutcomeParsed:
		return "parsed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "invalid"
	}
}

// ParseSourceFile turns the rows of csvPath into records appended to the batch
// document at docPath, using the first row's serial to resolve the batch.
// Unresolved files get a skip-ledger line and leave the document untouched.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - csvPath string: The source file in the scan folder.
// - docPath string: The cycle's batch document.
// - folders []string: Registry folders for identity resolution.
//
// Returns:
// - ParseOutcome: Parsed, skipped or invalid.
// - error: An error if the file is invalid or the document cannot be written.
func (p *Pipeline) ParseSourceFile(ctx context.Context, csvPath, docPath string, folders []string) (ParseOutcome, error) {
	ctx, span := tracer.Start(ctx, "ParseSourceFile")
	defer span.End()

	log := logrus.WithField("file", csvPath)

	rows, err := readSourceFile(csvPath)
	if err != nil {
		span.RecordError(err)
		return OutcomeInvalid, err
	}
	if len(rows) == 0 {
		log.Error("No data found in source file")
		return OutcomeInvalid, fmt.Errorf("%s: %w", csvPath, ErrNoRows)
	}
	serial := rows[0][ColumnSerial]
	if serial == "" {
		log.Error("Board serial number not found in source file")
		return OutcomeInvalid, fmt.Errorf("%s: %w", csvPath, ErrNoSerial)
	}

	batchID, found := p.ResolveIdentity(ctx, serial, folders)
	if !found {
		if err := p.store.Append(ctx, ledger.Skipped, p.partition(), ledger.SkippedLine(csvPath)); err != nil {
			return OutcomeInvalid, fmt.Errorf("recording skip of %s: %w", csvPath, err)
		}
		log.WithField("serial_no", serial).Info("Serial not registered, file skipped")
		return OutcomeSkipped, nil
	}

	doc, err := loadOrInitDocument(docPath)
	if err != nil {
		span.RecordError(err)
		return OutcomeInvalid, err
	}

	last := doc.LastSequenceID()
	if _, err := model.ParseSequenceID(last); err != nil {
		log.WithError(err).Warn("Invalid last sequence id, restarting from baseline")
		last = model.SequenceBaseline
	}

	defects := p.defectCounter(ctx, csvPath)
	for i, row := range rows {
		if row[ColumnSerial] == "" {
			log.WithField("row", i+2).Warn("Row has no board serial number, ignored")
			continue
		}
		next, err := model.NextSequenceID(last)
		if err != nil {
			return OutcomeInvalid, err
		}
		last = next

		record := model.InspectionRecord{
			SerialNo:        row[ColumnSerial],
			Model:           row[ColumnModel],
			Top:             row[ColumnTop],
			Result:          row[ColumnResult],
			InspectionStart: row[ColumnInspectionStart],
			InspectionEnd:   row[ColumnInspectionEnd],
			SequenceID:      next,
		}
		record.DefectCount = defects.next(record)
		doc.Records = append(doc.Records, record)
	}
	doc.BatchID = batchID

	if err := writeDocument(docPath, doc); err != nil {
		span.RecordError(err)
		return OutcomeInvalid, err
	}
	if err := p.store.Append(ctx, ledger.Parser, p.partition(), ledger.ParsedLine(csvPath)); err != nil {
		// The rows are already in the document; the file is simply not backed up this cycle.
		log.WithError(err).Error("Unable to record parsed file")
	}

	log.WithFields(logrus.Fields{
		"model_id": batchID,
		"records":  len(doc.Records),
		"document": docPath,
	}).Info("Source file parsed")
	return OutcomeParsed, nil
}

// defectCounter yields the ng value for each record of one source file. A
// non-pass record gets the number of copy-ledger lines containing the file
// name up to its first underscore; a pass record repeats the last value.
type defectCounter struct {
	count func() int
	last  int
}

func (p *Pipeline) defectCounter(ctx context.Context, csvPath string) *defectCounter {
	prefix := strings.SplitN(filepath.Base(csvPath), "_", 2)[0]
	var cached *int
	return &defectCounter{count: func() int {
		if cached != nil {
			return *cached
		}
		entries, err := p.store.Query(ctx, ledger.Copy, ledger.Filter{Match: ledger.Contains(prefix)})
		if err != nil {
			logrus.WithError(err).WithField("file", csvPath).Error("Unable to read copy ledger for defect count")
			return 0
		}
		n := len(entries)
		cached = &n
		return n
	}}
}

func (d *defectCounter) next(record model.InspectionRecord) int {
	if !record.Passed() {
		d.last = d.count()
	}
	return d.last
}

func readSourceFile(path string) ([]files.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := files.ReadCSV(f, sourceColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// loadOrInitDocument reads the batch document at path. A missing or empty
// file is initialised on disk with the empty structure. A file that is not a
// batch document is replaced by an empty one, which loses its contents.
func loadOrInitDocument(path string) (*model.BatchDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		doc := model.NewBatchDocument()
		if err := writeDocument(path, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	var doc model.BatchDocument
	if err := json.Unmarshal(data, &doc); err != nil || doc.Records == nil {
		logrus.WithError(err).WithField("document", path).Warn("Batch document is malformed, starting a new one; previous records may be lost")
		return model.NewBatchDocument(), nil
	}
	return &doc, nil
}

func readDocument(path string) (*model.BatchDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc model.BatchDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if doc.Records == nil {
		return nil, fmt.Errorf("%s has no pre_aoi records", path)
	}
	if err := doc.Validate(); err != nil {
		// Records are still sent; the ERP upserts by serial_no.
		logrus.WithError(err).WithField("document", path).Warn("Batch document failed validation")
	}
	return &doc, nil
}

func writeDocument(path string, doc *model.BatchDocument) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	return files.WriteFileAtomic(path, data, 0o644)
}
