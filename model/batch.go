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
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// InspectionRecord is one parsed row of an inspection-result file.
// The JSON names match the ERP child table, which is why the sequence
// identifier and defect counter travel as pd_no and ng.
type InspectionRecord struct {
	SerialNo        string `json:"serial_no"`
	Model           string `json:"model"`
	Top             string `json:"top"`
	Result          string `json:"result"`
	InspectionStart string `json:"inspection_start"`
	InspectionEnd   string `json:"inspection_end"`
	SequenceID      string `json:"pd_no"`
	DefectCount     int    `json:"ng"`
}

// BatchDocument is the unit of synchronization: a batch identifier resolved
// from the registry plus the records parsed into it during one cycle.
type BatchDocument struct {
	BatchID string             `json:"model_id"`
	Records []InspectionRecord `json:"pre_aoi"`
}

// ErrNoBatchID is returned when a document has no batch identifier to
// synchronize against.
var ErrNoBatchID = errors.New("batch document has no model_id")

// Passed reports whether the operator confirmed the board as a pass.
func (r InspectionRecord) Passed() bool {
	return strings.EqualFold(strings.TrimSpace(r.Result), "pass")
}

// Fields returns the record as a generic map, the shape the ERP uses for
// child rows. Merging into an existing child is done key by key so fields
// the ERP added (name, idx, parent...) survive.
func (r InspectionRecord) Fields() map[string]interface{} {
	return map[string]interface{}{
		"serial_no":        r.SerialNo,
		"model":            r.Model,
		"top":              r.Top,
		"result":           r.Result,
		"inspection_start": r.InspectionStart,
		"inspection_end":   r.InspectionEnd,
		"pd_no":            r.SequenceID,
		"ng":               r.DefectCount,
	}
}

func (r InspectionRecord) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SerialNo, validation.Required),
		validation.Field(&r.SequenceID, validation.Required, validation.By(func(value interface{}) error {
			_, err := ParseSequenceID(value.(string))
			return err
		})),
	)
}

// NewBatchDocument returns the empty structure written for a new document.
func NewBatchDocument() *BatchDocument {
	return &BatchDocument{Records: []InspectionRecord{}}
}

// LastSequenceID returns the identifier of the last record, or the baseline
// when the document has none.
func (d *BatchDocument) LastSequenceID() string {
	if d == nil || len(d.Records) == 0 {
		return SequenceBaseline
	}
	last := d.Records[len(d.Records)-1].SequenceID
	if last == "" {
		return SequenceBaseline
	}
	return last
}

// Validate checks the document shape and that sequence identifiers are
// strictly increasing with no duplicates.
func (d *BatchDocument) Validate() error {
	if d.Records == nil {
		return errors.New("pre_aoi: cannot be blank")
	}

	previous := -1
	for i, record := range d.Records {
		if err := record.Validate(); err != nil {
			return fmt.Errorf("pre_aoi[%d]: %w", i, err)
		}
		n, _ := ParseSequenceID(record.SequenceID)
		if n <= previous {
			return fmt.Errorf("pre_aoi[%d]: pd_no %s is not greater than the previous record", i, record.SequenceID)
		}
		previous = n
	}
	return nil
}

