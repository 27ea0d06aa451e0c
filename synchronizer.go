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
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/inspectsync/erp"
	"github.com/blnkfinance/inspectsync/internal/request"
	"github.com/blnkfinance/inspectsync/internal/retry"
	"github.com/blnkfinance/inspectsync/model"
)

// SyncReport is the outcome of synchronising one batch document.
type SyncReport struct {
	BatchID string
	Parent  string
	Total   int
	Synced  int
	// Failed lists the serial numbers whose records exhausted their retries.
	Failed []string
	// Err is set when the document failed as a whole.
	Err error
}

// OK reports whether every record of the document reached the ERP.
func (r SyncReport) OK() bool {
	return r.Err == nil && len(r.Failed) == 0 && r.Synced == r.Total
}

// SyncDocument pushes every record of doc to the ERP. The endpoint is probed
// first; if it never answers nothing is sent. The parent is looked up by
// model_id and, per record, either updated (fetch children, upsert by
// serial_no, replace) or created. Each record is retried on its own, so one
// failing record does not stop the others.
//
// Parameters:
// - ctx context.Context: Cancels requests and the waits between retries.
// - doc *model.BatchDocument: The document to synchronise.
//
// Returns:
// - SyncReport: Per-record results; OK is true only if all records succeeded.
func (p *Pipeline) SyncDocument(ctx context.Context, doc *model.BatchDocument) SyncReport {
	ctx, span := tracer.Start(ctx, "SyncDocument")
	defer span.End()

	report := SyncReport{BatchID: doc.BatchID, Total: len(doc.Records)}
	span.SetAttributes(attribute.String("model_id", doc.BatchID), attribute.Int("records", report.Total))

	if doc.BatchID == "" {
		report.Err = model.ErrNoBatchID
		return report
	}
	cnf, err := p.settings()
	if err != nil {
		report.Err = err
		return report
	}

	client := p.erpClient(cnf)
	log := logrus.WithField("model_id", doc.BatchID)

	probe := retry.Policy{MaxAttempts: cnf.Retry.ProbeAttempts, Delay: seconds(cnf.Retry.ProbeDelaySec)}
	err = probe.Do(ctx, func(attempt int) error {
		err := client.Ping(ctx)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("ERP endpoint not reachable")
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		report.Err = fmt.Errorf("erp endpoint unreachable: %w", err)
		return report
	}

	parent, found, err := client.FindParent(ctx, doc.BatchID)
	if err != nil {
		log.WithError(err).Warn("Parent lookup failed, treating batch as new")
	}
	if !found {
		parent = ""
	}

	policy := retry.Policy{MaxAttempts: cnf.Retry.RecordAttempts, Delay: seconds(cnf.Retry.RecordDelaySec)}
	for _, record := range doc.Records {
		recordLog := log.WithField("serial_no", record.SerialNo)
		err := policy.Do(ctx, func(attempt int) error {
			if attempt > 1 && parent == "" {
				// A create that timed out may still have landed.
				if name, ok, err := client.FindParent(ctx, doc.BatchID); err == nil && ok {
					parent = name
				}
			}
			name, err := p.syncRecord(ctx, client, doc.BatchID, parent, record)
			if err != nil {
				logSyncError(recordLog.WithField("attempt", attempt), err)
				return err
			}
			parent = name
			return nil
		})
		if err != nil {
			span.RecordError(err)
			recordLog.WithError(err).Error("Record not synchronised")
			report.Failed = append(report.Failed, record.SerialNo)
			continue
		}
		report.Synced++
	}

	report.Parent = parent
	return report
}

// syncRecord sends one record and returns the parent name to use from now on.
func (p *Pipeline) syncRecord(ctx context.Context, client ERPClient, batchID, parent string, record model.InspectionRecord) (string, error) {
	if parent != "" {
		children, err := client.GetChildren(ctx, parent)
		if err != nil {
			return parent, err
		}
		if err := client.ReplaceChildren(ctx, parent, mergeChild(children, record)); err != nil {
			return parent, err
		}
		return parent, nil
	}

	name, err := client.CreateParent(ctx, batchID, record)
	if err != nil {
		return "", err
	}
	if name == "" {
		// Fall back to a lookup so the next record updates instead of creating again.
		name, _, _ = client.FindParent(ctx, batchID)
	}
	return name, nil
}

// mergeChild updates the child with the record's serial_no in place, or
// appends the record as a new child. Keys the ERP owns are kept.
func mergeChild(children []erp.Child, record model.InspectionRecord) []erp.Child {
	fields := record.Fields()
	for _, child := range children {
		if child.SerialNo() == record.SerialNo {
			for k, v := range fields {
				child[k] = v
			}
			return children
		}
	}
	return append(children, erp.Child(fields))
}

func logSyncError(log *logrus.Entry, err error) {
	switch {
	case request.IsConflict(err):
		log.WithError(err).Warn("Conflict while synchronising record, retrying")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Warn("Record synchronisation cancelled")
	default:
		log.WithError(err).Error("Error synchronising record")
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

var _ ERPClient = (*erp.Client)(nil)
