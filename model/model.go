package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// CycleResult summarizes one pipeline cycle.
type CycleResult struct {
	CycleID          string    `json:"cycle_id"`
	ConfigVersion    uint64    `json:"config_version"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	FilesCopied      int       `json:"files_copied"`
	FilesParsed      int       `json:"files_parsed"`
	FilesSkipped     int       `json:"files_skipped"`
	FilesBackedUp    []string  `json:"files_backed_up"`
	DocumentsSynced  int       `json:"documents_synced"`
	DocumentsPending int       `json:"documents_pending"`
}

// Duration is the wall time the cycle took.
func (c CycleResult) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}
