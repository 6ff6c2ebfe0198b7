package entity

import (
	"time"

	"github.com/google/uuid"
)

// Step status values for ProcessingLogEntry.
const (
	StepStarted   = "started"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// ProcessingLogEntry is an append-only audit record of one pipeline step
// attempt. Entries are never mutated; the retention sweep is the only
// deletion path.
type ProcessingLogEntry struct {
	ID            string         `bson:"_id,omitempty"`
	JobID         *uuid.UUID     `bson:"job_id,omitempty"`
	TransactionID *uuid.UUID     `bson:"transaction_id,omitempty"`
	Step          string         `bson:"step"`
	Status        string         `bson:"status"`
	Message       string         `bson:"message,omitempty"`
	Metadata      map[string]any `bson:"metadata,omitempty"`
	DurationMS    *int64         `bson:"duration_ms,omitempty"`
	ErrorDetail   string         `bson:"error_detail,omitempty"`
	CreatedAt     time.Time      `bson:"created_at"`
}

// NewLogEntry builds an audit entry for a job step.
func NewLogEntry(jobID uuid.UUID, step, status, message string) *ProcessingLogEntry {
	e := &ProcessingLogEntry{
		Step:      step,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if jobID != uuid.Nil {
		e.JobID = &jobID
	}
	return e
}

// WithMetadata attaches structured metadata to the entry.
func (e *ProcessingLogEntry) WithMetadata(md map[string]any) *ProcessingLogEntry {
	e.Metadata = md
	return e
}

// WithDuration records how long the step took.
func (e *ProcessingLogEntry) WithDuration(d time.Duration) *ProcessingLogEntry {
	ms := d.Milliseconds()
	e.DurationMS = &ms
	return e
}

// WithError records the structured error detail for a failed step.
func (e *ProcessingLogEntry) WithError(err error) *ProcessingLogEntry {
	if err != nil {
		e.ErrorDetail = err.Error()
	}
	return e
}

// WithTransaction links the entry to a specific transaction.
func (e *ProcessingLogEntry) WithTransaction(txID uuid.UUID) *ProcessingLogEntry {
	if txID != uuid.Nil {
		e.TransactionID = &txID
	}
	return e
}
