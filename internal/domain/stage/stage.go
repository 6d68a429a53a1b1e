// Package stage defines the per-stage task entity for pipeline runs.
package stage

import (
	"encoding/json"
	"time"
)

// Name identifies a pipeline stage.
type Name string

const (
	NameResearch Name = "research"
	NameWriting  Name = "writing"
)

// Status represents the state of one stage task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Task records one execution of a pipeline stage for a request: its
// status, start/end timestamps and the stage's output payload. Created
// when the stage begins, finalized when it returns or fails.
type Task struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"request_id"`
	Stage       Name            `json:"stage"`
	Status      Status          `json:"status"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
