// Package run defines the lightweight per-turn run metadata the
// supervisor threads through a workload invocation. A durable,
// cross-process workflow engine would need a TurnID/replay distinction
// here; this runtime's single-process cooperative scheduler has no
// replay boundary, so Context collapses to the fields a Go turn
// actually needs — see DESIGN.md.
package run

import (
	"context"
	"errors"
	"time"
)

// Context carries execution metadata for one supervisor turn.
type Context struct {
	// RunID uniquely identifies this turn's execution, for logging/tracing.
	RunID string
	// SessionID associates this run with its conversation.
	SessionID string
	// Attempt counts retries of this same turn (e.g. after a transient
	// provider error exhausted the agent runner's own retry budget and
	// the caller chose to resubmit).
	Attempt int
	// Labels carries caller-provided metadata (tenant, priority, etc.).
	Labels map[string]string
}

// Status is the coarse-grained lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Record is the durable metadata stored for observability.
type Record struct {
	RunID     string
	SessionID string
	Status    Status
	StartedAt time.Time
	UpdatedAt time.Time
	Labels    map[string]string
}

// Store persists run metadata for observability and lookup.
type Store interface {
	Upsert(ctx context.Context, record Record) error
	Load(ctx context.Context, runID string) (Record, error)
}

// ErrNotFound indicates no run record exists for the given identifier.
var ErrNotFound = errors.New("run: not found")
