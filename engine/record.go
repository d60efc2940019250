// Package engine implements the asynchronous command-execution engine:
// execution records and their state machine, the process runner, the
// event notifier, and the plan orchestrator.
package engine

import (
	"sync"
	"time"
)

// Status represents the current state of an execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidStatus returns true if the status string is a valid Status.
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted,
		StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// validTransition encodes the execution state machine:
//
//	Pending --(runner starts process)--> Running
//	Pending --(cancelled before start)--> Cancelled
//	Running --(exit 0)-----------------> Completed
//	Running --(exit != 0, spawn/IO err)-> Failed
//	Running --(timeout elapsed)--------> Timeout
//	Running --(cancellation requested)-> Cancelled
//
// Terminal statuses admit no outgoing transitions.
func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed ||
			to == StatusTimeout || to == StatusCancelled
	default:
		return false
	}
}

// CancelReason distinguishes why an execution was cancelled.
type CancelReason string

const (
	// ReasonUser marks an explicit cancellation request.
	ReasonUser CancelReason = "user"
	// ReasonPolicy marks a plan member stopped or never started because
	// of a sibling's failure under serial or dependency-graph strategy.
	ReasonPolicy CancelReason = "policy"
	// ReasonShutdown marks executions abandoned because the engine is
	// shutting down.
	ReasonShutdown CancelReason = "shutdown"
)

// Record is the mutable runtime state for one in-flight or completed
// execution. It is owned by the record store; callers receive copies.
type Record struct {
	ID           string       `json:"id"`
	Request      Request      `json:"request"`
	Status       Status       `json:"status"`
	CancelReason CancelReason `json:"cancel_reason,omitempty"`
	Error        string       `json:"error,omitempty"`
	LogPath      string       `json:"log_path,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// Duration returns elapsed wall-clock time: start to completion for
// terminal records, start to now for running ones, zero before start.
func (r *Record) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}
	return time.Since(*r.StartedAt)
}

// Summary is a lightweight view of a record for enumeration without
// materializing full results.
type Summary struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Command    string     `json:"command"`
	Source     string     `json:"source,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// CancelHandle is the explicit cancellation token threaded through every
// suspending call for one execution. Cancellation is requested at most
// once; later requests are no-ops and the first reason wins.
type CancelHandle struct {
	once   sync.Once
	ch     chan struct{}
	reason CancelReason
}

func newCancelHandle() *CancelHandle {
	return &CancelHandle{ch: make(chan struct{})}
}

// Cancel requests cancellation with the given reason. Safe to call from
// any goroutine and any number of times.
func (h *CancelHandle) Cancel(reason CancelReason) {
	h.once.Do(func() {
		h.reason = reason
		close(h.ch)
	})
}

// Done returns a channel closed once cancellation is requested.
func (h *CancelHandle) Done() <-chan struct{} {
	return h.ch
}

// Reason returns why cancellation was requested. Only meaningful after
// Done() is closed.
func (h *CancelHandle) Reason() CancelReason {
	select {
	case <-h.ch:
		return h.reason
	default:
		return ""
	}
}
