package engine

import "time"

// Result is the immutable terminal outcome of one execution. Exactly
// one Result exists per execution once it reaches a terminal status.
type Result struct {
	ID              string       `json:"id"`
	Status          Status       `json:"status"`
	ExitCode        int          `json:"exit_code"`
	Stdout          string       `json:"stdout"`
	Stderr          string       `json:"stderr"`
	StdoutTruncated bool         `json:"stdout_truncated,omitempty"`
	StderrTruncated bool         `json:"stderr_truncated,omitempty"`
	DurationMS      int64        `json:"duration_ms"`
	StartedAt       time.Time    `json:"started_at"`
	CompletedAt     time.Time    `json:"completed_at"`
	LogPath         string       `json:"log_path,omitempty"`
	Error           string       `json:"error,omitempty"`
	CancelReason    CancelReason `json:"cancel_reason,omitempty"`
}

// Succeeded reports whether the execution completed with exit code 0.
func (r *Result) Succeeded() bool {
	return r.Status == StatusCompleted
}

// PlanStats counts member outcomes of a completed plan.
type PlanStats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Cancelled int `json:"cancelled"`
}

// PlanResult aggregates per-member results once every member of a plan
// has reached a terminal status. Results appear in plan member order
// regardless of completion order.
type PlanResult struct {
	PlanID      string    `json:"plan_id"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Results     []*Result `json:"results"`
	Stats       PlanStats `json:"stats"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// rollup derives plan status and stats from member results: any failure
// or timeout makes the plan Failed, otherwise any cancellation makes it
// Cancelled, otherwise Completed.
func rollup(results []*Result) (Status, PlanStats) {
	var stats PlanStats
	for _, r := range results {
		if r == nil {
			// No result was ever published for this member.
			stats.Cancelled++
			continue
		}
		switch r.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusTimeout:
			stats.TimedOut++
		case StatusCancelled:
			stats.Cancelled++
		}
	}

	switch {
	case stats.Failed > 0 || stats.TimedOut > 0:
		return StatusFailed, stats
	case stats.Cancelled > 0:
		return StatusCancelled, stats
	default:
		return StatusCompleted, stats
	}
}
