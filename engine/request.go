package engine

import (
	"os"
	"time"

	"github.com/seetharamtessell/opsexec/command"
	"github.com/seetharamtessell/opsexec/errors"
)

// Request describes one execution to accept: the command, its
// environment overlay, working directory, and timeout. Absent optional
// fields are distinguishable from empty ones on the wire.
type Request struct {
	Command       command.Command   `json:"command" yaml:"command"`
	Env           map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	WorkDir       string            `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`
	TimeoutMS     int64             `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Source        string            `json:"source,omitempty" yaml:"source,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	Tags          map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Timeout returns the request timeout, or zero when unset (the engine
// default applies).
func (r *Request) Timeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// Validate rejects malformed requests before any record is created.
// maxTimeout bounds the per-request timeout; zero means unbounded.
func (r *Request) Validate(maxTimeout time.Duration) error {
	if err := r.Command.Validate(); err != nil {
		return err
	}
	if r.TimeoutMS < 0 {
		return errors.NewValidationError("timeout_ms must not be negative, got %d", r.TimeoutMS)
	}
	if maxTimeout > 0 && r.Timeout() > maxTimeout {
		return errors.NewValidationError("timeout %s exceeds the configured maximum %s",
			r.Timeout(), maxTimeout)
	}
	if r.WorkDir != "" {
		info, err := os.Stat(r.WorkDir)
		if err != nil {
			return errors.NewValidationError("working directory %s is not accessible: %v", r.WorkDir, err)
		}
		if !info.IsDir() {
			return errors.NewValidationError("working directory %s is not a directory", r.WorkDir)
		}
	}
	return nil
}
