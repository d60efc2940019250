package engine

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/seetharamtessell/opsexec/command"
	"github.com/seetharamtessell/opsexec/errors"
	"github.com/seetharamtessell/opsexec/logger"
	"github.com/seetharamtessell/opsexec/logstore"
)

// scanner line buffer sizing: start at 64KB, allow single lines up to 1MB
const (
	scanBufSize = 64 * 1024
	scanBufMax  = 1024 * 1024
)

// killDrainGrace bounds how long a kill waits for the output pipes to
// drain before they are forced closed.
const killDrainGrace = 2 * time.Second

// Runner drives one accepted execution from Pending to a terminal
// status: spawn the process, stream both output pipes line by line,
// and race process exit against the timeout and the cancellation
// handle.
type Runner struct {
	store     *RecordStore
	logs      *logstore.Store
	notifier  *Notifier
	maxOutput int
}

// NewRunner wires a runner against the shared record store, log store,
// and notifier. maxOutput caps the bytes retained in memory per stream;
// zero disables the cap. The on-disk log is never capped.
func NewRunner(store *RecordStore, logs *logstore.Store, notifier *Notifier, maxOutput int) *Runner {
	return &Runner{store: store, logs: logs, notifier: notifier, maxOutput: maxOutput}
}

// outputBuffer accumulates one stream in memory up to a byte cap.
// Accessed by a single collector goroutine; reads happen only after
// that goroutine is joined.
type outputBuffer struct {
	b         strings.Builder
	max       int
	truncated bool
	readErr   error
}

func (o *outputBuffer) add(line string) {
	if o.max > 0 && o.b.Len()+len(line)+1 > o.max {
		o.truncated = true
		return
	}
	o.b.WriteString(line)
	o.b.WriteByte('\n')
}

// Run executes the record identified by id to completion and returns
// its Result. The record must be Pending. Returns nil when the record
// was cancelled before the runner could claim it; the canceller has
// already produced the result in that case.
//
// The context covers engine shutdown only; per-execution cancellation
// arrives through the handle so a cancelled execution still gets its
// Cancelled record and result.
func (r *Runner) Run(ctx context.Context, id string, timeout time.Duration, handle *CancelHandle) *Result {
	rec, err := r.store.Get(id)
	if err != nil {
		logger.Errorw("Runner invoked for unknown execution", "execution_id", id, "error", err)
		return nil
	}
	req := rec.Request

	// Claim the record. Losing this transition means a cancellation
	// already made it terminal and produced the synthetic result.
	rec, err = r.store.Transition(id, StatusRunning)
	if err != nil {
		if errors.Is(err, errors.ErrTerminal) {
			return nil
		}
		logger.Errorw("Failed to mark execution running", "execution_id", id, "error", err)
		return nil
	}
	started := *rec.StartedAt
	r.notify(Event{Type: EventStarted, ExecutionID: id})

	program, args, err := req.Command.Lower()
	if err != nil {
		return r.finishFailed(id, started, errors.Wrap(errors.ErrSpawnFailure, err.Error()), -1, nil, nil)
	}

	cmd := exec.Command(program, args...)
	cmd.Env = command.MergedEnv(os.Environ(), req.Env)
	cmd.Dir = req.WorkDir
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return r.finishFailed(id, started, errors.Wrap(errors.ErrSpawnFailure, err.Error()), -1, nil, nil)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return r.finishFailed(id, started, errors.Wrap(errors.ErrSpawnFailure, err.Error()), -1, nil, nil)
	}

	logw, err := r.logs.Open(id)
	if err != nil {
		// The execution still runs; it just has no durable log.
		logger.Warnw("Failed to open execution log, output will not be persisted",
			"execution_id", id, "error", err)
		logw = nil
	}

	if err := cmd.Start(); err != nil {
		if logw != nil {
			logw.Close()
		}
		return r.finishFailed(id, started,
			errors.Wrapf(errors.ErrSpawnFailure, "failed to start %s: %v", program, err), -1, nil, nil)
	}
	logger.Debugw("Process started", "execution_id", id, "pid", cmd.Process.Pid, "command", req.Command.String())

	stdout := &outputBuffer{max: r.maxOutput}
	stderr := &outputBuffer{max: r.maxOutput}
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		done := make(chan struct{})
		go func() {
			defer close(done)
			r.collect(id, stdoutPipe, EventStdout, stdout, logw)
		}()
		r.collect(id, stderrPipe, EventStderr, stderr, logw)
		<-done
	}()

	// Wait() must run only after both pipes hit EOF or it can close
	// them under the collectors.
	waitCh := make(chan error, 1)
	go func() {
		<-collected
		waitCh <- cmd.Wait()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	var (
		status   Status
		reason   CancelReason
		waitErr  error
		execErr  error
		exitCode int
	)

	select {
	case waitErr = <-waitCh:
		status = StatusCompleted

	case <-timeoutCh:
		r.kill(id, cmd)
		waitErr = r.reapKilled(id, waitCh, stdoutPipe, stderrPipe)
		status = StatusTimeout
		execErr = errors.Wrapf(errors.ErrTimeout, "execution exceeded timeout of %s", timeout)

	case <-handle.Done():
		r.kill(id, cmd)
		waitErr = r.reapKilled(id, waitCh, stdoutPipe, stderrPipe)
		status = StatusCancelled
		reason = handle.Reason()
		execErr = errors.ErrCancelled

	case <-ctx.Done():
		r.kill(id, cmd)
		waitErr = r.reapKilled(id, waitCh, stdoutPipe, stderrPipe)
		status = StatusCancelled
		reason = ReasonShutdown
		execErr = errors.ErrCancelled
	}

	if logw != nil {
		if err := logw.Close(); err != nil {
			logger.Warnw("Failed to close execution log", "execution_id", id, "error", err)
		}
	}

	exitCode = exitCodeOf(waitErr)
	if status == StatusCompleted {
		switch {
		case stdout.readErr != nil || stderr.readErr != nil:
			status = StatusFailed
			execErr = errors.Wrap(errors.ErrIOFailure, "output stream read failed, captured output is partial")
		case exitCode != 0:
			status = StatusFailed
			execErr = errors.Newf("command exited with code %d", exitCode)
		}
	}

	return r.finish(id, started, status, reason, execErr, exitCode, stdout, stderr)
}

// collect reads one pipe line by line, appending each line to the log
// file, the in-memory buffer, and the event stream in arrival order.
func (r *Runner) collect(id string, pipe io.ReadCloser, evType EventType, buf *outputBuffer, logw *logstore.Writer) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, scanBufSize), scanBufMax)
	for scanner.Scan() {
		line := scanner.Text()
		buf.add(line)
		if logw != nil {
			if err := logw.WriteLine(line); err != nil {
				logger.Warnw("Failed to append to execution log", "execution_id", id, "error", err)
				logw = nil
			}
		}
		r.notify(Event{Type: evType, ExecutionID: id, Line: line})
	}
	if err := scanner.Err(); err != nil {
		buf.readErr = err
	}
}

// kill terminates the process and everything it forked. Killing only
// the direct child would leave grandchildren running and holding the
// output pipes open.
func (r *Runner) kill(id string, cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := killProcessGroup(cmd); err != nil {
		logger.Warnw("Failed to kill process group", "execution_id", id, "pid", cmd.Process.Pid, "error", err)
	}
}

// reapKilled collects the Wait result after a kill. A process outside
// the group that inherited the pipes can still hold them open; after a
// short grace the parent ends are closed so the collectors see EOF and
// Wait can return.
func (r *Runner) reapKilled(id string, waitCh <-chan error, pipes ...io.Closer) error {
	select {
	case err := <-waitCh:
		return err
	case <-time.After(killDrainGrace):
	}
	logger.Warnw("Output pipes held open after kill, forcing them closed", "execution_id", id)
	for _, p := range pipes {
		p.Close()
	}
	return <-waitCh
}

// exitCodeOf maps a Wait error to the process exit code: 0 for clean
// exit, the reported code for a non-zero exit, -1 when the process was
// killed or never produced a code.
func exitCodeOf(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func (r *Runner) finishFailed(id string, started time.Time, execErr error, exitCode int, stdout, stderr *outputBuffer) *Result {
	return r.finish(id, started, StatusFailed, "", execErr, exitCode, stdout, stderr)
}

// finish records the terminal transition, builds the immutable Result,
// and emits the terminal event.
func (r *Runner) finish(id string, started time.Time, status Status, reason CancelReason,
	execErr error, exitCode int, stdout, stderr *outputBuffer) *Result {

	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	}

	var rec Record
	var err error
	switch status {
	case StatusCompleted:
		rec, err = r.store.Transition(id, StatusCompleted)
	case StatusFailed:
		rec, err = r.store.Fail(id, errMsg)
	case StatusTimeout:
		rec, err = r.store.TimedOut(id, errMsg)
	case StatusCancelled:
		rec, err = r.store.Cancelled(id, reason)
	}
	if err != nil {
		logger.Errorw("Failed to record terminal status", "execution_id", id, "status", status, "error", err)
		now := time.Now()
		rec = Record{ID: id, Status: status, StartedAt: &started, CompletedAt: &now}
	}

	res := &Result{
		ID:           id,
		Status:       status,
		ExitCode:     exitCode,
		DurationMS:   rec.CompletedAt.Sub(started).Milliseconds(),
		StartedAt:    started,
		CompletedAt:  *rec.CompletedAt,
		LogPath:      rec.LogPath,
		Error:        errMsg,
		CancelReason: reason,
	}
	if stdout != nil {
		res.Stdout = stdout.b.String()
		res.StdoutTruncated = stdout.truncated
	}
	if stderr != nil {
		res.Stderr = stderr.b.String()
		res.StderrTruncated = stderr.truncated
	}

	ev := Event{ExecutionID: id, Result: res, Error: errMsg}
	switch status {
	case StatusCompleted:
		ev.Type = EventCompleted
	case StatusCancelled:
		ev.Type = EventCancelled
	default:
		ev.Type = EventFailed
	}
	r.notify(ev)

	logger.Infow("Execution finished",
		"execution_id", id,
		"status", status,
		"exit_code", exitCode,
		"duration_ms", res.DurationMS)
	return res
}

func (r *Runner) notify(e Event) {
	if r.notifier != nil {
		r.notifier.Notify(e)
	}
}
