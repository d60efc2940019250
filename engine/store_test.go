package engine

import (
	"testing"
	"time"

	"github.com/seetharamtessell/opsexec/command"
	"github.com/seetharamtessell/opsexec/errors"
)

func testRequest() Request {
	return Request{Command: command.NewExec("echo", "hi")}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusTimeout, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusFailed, StatusRunning, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tt := range tests {
		if got := validTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("validTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := NewRecordStore()

	rec, err := s.Create("e1", testRequest(), "/tmp/e1.log")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusPending {
		t.Errorf("new record status = %s, want pending", rec.Status)
	}
	if rec.StartedAt != nil || rec.CompletedAt != nil {
		t.Error("new record has start or completion timestamps")
	}

	rec, err = s.Transition("e1", StatusRunning)
	if err != nil {
		t.Fatal(err)
	}
	if rec.StartedAt == nil {
		t.Error("running record missing StartedAt")
	}

	rec, err = s.Transition("e1", StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if rec.CompletedAt == nil {
		t.Error("terminal record missing CompletedAt")
	}
}

func TestStoreTerminalIsImmutable(t *testing.T) {
	s := NewRecordStore()
	s.Create("e1", testRequest(), "")
	s.Transition("e1", StatusRunning)
	s.Transition("e1", StatusCompleted)

	for _, to := range []Status{StatusRunning, StatusFailed, StatusCancelled, StatusTimeout} {
		if _, err := s.transition("e1", to, "", ""); !errors.Is(err, errors.ErrTerminal) {
			t.Errorf("transition out of terminal to %s = %v, want ErrTerminal", to, err)
		}
	}

	rec, _ := s.Get("e1")
	if rec.Status != StatusCompleted {
		t.Errorf("terminal record mutated to %s", rec.Status)
	}
}

func TestStoreCancelledRecordsReason(t *testing.T) {
	s := NewRecordStore()
	s.Create("e1", testRequest(), "")

	rec, err := s.Cancelled("e1", ReasonPolicy)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusCancelled || rec.CancelReason != ReasonPolicy {
		t.Errorf("got status=%s reason=%s, want cancelled/policy", rec.Status, rec.CancelReason)
	}
}

func TestStoreFailRecordsError(t *testing.T) {
	s := NewRecordStore()
	s.Create("e1", testRequest(), "")
	s.Transition("e1", StatusRunning)

	rec, err := s.Fail("e1", "command exited with code 2")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Error != "command exited with code 2" {
		t.Errorf("record error = %q", rec.Error)
	}
}

func TestStoreUnknownID(t *testing.T) {
	s := NewRecordStore()
	if _, err := s.Get("missing"); !errors.IsNotFound(err) {
		t.Errorf("Get(missing) = %v, want not-found", err)
	}
	if _, err := s.Transition("missing", StatusRunning); !errors.IsNotFound(err) {
		t.Errorf("Transition(missing) = %v, want not-found", err)
	}
}

func TestStoreDuplicateID(t *testing.T) {
	s := NewRecordStore()
	s.Create("e1", testRequest(), "")
	if _, err := s.Create("e1", testRequest(), ""); err == nil {
		t.Error("Create() accepted a duplicate id")
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	s := NewRecordStore()
	s.Create("old", testRequest(), "")
	time.Sleep(5 * time.Millisecond)
	s.Create("new", testRequest(), "")

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d entries", len(list))
	}
	if list[0].ID != "new" || list[1].ID != "old" {
		t.Errorf("List() order = [%s, %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestCancelHandleIdempotent(t *testing.T) {
	h := newCancelHandle()
	if h.Reason() != "" {
		t.Error("reason set before cancellation")
	}

	h.Cancel(ReasonUser)
	h.Cancel(ReasonPolicy) // later reasons are ignored

	select {
	case <-h.Done():
	default:
		t.Fatal("Done() not closed after Cancel()")
	}
	if h.Reason() != ReasonUser {
		t.Errorf("Reason() = %s, want the first reason", h.Reason())
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		maxTimeout time.Duration
		wantErr    bool
	}{
		{"valid", Request{Command: command.NewExec("ls")}, 0, false},
		{"negative timeout", Request{Command: command.NewExec("ls"), TimeoutMS: -1}, 0, true},
		{"timeout over ceiling", Request{Command: command.NewExec("ls"), TimeoutMS: 10_000}, 5 * time.Second, true},
		{"timeout at ceiling", Request{Command: command.NewExec("ls"), TimeoutMS: 5_000}, 5 * time.Second, false},
		{"invalid command", Request{Command: command.NewExec("")}, 0, true},
		{"missing workdir", Request{Command: command.NewExec("ls"), WorkDir: "/nonexistent/dir"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(tt.maxTimeout)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsValidation(err) {
				t.Errorf("Validate() error is not a validation error: %v", err)
			}
		})
	}
}
