package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seetharamtessell/opsexec/command"
	"github.com/seetharamtessell/opsexec/errors"
	"github.com/seetharamtessell/opsexec/logstore"
)

func newTestOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	logs, err := logstore.New(t.TempDir())
	require.NoError(t, err)
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = time.Minute
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = 4
	}
	o := New(logs, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Shutdown(ctx)
	})
	return o
}

func waitResult(t *testing.T, o *Orchestrator, id string) *Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := o.Wait(ctx, id)
	require.NoError(t, err)
	return res
}

func TestExecuteReturnsImmediately(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	start := time.Now()
	id, err := o.Execute(Request{Command: command.NewShell("sleep 0.3; echo done", "")})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "Execute must not wait for the process")

	// In flight: a record exists but no result yet.
	rec, err := o.Status(id)
	require.NoError(t, err)
	assert.False(t, rec.Status.Terminal())
	_, err = o.Result(id)
	assert.Error(t, err)

	res := waitResult(t, o, id)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "done\n", res.Stdout)
}

func TestExecuteRejectsInvalidWithoutRecord(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	_, err := o.Execute(Request{Command: command.NewExec("")})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Empty(t, o.List(), "rejected request must leave no record")
}

func TestResultIsImmutableSnapshot(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	id, err := o.Execute(Request{Command: command.NewExec("echo", "once")})
	require.NoError(t, err)
	first := waitResult(t, o, id)

	again, err := o.Result(id)
	require.NoError(t, err)
	assert.Same(t, first, again, "repeated reads return the same terminal result")
}

func TestCancelUnknownAndTerminal(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	err := o.Cancel("no-such-id")
	assert.True(t, errors.IsNotFound(err))

	id, err := o.Execute(Request{Command: command.NewExec("echo", "hi")})
	require.NoError(t, err)
	res := waitResult(t, o, id)
	require.Equal(t, StatusCompleted, res.Status)

	// Cancel after terminal is a no-op, repeatedly.
	require.NoError(t, o.Cancel(id))
	require.NoError(t, o.Cancel(id))
	after, err := o.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, after.Status, "terminal result must not change")
}

func TestCancelRunning(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	id, err := o.Execute(Request{Command: command.NewShell("sleep 30", "")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := o.Status(id)
		return err == nil && rec.Status == StatusRunning
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, o.Cancel(id))
	res := waitResult(t, o, id)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, ReasonUser, res.CancelReason)
}

func TestCancelPendingNeverStarts(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxConcurrent: 1})

	blocker, err := o.Execute(Request{Command: command.NewShell("sleep 30", "")})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec, _ := o.Status(blocker)
		return rec.Status == StatusRunning
	}, 10*time.Second, 10*time.Millisecond)

	queued, err := o.Execute(Request{Command: command.NewExec("echo", "never")})
	require.NoError(t, err)
	require.NoError(t, o.Cancel(queued))

	res := waitResult(t, o, queued)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, ReasonUser, res.CancelReason)
	assert.Empty(t, res.Stdout, "a cancelled pending execution never runs")

	require.NoError(t, o.Cancel(blocker))
}

func TestAdmissionGateLimitsConcurrency(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxConcurrent: 1})

	start := time.Now()
	a, err := o.Execute(Request{Command: command.NewShell("sleep 0.25", "")})
	require.NoError(t, err)
	b, err := o.Execute(Request{Command: command.NewShell("sleep 0.25", "")})
	require.NoError(t, err)

	waitResult(t, o, a)
	waitResult(t, o, b)
	assert.GreaterOrEqual(t, time.Since(start), 450*time.Millisecond,
		"with a gate of 1 the two sleeps must serialize")
}

func TestReadLogs(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	id, err := o.Execute(Request{Command: command.NewShell("echo alpha; echo beta", "")})
	require.NoError(t, err)
	waitResult(t, o, id)

	text, err := o.ReadLogs(id)
	require.NoError(t, err)
	assert.Contains(t, text, "alpha")
	assert.Contains(t, text, "beta")

	_, err = o.ReadLogs("no-such-id")
	assert.True(t, errors.IsNotFound(err))
}

func TestSerialPlanStopOnError(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	planID, err := o.ExecutePlan(Plan{
		Strategy: Strategy{Kind: StrategySerial, StopOnError: true},
		Members: []Request{
			{Command: command.NewExec("echo", "first")},
			{Command: command.NewShell("exit 1", "")},
			{Command: command.NewExec("echo", "third")},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pr, err := o.WaitPlan(ctx, planID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, pr.Status)
	require.Len(t, pr.Results, 3)
	assert.Equal(t, StatusCompleted, pr.Results[0].Status)
	assert.Equal(t, StatusFailed, pr.Results[1].Status)
	assert.Equal(t, StatusCancelled, pr.Results[2].Status)
	assert.Equal(t, ReasonPolicy, pr.Results[2].CancelReason)
	assert.Equal(t, PlanStats{Completed: 1, Failed: 1, Cancelled: 1}, pr.Stats)
}

func TestSerialPlanContinuesWithoutStopOnError(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	planID, err := o.ExecutePlan(Plan{
		Strategy: Strategy{Kind: StrategySerial},
		Members: []Request{
			{Command: command.NewShell("exit 1", "")},
			{Command: command.NewExec("echo", "still-runs")},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pr, err := o.WaitPlan(ctx, planID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, pr.Status)
	assert.Equal(t, StatusCompleted, pr.Results[1].Status)
	assert.Equal(t, "still-runs\n", pr.Results[1].Stdout)
}

func TestParallelPlanIsolation(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	planID, err := o.ExecutePlan(Plan{
		Strategy: Strategy{Kind: StrategyParallel},
		Members: []Request{
			{Command: command.NewExec("echo", "a")},
			{Command: command.NewShell("exit 7", "")},
			{Command: command.NewExec("echo", "c")},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pr, err := o.WaitPlan(ctx, planID)
	require.NoError(t, err)

	// One member failing never disturbs its siblings.
	assert.Equal(t, StatusFailed, pr.Status)
	assert.Equal(t, StatusCompleted, pr.Results[0].Status)
	assert.Equal(t, StatusFailed, pr.Results[1].Status)
	assert.Equal(t, 7, pr.Results[1].ExitCode)
	assert.Equal(t, StatusCompleted, pr.Results[2].Status)
}

func TestGraphPlanOrdering(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	marker := t.TempDir() + "/made-by-first"

	planID, err := o.ExecutePlan(Plan{
		Strategy: Strategy{
			Kind:      StrategyGraph,
			DependsOn: map[int][]int{1: {0}},
		},
		Members: []Request{
			{Command: command.NewShell("sleep 0.1; touch "+marker, "")},
			{Command: command.NewShell("test -f "+marker, "")},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pr, err := o.WaitPlan(ctx, planID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, pr.Status,
		"the dependent member must only start after its dependency completed")
}

func TestGraphPlanSkipsDependentsOfFailure(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	planID, err := o.ExecutePlan(Plan{
		Strategy: Strategy{
			Kind:      StrategyGraph,
			DependsOn: map[int][]int{1: {0}, 2: {1}},
		},
		Members: []Request{
			{Command: command.NewShell("exit 1", "")},
			{Command: command.NewExec("echo", "blocked")},
			{Command: command.NewExec("echo", "transitively-blocked")},
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pr, err := o.WaitPlan(ctx, planID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, pr.Status)
	assert.Equal(t, StatusCancelled, pr.Results[1].Status)
	assert.Equal(t, ReasonPolicy, pr.Results[1].CancelReason)
	assert.Equal(t, StatusCancelled, pr.Results[2].Status)
}

func TestCancelPlan(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxConcurrent: 1})

	planID, err := o.ExecutePlan(Plan{
		Strategy: Strategy{Kind: StrategySerial},
		Members: []Request{
			{Command: command.NewShell("sleep 30", "")},
			{Command: command.NewExec("echo", "queued")},
		},
	})
	require.NoError(t, err)

	ids, err := o.PlanExecutions(planID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec, _ := o.Status(ids[0])
		return rec.Status == StatusRunning
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, o.CancelPlan(planID))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pr, err := o.WaitPlan(ctx, planID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, pr.Status)
	assert.Equal(t, ReasonUser, pr.Results[0].CancelReason, "running member cancelled directly")
	assert.Equal(t, ReasonPolicy, pr.Results[1].CancelReason, "queued member cancelled by policy")
}

func TestCancelPendingPlanMemberYieldsResult(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxConcurrent: 1})

	planID, err := o.ExecutePlan(Plan{
		Strategy: Strategy{Kind: StrategyParallel},
		Members: []Request{
			{Command: command.NewShell("sleep 0.3", "")},
			{Command: command.NewShell("sleep 30", "")},
		},
	})
	require.NoError(t, err)

	// The second member queues behind the admission gate; cancel it
	// while still Pending so the canceller produces its result.
	ids, err := o.PlanExecutions(planID)
	require.NoError(t, err)
	require.NoError(t, o.Cancel(ids[1]))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pr, err := o.WaitPlan(ctx, planID)
	require.NoError(t, err)

	for i, res := range pr.Results {
		require.NotNilf(t, res, "member %d finished without a result", i)
	}
	total := pr.Stats.Completed + pr.Stats.Failed + pr.Stats.TimedOut + pr.Stats.Cancelled
	assert.Equal(t, len(pr.Results), total)
	assert.Equal(t, StatusCancelled, pr.Results[1].Status)
	assert.Equal(t, ReasonUser, pr.Results[1].CancelReason)
}

func TestPlanRejectedLeavesNoRecords(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	_, err := o.ExecutePlan(Plan{
		Strategy: Strategy{Kind: StrategyGraph, DependsOn: map[int][]int{0: {1}, 1: {0}}},
		Members:  []Request{{Command: command.NewExec("echo", "a")}, {Command: command.NewExec("echo", "b")}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Empty(t, o.List())
}

func TestPlanProgressEvents(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	sink := &eventSink{}
	o.Notifier().Register(sink)

	planID, err := o.ExecutePlan(Plan{
		Strategy: Strategy{Kind: StrategySerial},
		Members:  []Request{{Command: command.NewExec("echo", "a")}, {Command: command.NewExec("echo", "b")}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err = o.WaitPlan(ctx, planID)
	require.NoError(t, err)

	progress := sink.byType(EventPlanProgress)
	require.Len(t, progress, 2)
	assert.Equal(t, planID, progress[0].PlanID)
	assert.Equal(t, 1, progress[0].Completed)
	assert.Equal(t, 2, progress[1].Completed)
	assert.Equal(t, 2, progress[1].Total)
}

func TestShutdownKillsRemaining(t *testing.T) {
	logs, err := logstore.New(t.TempDir())
	require.NoError(t, err)
	o := New(logs, Options{DefaultTimeout: time.Minute, MaxConcurrent: 2})

	id, err := o.Execute(Request{Command: command.NewShell("sleep 30", "")})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec, _ := o.Status(id)
		return rec.Status == StatusRunning
	}, 10*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	_, err = o.Execute(Request{Command: command.NewExec("echo", "late")})
	assert.Error(t, err, "no new work after shutdown")

	res, err := o.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, ReasonShutdown, res.CancelReason)
}

func TestTimeoutCeilingDefaults(t *testing.T) {
	o := newTestOrchestrator(t, Options{MaxTimeout: time.Second})

	_, err := o.Execute(Request{
		Command:   command.NewExec("echo", "x"),
		TimeoutMS: 5_000,
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "maximum")
}

func TestExecuteAppliesRequestTimeout(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	id, err := o.Execute(Request{
		Command:   command.NewShell("sleep 30", ""),
		TimeoutMS: 150,
	})
	require.NoError(t, err)

	res := waitResult(t, o, id)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.True(t, strings.Contains(res.Error, "timeout"))
}
