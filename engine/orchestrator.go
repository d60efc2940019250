package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/seetharamtessell/opsexec/errors"
	"github.com/seetharamtessell/opsexec/logger"
	"github.com/seetharamtessell/opsexec/logstore"
)

// Options configures an Orchestrator.
type Options struct {
	// DefaultTimeout applies to requests that carry no timeout.
	DefaultTimeout time.Duration
	// MaxTimeout bounds per-request timeouts. Zero means unbounded.
	MaxTimeout time.Duration
	// MaxConcurrent caps simultaneously running processes engine-wide.
	// Zero picks a recommendation from available memory.
	MaxConcurrent int
	// MaxOutputBytes caps in-memory output retained per stream per
	// execution. Zero disables the cap. On-disk logs are never capped.
	MaxOutputBytes int
	// RatePerMinute throttles execution starts. Zero disables.
	RatePerMinute int
}

// Orchestrator is the engine's front door: it accepts execution
// requests and plans, enforces admission limits, schedules plan
// members, and serves status, results, logs, and cancellation.
type Orchestrator struct {
	opts     Options
	store    *RecordStore
	logs     *logstore.Store
	notifier *Notifier
	runner   *Runner
	sem      *semaphore.Weighted
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	mu      sync.RWMutex
	results map[string]*Result
	waiters map[string]chan struct{}
	plans   map[string]*planState
}

// New builds an orchestrator over the given log store.
func New(logs *logstore.Store, opts Options) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = RecommendedConcurrency()
	}
	warnMemoryPressure(opts.MaxConcurrent)

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:     opts,
		store:    NewRecordStore(),
		logs:     logs,
		notifier: NewNotifier(),
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		ctx:      ctx,
		cancel:   cancel,
		results:  make(map[string]*Result),
		waiters:  make(map[string]chan struct{}),
		plans:    make(map[string]*planState),
	}
	if opts.RatePerMinute > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60.0), opts.RatePerMinute)
	}
	o.runner = NewRunner(o.store, logs, o.notifier, opts.MaxOutputBytes)
	return o
}

// Notifier exposes the event fan-out for observers such as the
// websocket bridge.
func (o *Orchestrator) Notifier() *Notifier {
	return o.notifier
}

// Execute validates and accepts a single request, returning its
// execution ID immediately. Rejected requests leave no record behind.
func (o *Orchestrator) Execute(req Request) (string, error) {
	if o.closed.Load() {
		return "", errors.New("engine is shutting down")
	}
	if err := req.Validate(o.opts.MaxTimeout); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := o.store.Create(id, req, o.logs.PathFor(id)); err != nil {
		return "", err
	}
	o.mu.Lock()
	o.waiters[id] = make(chan struct{})
	o.mu.Unlock()

	logger.Infow("Execution accepted", "execution_id", id, "command", req.Command.String(), "source", req.Source)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.dispatch(id, req)
	}()
	return id, nil
}

// dispatch takes one accepted execution through the admission gate and
// the runner, then publishes its result.
func (o *Orchestrator) dispatch(id string, req Request) *Result {
	handle, err := o.store.Handle(id)
	if err != nil {
		logger.Errorw("Dispatch for unknown execution", "execution_id", id, "error", err)
		return nil
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(o.ctx); err != nil {
			return o.abandon(id)
		}
	}
	if err := o.sem.Acquire(o.ctx, 1); err != nil {
		return o.abandon(id)
	}
	defer o.sem.Release(1)

	res := o.runner.Run(o.ctx, id, o.effectiveTimeout(req), handle)
	if res == nil {
		// Cancelled before the runner could claim the record; the
		// canceller already published the result.
		o.mu.RLock()
		res = o.results[id]
		o.mu.RUnlock()
		return res
	}
	o.publish(res)
	return res
}

// abandon marks an execution that never started as cancelled because
// the engine is shutting down.
func (o *Orchestrator) abandon(id string) *Result {
	rec, err := o.store.Cancelled(id, ReasonShutdown)
	if err != nil {
		o.mu.RLock()
		res := o.results[id]
		o.mu.RUnlock()
		return res
	}
	res := syntheticCancelled(rec, ReasonShutdown)
	o.publish(res)
	o.notifier.Notify(Event{Type: EventCancelled, ExecutionID: id, Result: res, Error: res.Error})
	return res
}

func syntheticCancelled(rec Record, reason CancelReason) *Result {
	completed := time.Now()
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	return &Result{
		ID:           rec.ID,
		Status:       StatusCancelled,
		ExitCode:     -1,
		CompletedAt:  completed,
		LogPath:      rec.LogPath,
		Error:        "cancelled before start",
		CancelReason: reason,
	}
}

// publish stores a terminal result and wakes waiters. The state machine
// guarantees a single producer per execution.
func (o *Orchestrator) publish(res *Result) {
	o.mu.Lock()
	o.results[res.ID] = res
	if ch, ok := o.waiters[res.ID]; ok {
		close(ch)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) effectiveTimeout(req Request) time.Duration {
	if t := req.Timeout(); t > 0 {
		return t
	}
	return o.opts.DefaultTimeout
}

// Status returns the current record for an execution.
func (o *Orchestrator) Status(id string) (Record, error) {
	return o.store.Get(id)
}

// List returns summaries of all known executions, newest first.
func (o *Orchestrator) List() []Summary {
	return o.store.List()
}

// Result returns the terminal result for an execution. It fails with a
// not-found error for unknown IDs and a plain error while the execution
// is still in flight.
func (o *Orchestrator) Result(id string) (*Result, error) {
	o.mu.RLock()
	res, ok := o.results[id]
	o.mu.RUnlock()
	if ok {
		return res, nil
	}
	if _, err := o.store.Get(id); err != nil {
		return nil, err
	}
	return nil, errors.Newf("execution %s has not completed", id)
}

// Wait blocks until the execution reaches a terminal status or the
// context expires.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*Result, error) {
	o.mu.RLock()
	ch, ok := o.waiters[id]
	o.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("no execution with id %s", id)
	}

	select {
	case <-ch:
		return o.Result(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadLogs returns the accumulated output log for an execution. Known
// executions with no output yet read as empty; log files left behind by
// a previous process are served as plain bytes.
func (o *Orchestrator) ReadLogs(id string) (string, error) {
	text, err := o.logs.ReadAll(id)
	if err == nil {
		return text, nil
	}
	if errors.IsNotFound(err) {
		if _, recErr := o.store.Get(id); recErr == nil {
			return "", nil
		}
	}
	return "", err
}

// Cancel requests cancellation of an execution. Cancelling a terminal
// execution is a no-op; cancelling an unknown ID is a not-found error.
func (o *Orchestrator) Cancel(id string) error {
	return o.cancelWith(id, ReasonUser)
}

func (o *Orchestrator) cancelWith(id string, reason CancelReason) error {
	rec, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return nil
	}

	handle, err := o.store.Handle(id)
	if err != nil {
		return err
	}

	if rec.Status == StatusPending {
		if rec2, err := o.store.Cancelled(id, reason); err == nil {
			res := syntheticCancelled(rec2, reason)
			o.publish(res)
			o.notifier.Notify(Event{Type: EventCancelled, ExecutionID: id, Result: res, Error: res.Error})
			handle.Cancel(reason)
			logger.Infow("Execution cancelled before start", "execution_id", id, "reason", reason)
			return nil
		}
		// The runner claimed the record first; fall through to the
		// handle so the running process is killed.
	}

	handle.Cancel(reason)
	logger.Infow("Execution cancellation requested", "execution_id", id, "reason", reason)
	return nil
}

// planState tracks one accepted plan until every member is terminal.
type planState struct {
	id      string
	plan    Plan
	ids     []string
	started time.Time
	done    chan struct{}

	mu      sync.Mutex
	results []*Result
	final   *PlanResult
}

func (ps *planState) setResult(i int, res *Result) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.results[i] = res
	n := 0
	for _, r := range ps.results {
		if r != nil {
			n++
		}
	}
	return n
}

func (ps *planState) result(i int) *Result {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.results[i]
}

// ExecutePlan validates and accepts a plan, creating one Pending record
// per member, and returns the plan ID immediately. A rejected plan
// leaves no records behind.
func (o *Orchestrator) ExecutePlan(plan Plan) (string, error) {
	if o.closed.Load() {
		return "", errors.New("engine is shutting down")
	}
	if err := plan.Validate(o.opts.MaxTimeout); err != nil {
		return "", err
	}

	n := len(plan.Members)
	ps := &planState{
		id:      uuid.NewString(),
		plan:    plan,
		ids:     make([]string, n),
		started: time.Now(),
		done:    make(chan struct{}),
		results: make([]*Result, n),
	}
	for i, req := range plan.Members {
		id := uuid.NewString()
		if _, err := o.store.Create(id, req, o.logs.PathFor(id)); err != nil {
			return "", err
		}
		ps.ids[i] = id
		o.mu.Lock()
		o.waiters[id] = make(chan struct{})
		o.mu.Unlock()
	}

	o.mu.Lock()
	o.plans[ps.id] = ps
	o.mu.Unlock()

	logger.Infow("Plan accepted",
		"plan_id", ps.id,
		"strategy", plan.Strategy.Kind,
		"members", n,
		"description", plan.Description)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runPlan(ps)
	}()
	return ps.id, nil
}

func (o *Orchestrator) runPlan(ps *planState) {
	switch ps.plan.Strategy.Kind {
	case StrategySerial:
		o.runSerial(ps)
	case StrategyParallel:
		o.runParallel(ps)
	case StrategyGraph:
		o.runGraph(ps)
	}
	o.finishPlan(ps)
}

func (o *Orchestrator) runSerial(ps *planState) {
	aborted := false
	for i := range ps.ids {
		if aborted {
			o.skipMember(ps, i)
			continue
		}
		res := o.runMember(ps, i)
		if ps.plan.Strategy.StopOnError && res != nil && res.Status != StatusCompleted {
			aborted = true
		}
	}
}

func (o *Orchestrator) runParallel(ps *planState) {
	limit := ps.plan.Strategy.MaxConcurrency
	if limit <= 0 {
		limit = len(ps.ids)
	}
	planSem := semaphore.NewWeighted(int64(limit))

	var wg sync.WaitGroup
	for i := range ps.ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := planSem.Acquire(o.ctx, 1); err == nil {
				defer planSem.Release(1)
			}
			// On shutdown dispatch abandons the member itself.
			o.runMember(ps, i)
		}(i)
	}
	wg.Wait()
}

func (o *Orchestrator) runGraph(ps *planState) {
	n := len(ps.ids)
	memberDone := make([]chan struct{}, n)
	for i := range memberDone {
		memberDone[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for i := range ps.ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer close(memberDone[i])

			blocked := false
			for _, d := range ps.plan.predecessors(i) {
				<-memberDone[d]
				if r := ps.result(d); r == nil || r.Status != StatusCompleted {
					blocked = true
				}
			}
			if blocked {
				o.skipMember(ps, i)
				return
			}
			o.runMember(ps, i)
		}(i)
	}
	wg.Wait()
}

// runMember dispatches one plan member and records its terminal result.
func (o *Orchestrator) runMember(ps *planState, i int) *Result {
	id := ps.ids[i]
	res := o.dispatch(id, ps.plan.Members[i])
	if res == nil {
		// A cancellation won the record while the runner was claiming
		// it. The canceller publishes the result and closes the waiter;
		// block on the waiter so the result is never read mid-publish.
		o.mu.RLock()
		ch := o.waiters[id]
		o.mu.RUnlock()
		if ch != nil {
			<-ch
		}
		o.mu.RLock()
		res = o.results[id]
		o.mu.RUnlock()
	}
	o.memberFinished(ps, i, res)
	return res
}

// skipMember marks a member that will never start as cancelled by
// policy: an earlier serial member failed or a dependency did not
// complete.
func (o *Orchestrator) skipMember(ps *planState, i int) {
	id := ps.ids[i]
	rec, err := o.store.Cancelled(id, ReasonPolicy)
	if err != nil {
		// Already terminal, typically cancelled by the user first.
		o.mu.RLock()
		res := o.results[id]
		o.mu.RUnlock()
		if res == nil {
			if prior, getErr := o.store.Get(id); getErr == nil {
				res = syntheticCancelled(prior, prior.CancelReason)
				o.publish(res)
			}
		}
		o.memberFinished(ps, i, res)
		return
	}
	res := syntheticCancelled(rec, ReasonPolicy)
	o.publish(res)
	o.notifier.Notify(Event{Type: EventCancelled, ExecutionID: id, Result: res, Error: res.Error})
	o.memberFinished(ps, i, res)
}

func (o *Orchestrator) memberFinished(ps *planState, i int, res *Result) {
	completed := ps.setResult(i, res)
	o.notifier.Notify(Event{
		Type:        EventPlanProgress,
		PlanID:      ps.id,
		ExecutionID: ps.ids[i],
		Completed:   completed,
		Total:       len(ps.ids),
	})
}

func (o *Orchestrator) finishPlan(ps *planState) {
	ps.mu.Lock()
	results := make([]*Result, len(ps.results))
	copy(results, ps.results)
	ps.mu.Unlock()

	status, stats := rollup(results)
	completed := time.Now()
	final := &PlanResult{
		PlanID:      ps.id,
		Description: ps.plan.Description,
		Status:      status,
		Results:     results,
		Stats:       stats,
		StartedAt:   ps.started,
		CompletedAt: completed,
		DurationMS:  completed.Sub(ps.started).Milliseconds(),
	}

	ps.mu.Lock()
	ps.final = final
	ps.mu.Unlock()
	close(ps.done)

	logger.Infow("Plan finished",
		"plan_id", ps.id,
		"status", status,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"timed_out", stats.TimedOut,
		"cancelled", stats.Cancelled,
		"duration_ms", final.DurationMS)
}

func (o *Orchestrator) planByID(planID string) (*planState, error) {
	o.mu.RLock()
	ps, ok := o.plans[planID]
	o.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("no plan with id %s", planID)
	}
	return ps, nil
}

// PlanResult returns the aggregate result of a plan. It fails with a
// not-found error for unknown IDs and a plain error while any member is
// still in flight.
func (o *Orchestrator) PlanResult(planID string) (*PlanResult, error) {
	ps, err := o.planByID(planID)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	final := ps.final
	ps.mu.Unlock()
	if final == nil {
		return nil, errors.Newf("plan %s has not completed", planID)
	}
	return final, nil
}

// WaitPlan blocks until every plan member is terminal or the context
// expires.
func (o *Orchestrator) WaitPlan(ctx context.Context, planID string) (*PlanResult, error) {
	ps, err := o.planByID(planID)
	if err != nil {
		return nil, err
	}
	select {
	case <-ps.done:
		return o.PlanResult(planID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PlanExecutions returns the member execution IDs of a plan in member
// order.
func (o *Orchestrator) PlanExecutions(planID string) ([]string, error) {
	ps, err := o.planByID(planID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ps.ids))
	copy(ids, ps.ids)
	return ids, nil
}

// CancelPlan propagates cancellation to all members: running members
// are killed, members that have not started are marked cancelled by
// policy, terminal members are untouched.
func (o *Orchestrator) CancelPlan(planID string) error {
	ps, err := o.planByID(planID)
	if err != nil {
		return err
	}

	for _, id := range ps.ids {
		rec, err := o.store.Get(id)
		if err != nil || rec.Status.Terminal() {
			continue
		}
		reason := ReasonUser
		if rec.Status == StatusPending {
			reason = ReasonPolicy
		}
		if err := o.cancelWith(id, reason); err != nil {
			logger.Warnw("Failed to cancel plan member", "plan_id", planID, "execution_id", id, "error", err)
		}
	}
	logger.Infow("Plan cancellation requested", "plan_id", planID)
	return nil
}

// Shutdown stops accepting work and waits for in-flight executions to
// finish. When the context expires first, remaining processes are
// killed and their executions marked cancelled.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.closed.Store(true)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Warnw("Shutdown deadline reached, killing remaining executions")
		o.cancel()
		<-done
	}
	o.cancel()
	logger.Infow("Engine shut down", "executions", o.store.Len())
	return nil
}
