// Package dispatch fans a logical request out into numbered sub-request
// slots, runs them on a bounded worker pool, and commits the finalized
// result into the object store one partition at a time.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/betedge/edgelake/internal/artifact"
	"github.com/betedge/edgelake/internal/bus"
	"github.com/betedge/edgelake/internal/job"
	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/internal/normalize"
	"github.com/betedge/edgelake/internal/obs"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/internal/store"
	"github.com/betedge/edgelake/pkg/exception"
)

// Provider is the fetch capability the dispatcher needs.
type Provider interface {
	Ready(ctx context.Context) error
	Do(ctx context.Context, sub market.SubRequest) ([]byte, error)
}

// Ledger persists job lifecycle rows. A nil ledger disables persistence
// without changing pipeline behavior.
type Ledger interface {
	Create(ctx context.Context, id uuid.UUID, kind schema.DatasetKind, symbol string, totalParts int) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, completed int) error
	MarkDone(ctx context.Context, id uuid.UUID, failedSlots []int) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error
}

type Config struct {
	// Workers is the fetch pool size; it bounds provider concurrency and
	// should match the thread budget of the upstream terminal.
	Workers int

	// QueueSize buffers sub-requests between Submit and the pool.
	QueueSize int

	// EventBuffer sizes the progress event queue.
	EventBuffer int

	Endpoints market.Endpoints

	Provider Provider
	Store    store.ObjectStore

	// Ledger and Metrics are optional.
	Ledger  Ledger
	Metrics *obs.Metrics
}

func (cfg Config) withDefaults() Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	if cfg.Endpoints == (market.Endpoints{}) {
		cfg.Endpoints = market.DefaultEndpoints()
	}

	return cfg
}

func (cfg Config) validate() error {
	if cfg.Provider == nil {
		return errors.Wrap(exception.ErrNilInstance, "dispatch provider")
	}

	if cfg.Store == nil {
		return errors.Wrap(exception.ErrNilInstance, "dispatch store")
	}

	return nil
}

type task struct {
	sub market.SubRequest
	e   *entry
}

// Dispatcher owns the fan-out pipeline.
type Dispatcher struct {
	cfg    Config
	events *bus.Queue
	trace  *obs.TraceGenerator

	tasks chan task
	wg    sync.WaitGroup

	mu   sync.Mutex
	jobs map[uuid.UUID]*entry

	running   chan struct{}
	startOnce sync.Once
	runCtx    context.Context
}

func New(cfg Config) (*Dispatcher, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Dispatcher{
		cfg:     cfg,
		events:  bus.NewQueue(cfg.EventBuffer),
		trace:   obs.NewTraceGenerator(0),
		tasks:   make(chan task, cfg.QueueSize),
		jobs:    make(map[uuid.UUID]*entry),
		running: make(chan struct{}),
	}, nil
}

// Events is the progress stream consumed by the API hub.
func (d *Dispatcher) Events() *bus.Queue { return d.events }

// Running closes once Run has started the worker pool. Callers should wait
// on it before accepting submissions.
func (d *Dispatcher) Running() <-chan struct{} { return d.running }

// Run starts the worker pool and blocks until ctx is done, then aborts
// every open job, drains the workers, and closes the event stream.
func (d *Dispatcher) Run(ctx context.Context) {
	d.startOnce.Do(func() {
		d.runCtx = ctx
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx)
		}
		close(d.running)
	})

	<-ctx.Done()

	d.abortOpen()
	d.wg.Wait()
	d.events.Close()
}

// Submit expands one logical request and hands its sub-requests to the
// pool. Async mode returns as soon as every slot is queued; sync mode waits
// for the commit or for ctx.
func (d *Dispatcher) Submit(ctx context.Context, req market.LogicalRequest, mode Mode) (*Ticket, error) {
	if !mode.IsAvailable() {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "submit mode %d", mode)
	}

	select {
	case <-d.running:
	default:
		return nil, errors.Wrap(exception.ErrInternal, "dispatcher is not running")
	}

	if err := d.cfg.Provider.Ready(ctx); err != nil {
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	plans, err := req.Plan(d.cfg.Endpoints)
	if err != nil {
		return nil, err
	}

	if len(plans) == 0 {
		return nil, errors.Wrapf(exception.ErrEmptyExpansion, "request %s", req)
	}

	plans, err = d.filterExisting(ctx, req, plans)
	if err != nil {
		return nil, err
	}

	subs, keys := numberSlots(plans)
	if len(subs) == 0 {
		return nil, errors.Wrapf(exception.ErrEmptyExpansion, "request %s", req)
	}

	id := uuid.New()

	j, err := job.New(id, len(subs))
	if err != nil {
		return nil, err
	}

	e := newEntry(j, subs, keys)

	d.mu.Lock()
	d.jobs[id] = e
	d.mu.Unlock()

	if d.cfg.Ledger != nil {
		if err := d.cfg.Ledger.Create(ctx, id, req.Kind(), req.Symbol(), len(subs)); err != nil {
			return nil, errors.Wrapf(err, "record job %s", id)
		}
	}

	d.cfg.Metrics.IncJobSubmitted()
	logs.Infof("job %s: %s, %d parts across %d partitions", id, req, len(subs), len(keys))

	ticket := &Ticket{JobID: id, Job: j, Keys: keys, e: e}

	for _, sub := range subs {
		select {
		case d.tasks <- task{sub: sub, e: e}:
		case <-ctx.Done():
			d.abort(e, ctx.Err())
			return nil, ctx.Err()
		case <-d.runCtx.Done():
			d.abort(e, d.runCtx.Err())
			return nil, errors.Wrap(exception.ErrInternal, "dispatcher stopped during submit")
		}
	}

	if d.cfg.Ledger != nil {
		if err := d.cfg.Ledger.MarkRunning(ctx, id); err != nil {
			logs.Errorf("job %s mark running, err: %+v", id, err)
		}
	}

	if mode == ModeSync {
		select {
		case <-e.done:
			return ticket, nil
		case <-ctx.Done():
			d.abort(e, ctx.Err())
			return nil, ctx.Err()
		}
	}

	return ticket, nil
}

// Poll reports the current status of a submitted job.
func (d *Dispatcher) Poll(id uuid.UUID) (Status, error) {
	d.mu.Lock()
	e, ok := d.jobs[id]
	d.mu.Unlock()

	if !ok {
		return Status{}, errors.Wrapf(exception.ErrJobNotFound, "job %s", id)
	}

	return d.status(e), nil
}

// List reports every job the dispatcher has accepted since start, newest
// first.
func (d *Dispatcher) List() []Status {
	d.mu.Lock()
	entries := make([]*entry, 0, len(d.jobs))
	for _, e := range d.jobs {
		entries = append(entries, e)
	}
	d.mu.Unlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, d.status(e))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })

	return out
}

func (d *Dispatcher) status(e *entry) Status {
	completed, total, state := e.job.Snapshot()

	return Status{
		JobID:     e.job.ID(),
		State:     state,
		Completed: completed,
		Total:     total,
		Failures:  e.job.Failures(),
		Keys:      e.keys,
		Created:   e.created,
		Err:       e.loadErr(),
	}
}

// filterExisting drops months whose partition object is already committed,
// unless the request forces a refresh.
func (d *Dispatcher) filterExisting(ctx context.Context, req market.LogicalRequest, plans []market.MonthPlan) ([]market.MonthPlan, error) {
	if req.Refresh() {
		return plans, nil
	}

	kept := make([]market.MonthPlan, 0, len(plans))
	for _, p := range plans {
		exists, err := d.cfg.Store.Exists(ctx, p.Key.String())
		if err != nil {
			return nil, errors.Wrapf(err, "check %s", p.Key)
		}

		if exists {
			continue
		}

		kept = append(kept, p)
	}

	if len(kept) == 0 {
		return nil, errors.Wrapf(exception.ErrNothingToFetch, "request %s", req)
	}

	return kept, nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.tasks:
			d.execute(ctx, t)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, t task) {
	traceID := d.trace.Next()
	start := time.Now()

	body, err := d.cfg.Provider.Do(ctx, t.sub)

	var table *schema.Table
	if err == nil {
		table, err = normalize.Normalize(body, t.sub)
	}

	if err != nil {
		d.cfg.Metrics.IncFetchFailure()
		logs.Errorf("trace %d job %s slot %d %s, err: %+v", traceID, t.e.job.ID(), t.sub.Slot, t.sub.Kind, err)

		table = sentinelTable(t.sub.Kind)
		if table == nil {
			return
		}
	}

	d.cfg.Metrics.ObserveFetch(t.sub.Kind, table.NumRows(), time.Since(start))

	finalize, recErr := t.e.job.RecordCompletion(t.sub.Slot, t.sub.Key, table, err)
	if recErr != nil {
		logs.Errorf("trace %d job %s record slot %d, err: %+v", traceID, t.e.job.ID(), t.sub.Slot, recErr)
		return
	}

	d.progress(ctx, t.e)

	if finalize {
		d.finalize(ctx, t.e)
	}
}

// sentinelTable builds the zero-row table a failed slot completes with, so
// a lost fetch still drives the job toward finalize.
func sentinelTable(kind schema.DatasetKind) *schema.Table {
	spec, err := schema.SpecFor(kind)
	if err != nil {
		logs.Errorf("sentinel spec %s, err: %+v", kind, err)
		return nil
	}

	table, err := schema.Empty(spec)
	if err != nil {
		logs.Errorf("sentinel table %s, err: %+v", kind, err)
		return nil
	}

	return table
}

// progress publishes an in-flight update. Terminal events are finalize's
// and abort's to publish, never this path's.
func (d *Dispatcher) progress(ctx context.Context, e *entry) {
	completed, total, state := e.job.Snapshot()
	if state != job.StateOpen {
		return
	}

	if d.cfg.Ledger != nil {
		if err := d.cfg.Ledger.UpdateProgress(ctx, e.job.ID(), completed); err != nil {
			logs.Errorf("job %s progress, err: %+v", e.job.ID(), err)
		}
	}

	d.publish(bus.Event{
		JobID:     e.job.ID(),
		State:     state.String(),
		Completed: completed,
		Total:     total,
		Failures:  len(e.job.Failures()),
	})
}

// finalize runs on the worker whose completion filled the last slot. Slots
// group by partition key in slot order, so output bytes do not depend on
// which worker finished when.
func (d *Dispatcher) finalize(ctx context.Context, e *entry) {
	tables := e.job.Tables()

	var commitErr error
	for _, g := range groupByKey(e.subs, tables) {
		start := time.Now()

		merged, err := schema.Concat(g.tables...)
		if err != nil {
			commitErr = errors.Wrapf(err, "merge %s", g.key)
			break
		}

		blob, err := artifact.Encode(merged)
		if err != nil {
			commitErr = errors.Wrapf(err, "encode %s", g.key)
			break
		}

		if err := d.cfg.Store.Put(ctx, g.key.String(), blob); err != nil {
			commitErr = errors.Wrapf(err, "commit %s", g.key)
			break
		}

		d.cfg.Metrics.ObserveCommit(len(blob), time.Since(start))
		logs.Infof("job %s committed %s: %d rows, %d bytes", e.job.ID(), g.key, merged.NumRows(), len(blob))
	}

	err := commitErr
	if err == nil {
		err = e.job.Err()
	}
	e.setErr(err)

	d.cfg.Metrics.IncJobFinalized()

	if d.cfg.Ledger != nil {
		if commitErr != nil {
			if lerr := d.cfg.Ledger.MarkFailed(ctx, e.job.ID(), commitErr.Error()); lerr != nil {
				logs.Errorf("job %s mark failed, err: %+v", e.job.ID(), lerr)
			}
		} else {
			if lerr := d.cfg.Ledger.MarkDone(ctx, e.job.ID(), failedSlots(e.job.Failures())); lerr != nil {
				logs.Errorf("job %s mark done, err: %+v", e.job.ID(), lerr)
			}
		}
	}

	completed, total, state := e.job.Snapshot()
	d.publish(bus.Event{
		JobID:     e.job.ID(),
		State:     state.String(),
		Completed: completed,
		Total:     total,
		Failures:  len(e.job.Failures()),
		Err:       errText(err),
	})

	e.finish()
}

// abort moves one job to its aborted terminal state; late completions from
// in-flight workers are dropped by the job itself.
func (d *Dispatcher) abort(e *entry, cause error) {
	if !e.job.Abort() {
		return
	}

	e.setErr(cause)
	d.cfg.Metrics.IncJobAborted()

	if d.cfg.Ledger != nil {
		if err := d.cfg.Ledger.MarkFailed(context.Background(), e.job.ID(), "aborted: "+errText(cause)); err != nil {
			logs.Errorf("job %s mark aborted, err: %+v", e.job.ID(), err)
		}
	}

	completed, total, _ := e.job.Snapshot()
	d.publish(bus.Event{
		JobID:     e.job.ID(),
		State:     job.StateAborted.String(),
		Completed: completed,
		Total:     total,
		Failures:  len(e.job.Failures()),
		Err:       errText(e.loadErr()),
	})

	e.finish()
}

func (d *Dispatcher) abortOpen() {
	d.mu.Lock()
	entries := make([]*entry, 0, len(d.jobs))
	for _, e := range d.jobs {
		entries = append(entries, e)
	}
	d.mu.Unlock()

	for _, e := range entries {
		d.abort(e, d.runCtx.Err())
	}
}

func (d *Dispatcher) publish(ev bus.Event) {
	if err := d.events.TryPublish(ev); err != nil {
		if errors.Is(err, bus.ErrQueueFull) {
			d.cfg.Metrics.IncEventDrop()
		}
	}
}

// numberSlots flattens month plans into the job's slot space. Slot order is
// plan order, so every replay of the same request numbers identically.
func numberSlots(plans []market.MonthPlan) ([]market.SubRequest, []partition.Key) {
	var subs []market.SubRequest
	keys := make([]partition.Key, 0, len(plans))

	for _, p := range plans {
		keys = append(keys, p.Key)
		for _, sub := range p.Subs {
			sub.Slot = len(subs)
			subs = append(subs, sub)
		}
	}

	return subs, keys
}

type keyGroup struct {
	key    partition.Key
	tables []*schema.Table
}

func groupByKey(subs []market.SubRequest, tables []*schema.Table) []keyGroup {
	idx := make(map[string]int, len(subs))

	var groups []keyGroup
	for i, sub := range subs {
		ks := sub.Key.String()

		gi, ok := idx[ks]
		if !ok {
			gi = len(groups)
			idx[ks] = gi
			groups = append(groups, keyGroup{key: sub.Key})
		}

		groups[gi].tables = append(groups[gi].tables, tables[i])
	}

	return groups
}

func failedSlots(failures []job.SlotFailure) []int {
	out := make([]int, 0, len(failures))
	for _, f := range failures {
		out = append(out, f.Slot)
	}

	return out
}

func errText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
