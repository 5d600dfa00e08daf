package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betedge/edgelake/internal/job"
	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/internal/partition"
)

// entry is the dispatcher's bookkeeping for one submitted job. The done
// channel closes exactly once, after commit or abort.
type entry struct {
	job     *job.Job
	subs    []market.SubRequest
	keys    []partition.Key
	created time.Time

	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

func newEntry(j *job.Job, subs []market.SubRequest, keys []partition.Key) *entry {
	return &entry{
		job:     j,
		subs:    subs,
		keys:    keys,
		created: time.Now(),
		done:    make(chan struct{}),
	}
}

func (e *entry) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err == nil {
		e.err = err
	}
}

func (e *entry) loadErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.err
}

func (e *entry) finish() {
	e.once.Do(func() { close(e.done) })
}

// Ticket is the caller's handle on a submitted job.
type Ticket struct {
	JobID uuid.UUID
	Job   *job.Job

	// Keys are the partitions this job commits into, ascending by month
	// within each dataset.
	Keys []partition.Key

	e *entry
}

// Done closes after the job reaches a terminal state and, on finalize, its
// partitions are committed.
func (t *Ticket) Done() <-chan struct{} { return t.e.done }

// Err reports the job outcome: nil before Done, then the commit error or
// the folded slot failures.
func (t *Ticket) Err() error {
	select {
	case <-t.e.done:
		return t.e.loadErr()
	default:
		return nil
	}
}

// Status is a point-in-time job view for polling.
type Status struct {
	JobID     uuid.UUID
	State     job.State
	Completed int
	Total     int
	Failures  []job.SlotFailure
	Keys      []partition.Key
	Created   time.Time
	Err       error
}
