// Package job tracks completion of a fixed set of numbered fetch slots.
// One mutex guards every transition, which is what makes the finalize
// signal single-fire no matter how many workers race to the last slot.
package job

import (
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

// State is the job lifecycle. Open accepts completions; Finalized and
// Aborted are terminal.
type State uint8

const (
	_state_beg State = iota
	StateOpen
	StateFinalized
	StateAborted
	_state_end
)

func (s State) IsAvailable() bool {
	return s > _state_beg && s < _state_end
}

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFinalized:
		return "finalized"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SlotFailure records one sub-request that produced no rows because its
// fetch failed. The slot still counts toward completion.
type SlotFailure struct {
	Slot int
	Key  partition.Key
	Err  error
}

// Job is the completion tracker for one submitted request.
type Job struct {
	id uuid.UUID

	mu       sync.Mutex
	state    State
	total    int
	filled   int
	tables   []*schema.Table
	failures []SlotFailure
}

func New(id uuid.UUID, totalParts int) (*Job, error) {
	if totalParts < 1 {
		return nil, errors.Wrapf(exception.ErrInvalidJob, "total parts %d", totalParts)
	}

	return &Job{
		id:     id,
		state:  StateOpen,
		total:  totalParts,
		tables: make([]*schema.Table, totalParts),
	}, nil
}

func (j *Job) ID() uuid.UUID { return j.id }

// RecordCompletion fills one slot with its normalized table. A failed fetch
// still fills its slot: the caller passes the zero-row sentinel plus the
// fetch error, so the job always converges. Exactly one caller observes
// finalize = true, the one whose fill completes the set.
//
// Completions on an aborted job are dropped without error; the race between
// cancellation and in-flight workers is expected. Completions on a
// finalized job are a programming error.
func (j *Job) RecordCompletion(slot int, key partition.Key, table *schema.Table, fetchErr error) (finalize bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.state {
	case StateAborted:
		return false, nil
	case StateFinalized:
		return false, errors.Wrapf(exception.ErrJobFinalized, "job %s slot %d", j.id, slot)
	}

	if slot < 0 || slot >= j.total {
		return false, errors.Wrapf(exception.ErrInvalidJob, "slot %d out of range [0,%d)", slot, j.total)
	}

	if table == nil {
		return false, errors.Wrapf(exception.ErrInvalidJob, "slot %d completed with nil table", slot)
	}

	if j.tables[slot] != nil {
		return false, errors.Wrapf(exception.ErrInvalidJob, "slot %d filled twice", slot)
	}

	j.tables[slot] = table
	if fetchErr != nil {
		j.failures = append(j.failures, SlotFailure{Slot: slot, Key: key, Err: fetchErr})
	}

	j.filled++
	if j.filled == j.total {
		j.state = StateFinalized

		return true, nil
	}

	return false, nil
}

// Abort moves an open job to its aborted terminal state. It reports whether
// this call performed the transition; aborting a finalized or already
// aborted job is a no-op.
func (j *Job) Abort() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateOpen {
		return false
	}

	j.state = StateAborted

	return true
}

// Snapshot reports progress at any point in the lifecycle.
func (j *Job) Snapshot() (completed, total int, state State) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.filled, j.total, j.state
}

// Tables returns the accumulated tables in slot order, independent of
// completion order. Only a finalized job has a complete set.
func (j *Job) Tables() []*schema.Table {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*schema.Table, len(j.tables))
	copy(out, j.tables)

	return out
}

// Failures lists the slots whose fetches failed, in completion order.
func (j *Job) Failures() []SlotFailure {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]SlotFailure, len(j.failures))
	copy(out, j.failures)

	return out
}

// Err folds the slot failures into one error, nil when every slot
// succeeded.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var merr *multierror.Error
	for _, f := range j.failures {
		merr = multierror.Append(merr, errors.Wrapf(f.Err, "slot %d (%s)", f.Slot, f.Key))
	}

	return merr.ErrorOrNil()
}
