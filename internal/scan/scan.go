// Package scan reads committed partitions back out of the object store,
// verifies each one against the schema registry, and unions the survivors
// into a single table.
package scan

import (
	"context"
	"strings"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/betedge/edgelake/internal/artifact"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/internal/store"
	"github.com/betedge/edgelake/pkg/exception"
)

// MissingPolicy decides what an absent partition does to a retrieval.
type MissingPolicy uint8

const (
	_policy_beg MissingPolicy = iota
	OnMissingFail
	OnMissingSkip
	_policy_end
)

func (p MissingPolicy) IsAvailable() bool {
	return p > _policy_beg && p < _policy_end
}

func (p MissingPolicy) String() string {
	switch p {
	case OnMissingFail:
		return "fail"
	case OnMissingSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ParseMissingPolicy maps the external policy name back to its value.
// Empty selects fail, the strict default.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "", "fail":
		return OnMissingFail, nil
	case "skip":
		return OnMissingSkip, nil
	default:
		return _policy_beg, errors.Wrapf(exception.ErrInvalidArgument, "missing policy %q", s)
	}
}

// RetrieveRequest names the partitions one retrieval covers: either an
// explicit month range or everything the store holds for the dataset.
type RetrieveRequest struct {
	Dataset  schema.DatasetKind
	Symbol   string
	Interval int

	StartMonth partition.YearMonth
	EndMonth   partition.YearMonth

	// All scans every committed month instead of an explicit range.
	All bool
}

func (r RetrieveRequest) Validate() error {
	if !r.Dataset.IsAvailable() {
		return errors.Wrapf(exception.ErrUnknownDataset, "dataset %d", r.Dataset)
	}

	if r.Dataset != schema.DatasetEarnings && (r.Symbol == "" || strings.Contains(r.Symbol, "/")) {
		return errors.Wrapf(exception.ErrInvalidArgument, "symbol %q", r.Symbol)
	}

	if r.All {
		return nil
	}

	if r.StartMonth == 0 || r.EndMonth == 0 {
		return errors.Wrap(exception.ErrInvalidRange, "missing month range")
	}

	if _, err := partition.ParseYearMonth(int(r.StartMonth)); err != nil {
		return errors.Wrap(err, "start month")
	}

	if _, err := partition.ParseYearMonth(int(r.EndMonth)); err != nil {
		return errors.Wrap(err, "end month")
	}

	if r.EndMonth < r.StartMonth {
		return errors.Wrapf(exception.ErrInvalidRange, "end %d before start %d", r.EndMonth, r.StartMonth)
	}

	return nil
}

// Result is one retrieval outcome. Found and Missing partition the keys the
// request expanded into; Table is the union of the found partitions, zero
// rows when nothing was found.
type Result struct {
	Table   *schema.Table
	Found   []partition.Key
	Missing []partition.Key
}

// Scanner is the retrieval side of the pipeline.
type Scanner struct {
	store     store.ObjectStore
	onMissing MissingPolicy
}

func New(st store.ObjectStore, onMissing MissingPolicy) (*Scanner, error) {
	if st == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "scan store")
	}

	if !onMissing.IsAvailable() {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "missing policy %d", onMissing)
	}

	return &Scanner{store: st, onMissing: onMissing}, nil
}

// Retrieve expands the request into partition keys, reads and verifies each
// one, and concatenates the tables in ascending month order. A partition
// whose stored layout no longer matches the registry fails the whole
// retrieval regardless of the missing policy: drift is never skippable.
func (s *Scanner) Retrieve(ctx context.Context, req RetrieveRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	keys, err := s.expand(ctx, req)
	if err != nil {
		return nil, err
	}

	spec, err := schema.SpecFor(req.Dataset)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	tables := make([]*schema.Table, 0, len(keys))

	for _, key := range keys {
		blob, err := s.store.Get(ctx, key.String())
		if err != nil {
			if !errors.Is(err, exception.ErrObjectMissing) {
				return nil, errors.Wrapf(err, "get %s", key)
			}

			if s.onMissing == OnMissingFail {
				return nil, errors.Wrapf(exception.ErrMissingPartition, "%s", key)
			}

			logs.Infof("retrieve skipping absent partition %s", key)
			res.Missing = append(res.Missing, key)

			continue
		}

		table, err := artifact.Decode(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", key)
		}

		if !table.Spec().Equal(spec) {
			return nil, errors.Wrapf(exception.ErrSchemaDrift, "partition %s", key)
		}

		res.Found = append(res.Found, key)
		tables = append(tables, table)
	}

	if len(tables) == 0 {
		empty, err := schema.Empty(spec)
		if err != nil {
			return nil, err
		}

		res.Table = empty

		return res, nil
	}

	merged, err := schema.Concat(tables...)
	if err != nil {
		return nil, err
	}

	res.Table = merged

	return res, nil
}

// expand resolves the request to concrete keys: the month walk for a range,
// a prefix listing for All.
func (s *Scanner) expand(ctx context.Context, req RetrieveRequest) ([]partition.Key, error) {
	if !req.All {
		return partition.Keys(req.Dataset, req.Symbol, req.Interval, req.StartMonth, req.EndMonth)
	}

	names, err := s.store.List(ctx, partition.Pattern(req.Dataset, req.Symbol, req.Interval))
	if err != nil {
		return nil, errors.Wrap(err, "list partitions")
	}

	keys := make([]partition.Key, 0, len(names))
	for _, name := range names {
		key, err := partition.Parse(name)
		if err != nil {
			return nil, errors.Wrapf(err, "stored key %s", name)
		}

		keys = append(keys, key)
	}

	return keys, nil
}
