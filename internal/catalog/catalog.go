// Package catalog persists job lifecycle rows through gorm so operators
// can audit what was ingested after the fact. The dispatcher treats a nil
// catalog as persistence disabled.
package catalog

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

// Stored job states. Queued rows belong to jobs accepted but not yet
// handed to the worker pool.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// Record is one job's catalog row.
type Record struct {
	ID             uuid.UUID `gorm:"primaryKey;type:uuid"`
	Dataset        string    `gorm:"size:32;index"`
	Symbol         string    `gorm:"size:32;index"`
	State          string    `gorm:"size:16;index"`
	TotalParts     int
	CompletedParts int

	// FailedSlots is a comma joined slot index list, empty when every
	// slot produced rows.
	FailedSlots string
	Error       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Record) TableName() string { return "ingest_jobs" }

// FailedSlotList parses the joined slot list back into indices.
func (r Record) FailedSlotList() []int {
	if r.FailedSlots == "" {
		return nil
	}

	parts := strings.Split(r.FailedSlots, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}

		out = append(out, n)
	}

	return out
}

// Catalog is the gorm backed job ledger.
type Catalog struct {
	db *gorm.DB
}

// New migrates the job table and returns the catalog.
func New(db *gorm.DB) (*Catalog, error) {
	if db == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "catalog db")
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, errors.Wrap(err, "migrate catalog")
	}

	return &Catalog{db: db}, nil
}

// Create inserts the queued row for a freshly accepted job.
func (c *Catalog) Create(ctx context.Context, id uuid.UUID, kind schema.DatasetKind, symbol string, totalParts int) error {
	rec := Record{
		ID:         id,
		Dataset:    kind.String(),
		Symbol:     symbol,
		State:      StateQueued,
		TotalParts: totalParts,
	}

	if err := c.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrapf(err, "create job %s", id)
	}

	return nil
}

// MarkRunning transitions the row once every slot is on the worker queue.
func (c *Catalog) MarkRunning(ctx context.Context, id uuid.UUID) error {
	if err := c.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", id).
		Update("state", StateRunning).Error; err != nil {
		return errors.Wrapf(err, "mark job %s running", id)
	}

	return nil
}

// UpdateProgress bumps the completed slot count of an in-flight job.
func (c *Catalog) UpdateProgress(ctx context.Context, id uuid.UUID, completed int) error {
	if err := c.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", id).
		Update("completed_parts", completed).Error; err != nil {
		return errors.Wrapf(err, "progress job %s", id)
	}

	return nil
}

// MarkDone closes the row after commit, recording which slots failed. The
// completed count snaps to the total: done means every slot accounted for.
func (c *Catalog) MarkDone(ctx context.Context, id uuid.UUID, failedSlots []int) error {
	updates := map[string]any{
		"state":           StateDone,
		"failed_slots":    joinSlots(failedSlots),
		"completed_parts": gorm.Expr("total_parts"),
	}

	if err := c.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return errors.Wrapf(err, "mark job %s done", id)
	}

	return nil
}

// MarkFailed records a terminal failure or abort with its cause.
func (c *Catalog) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	updates := map[string]any{
		"state": StateFailed,
		"error": cause,
	}

	if err := c.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return errors.Wrapf(err, "mark job %s failed", id)
	}

	return nil
}

// Get loads one job row.
func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	var rec Record

	err := c.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, errors.Wrapf(exception.ErrJobNotFound, "job %s", id)
		}

		return Record{}, errors.Wrapf(err, "get job %s", id)
	}

	return rec, nil
}

// List returns the newest rows first, capped at limit.
func (c *Catalog) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	var recs []Record
	if err := c.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}

	return recs, nil
}

func joinSlots(slots []int) string {
	if len(slots) == 0 {
		return ""
	}

	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, strconv.Itoa(s))
	}

	return strings.Join(parts, ",")
}
