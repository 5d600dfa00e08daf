package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	c, err := New(db)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	return c
}

func TestLifecycle(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	id := uuid.New()

	if err := c.Create(ctx, id, schema.DatasetStockQuote, "SPY", 4); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if rec.State != StateQueued || rec.Dataset != "stock-quote" || rec.Symbol != "SPY" || rec.TotalParts != 4 {
		t.Fatalf("record = %+v", rec)
	}

	if err := c.MarkRunning(ctx, id); err != nil {
		t.Fatalf("mark running: %v", err)
	}

	if err := c.UpdateProgress(ctx, id, 3); err != nil {
		t.Fatalf("progress: %v", err)
	}

	rec, err = c.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if rec.State != StateRunning || rec.CompletedParts != 3 {
		t.Fatalf("record = %+v", rec)
	}

	if err := c.MarkDone(ctx, id, []int{1, 3}); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	rec, err = c.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if rec.State != StateDone || rec.FailedSlots != "1,3" {
		t.Fatalf("record = %+v", rec)
	}

	// Done snaps the completed count to the total.
	if rec.CompletedParts != 4 {
		t.Fatalf("completed = %d, want 4", rec.CompletedParts)
	}

	if got := rec.FailedSlotList(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("failed slots = %v", got)
	}
}

func TestMarkFailed(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	id := uuid.New()

	if err := c.Create(ctx, id, schema.DatasetEarnings, "", 2); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := c.MarkFailed(ctx, id, "aborted: context canceled"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	rec, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if rec.State != StateFailed || rec.Error != "aborted: context canceled" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestGetUnknownJob(t *testing.T) {
	c := testCatalog(t)

	if _, err := c.Get(context.Background(), uuid.New()); !errors.Is(err, exception.ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		if err := c.Create(ctx, ids[i], schema.DatasetStockEOD, "SPY", 1); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}

		time.Sleep(2 * time.Millisecond)
	}

	recs, err := c.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("got %d rows, want 2", len(recs))
	}

	if recs[0].ID != ids[2] || recs[1].ID != ids[1] {
		t.Fatalf("order = %v, %v", recs[0].ID, recs[1].ID)
	}
}

func TestNewRejectsNilDB(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, exception.ErrNilInstance) {
		t.Fatalf("want ErrNilInstance, got %v", err)
	}
}

func TestFailedSlotListIgnoresGarbage(t *testing.T) {
	rec := Record{FailedSlots: "2, x ,7"}
	if got := rec.FailedSlotList(); len(got) != 2 || got[0] != 2 || got[1] != 7 {
		t.Fatalf("failed slots = %v", got)
	}
}
