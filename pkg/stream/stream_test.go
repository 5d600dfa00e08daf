package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"go.uber.org/goleak"

	"github.com/betedge/edgelake/internal/bus"
	"github.com/betedge/edgelake/pkg/exception"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClientReceivesEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	upgrader := websocket.Upgrader{}
	jobID := uuid.New()
	serveDone := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 1; i <= 3; i++ {
			ev := bus.Event{JobID: jobID, State: "open", Completed: i, Total: 3}
			if i == 3 {
				ev.State = "finalized"
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		<-serveDone
	}))
	defer ts.Close()
	defer close(serveDone)

	client, err := New(Config{
		URL:     wsURL(ts),
		Backoff: Backoff{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new client, err: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = client.Run(ctx)
	}()

	got := make([]bus.Event, 0, 3)
	consumeCtx, stopConsume := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopConsume()
	client.Events().Run(consumeCtx, func(ev bus.Event) {
		got = append(got, ev)
		if len(got) == 3 {
			stopConsume()
		}
	})

	cancel()
	<-runDone

	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	if got[0].JobID != jobID {
		t.Fatalf("job id = %s, want %s", got[0].JobID, jobID)
	}
	last := got[2]
	if last.State != "finalized" || last.Completed != 3 {
		t.Fatalf("last event = %+v", last)
	}
	if n := client.Dropped(); n != 0 {
		t.Fatalf("dropped = %d, want 0", n)
	}
}

func TestClientReconnects(t *testing.T) {
	defer goleak.VerifyNone(t)

	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	serveDone := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := conns.Add(1)
		if err := conn.WriteJSON(bus.Event{State: "open", Completed: int(n), Total: 2}); err != nil {
			return
		}
		if n == 1 {
			return // drop the first session
		}
		<-serveDone
	}))
	defer ts.Close()
	defer close(serveDone)

	var disconnects atomic.Int32
	client, err := New(Config{
		URL:          wsURL(ts),
		Backoff:      Backoff{Min: 5 * time.Millisecond, Max: 20 * time.Millisecond},
		OnDisconnect: func(error) { disconnects.Add(1) },
	})
	if err != nil {
		t.Fatalf("new client, err: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = client.Run(ctx)
	}()

	got := make([]bus.Event, 0, 2)
	consumeCtx, stopConsume := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopConsume()
	client.Events().Run(consumeCtx, func(ev bus.Event) {
		got = append(got, ev)
		if len(got) == 2 {
			stopConsume()
		}
	})

	cancel()
	<-runDone

	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Completed != 1 || got[1].Completed != 2 {
		t.Fatalf("events out of order: %+v", got)
	}
	if n := conns.Load(); n < 2 {
		t.Fatalf("connections = %d, want at least 2", n)
	}
	if n := disconnects.Load(); n < 1 {
		t.Fatalf("disconnect callback never fired")
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, exception.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := Backoff{Min: 10 * time.Millisecond, Max: 80 * time.Millisecond, Factor: 2}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 80 * time.Millisecond},
		{9, 80 * time.Millisecond},
	}
	for _, c := range cases {
		if got := b.Next(c.attempt); got != c.want {
			t.Fatalf("attempt %d = %s, want %s", c.attempt, got, c.want)
		}
	}
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 100 * time.Millisecond, Jitter: 0.5}

	for i := 0; i < 50; i++ {
		got := b.Next(1)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered delay %s outside band", got)
		}
	}
}
