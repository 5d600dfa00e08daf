// Package stream consumes the manager's job event websocket. The client
// redials dropped sessions with jittered backoff and hands events to a
// bounded queue, so a slow consumer loses updates rather than stalling
// the read loop.
package stream

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/bus"
	"github.com/betedge/edgelake/pkg/exception"
)

const (
	defaultQueueSize   = 64
	defaultDialTimeout = 10 * time.Second

	// readWait must outlast the server's ping interval or healthy idle
	// sessions time out.
	readWait  = 90 * time.Second
	writeWait = 10 * time.Second
)

// Backoff shapes the delay between redial attempts.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff retries quickly at first and settles at five seconds.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}

// Next returns the delay before the given attempt, counted from one.
func (b Backoff) Next(attempt int) time.Duration {
	floor, ceil, factor := b.Min, b.Max, b.Factor
	if floor <= 0 {
		floor = 100 * time.Millisecond
	}
	if ceil <= 0 {
		ceil = 5 * time.Second
	}
	if factor <= 1 {
		factor = 2
	}

	wait := float64(floor)
	for i := 1; i < attempt && time.Duration(wait) < ceil; i++ {
		wait *= factor
	}
	if time.Duration(wait) > ceil {
		wait = float64(ceil)
	}

	if b.Jitter > 0 {
		j := b.Jitter
		if j > 1 {
			j = 1
		}
		spread := wait * j
		wait += rand.Float64()*2*spread - spread
	}

	return time.Duration(wait)
}

// Config sets up a stream client. URL is required, everything else has
// working defaults.
type Config struct {
	// URL is the ws or wss endpoint of the job stream.
	URL string

	// QueueSize bounds buffered events between the read loop and the
	// consumer.
	QueueSize int

	DialTimeout time.Duration
	Backoff     Backoff

	// OnConnect and OnDisconnect observe session boundaries. Both may
	// be nil. OnDisconnect fires only for sessions that were
	// established, not for failed dials.
	OnConnect    func()
	OnDisconnect func(err error)
}

// Client maintains one websocket session at a time against the job
// stream and republishes its events locally.
type Client struct {
	cfg       Config
	queue     *bus.Queue
	connected atomic.Bool
	dropped   atomic.Uint64
}

// New validates the config and builds a client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "stream: url is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	return &Client{cfg: cfg, queue: bus.NewQueue(cfg.QueueSize)}, nil
}

// Events returns the queue the read loop publishes into. The queue
// closes when Run returns.
func (c *Client) Events() *bus.Queue { return c.queue }

// Connected reports whether a session is currently established.
func (c *Client) Connected() bool { return c.connected.Load() }

// Dropped counts events lost to a full queue.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// Run dials the stream and reads until the context ends. Dropped
// sessions are redialed, and the attempt counter resets after every
// established connection.
func (c *Client) Run(ctx context.Context) error {
	defer c.queue.Close()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			c.sleep(ctx, attempt)
			continue
		}

		attempt = 0
		c.connected.Store(true)
		if c.cfg.OnConnect != nil {
			c.cfg.OnConnect()
		}

		err = c.read(ctx, conn)
		c.connected.Store(false)
		if c.cfg.OnDisconnect != nil {
			c.cfg.OnDisconnect(err)
		}
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		c.sleep(ctx, attempt)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// read pumps events into the queue until the connection or the context
// ends. A full queue drops the event and counts it.
func (c *Client) read(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(payload string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(writeWait))
	})

	for {
		var ev bus.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		if err := c.queue.TryPublish(ev); err != nil {
			c.dropped.Add(1)
		}
	}
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := c.cfg.Backoff.Next(attempt)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
