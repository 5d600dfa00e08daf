// Package fetch is the HTTP edge of the pipeline. It knows provider status
// conventions and the retry budget, nothing about schemas or partitions.
package fetch

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/pkg/exception"
)

// noDataMarker is ThetaData's body text on status 472 when the range holds
// no rows. That combination is a legitimate empty answer, not a failure.
const noDataMarker = "No data for the specified timeframe"

// Backoff controls the delay between retry attempts.
type Backoff struct {
	// Min is the minimum backoff duration.
	Min time.Duration
	// Max is the maximum backoff duration.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}

// DefaultBackoff provides conservative retry defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the backoff duration for the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 5 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

type Config struct {
	// Timeout bounds one HTTP exchange, not the whole retry budget.
	Timeout time.Duration

	// Attempts is the total number of tries for transient failures.
	Attempts int

	Backoff Backoff

	// ProbeURL is hit by Ready. Empty disables the probe.
	ProbeURL string
}

func (cfg Config) withDefaults() Config {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}

	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	return cfg
}

// Client fetches sub-request payloads with a bounded retry budget.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Do fetches one sub-request. Transient failures (429, 5xx, network errors)
// are retried up to the attempt budget; other 4xx fail immediately. The
// returned payload is empty when the provider reports no data for the range.
func (c *Client) Do(ctx context.Context, sub market.SubRequest) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		body, retry, err := c.once(ctx, sub)
		if err == nil {
			return body, nil
		}

		if !retry {
			return nil, err
		}

		lastErr = err
	}

	return nil, errors.Wrapf(exception.ErrFetchTransient,
		"%d attempts exhausted for %s, last err: %+v", c.cfg.Attempts, sub.URL, lastErr)
}

func (c *Client) once(ctx context.Context, sub market.SubRequest) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.URL, nil)
	if err != nil {
		return nil, false, errors.Wrapf(exception.ErrFetchPermanent, "build request %s: %+v", sub.URL, err)
	}

	for k, vs := range sub.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		return nil, true, errors.Wrapf(exception.ErrFetchTransient, "do %s: %+v", sub.URL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.Wrapf(exception.ErrFetchTransient, "read body %s: %+v", sub.URL, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return payload, false, nil

	case resp.StatusCode == 472 && bytes.Contains(payload, []byte(noDataMarker)):
		return nil, false, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, errors.Wrapf(exception.ErrFetchTransient,
			"status %d for %s", resp.StatusCode, sub.URL)

	default:
		return nil, false, errors.Wrapf(exception.ErrFetchPermanent,
			"status %d for %s: %s", resp.StatusCode, sub.URL, firstLine(payload))
	}
}

// Ready probes the configured provider URL. Any HTTP answer below 500 means
// the terminal is up and listening; connection failures mean it is not.
func (c *Client) Ready(ctx context.Context) error {
	if c.cfg.ProbeURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeURL, nil)
	if err != nil {
		return errors.Wrapf(exception.ErrProviderNotReady, "probe %s: %+v", c.cfg.ProbeURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(exception.ErrProviderNotReady, "probe %s: %+v", c.cfg.ProbeURL, err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return errors.Wrapf(exception.ErrProviderNotReady, "probe %s: status %d", c.cfg.ProbeURL, resp.StatusCode)
	}

	return nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := c.cfg.Backoff.Next(attempt)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func firstLine(body []byte) string {
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[:i]
	}

	if len(body) > 200 {
		body = body[:200]
	}

	return string(bytes.TrimSpace(body))
}
