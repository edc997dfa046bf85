package checkout

import (
	"context"
	"time"

	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

// Compensator deletes records whose payment failed. Failures are retried
// with exponential backoff and then only logged.
type Compensator struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	metrics     *metrics.CheckoutMetrics
	logger      *logging.Logger
}

// NewCompensator tries 4 times starting from a 2s delay. m may be nil.
func NewCompensator(m *metrics.CheckoutMetrics, logger *logging.Logger) *Compensator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Compensator{
		maxAttempts: 4,
		baseDelay:   2 * time.Second,
		maxDelay:    30 * time.Second,
		metrics:     m,
		logger:      logger,
	}
}

// WithMaxAttempts bounds the delete attempts.
func (c *Compensator) WithMaxAttempts(n int) *Compensator {
	if n > 0 {
		c.maxAttempts = n
	}
	return c
}

// WithBaseDelay sets the wait before the first retry; later waits double.
func (c *Compensator) WithBaseDelay(d time.Duration) *Compensator {
	if d > 0 {
		c.baseDelay = d
		if c.maxDelay < d {
			c.maxDelay = d
		}
	}
	return c
}

// Run attempts the compensating delete and reports whether it succeeded.
func (c *Compensator) Run(ctx context.Context, gw Gateway, id int64) bool {
	kind := gw.Kind()
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		err := gw.Compensate(ctx, id)
		if err == nil {
			c.metrics.ObserveCompensation(kind, "ok")
			c.logger.Info("compensating delete done", "kind", kind, "id", id, "attempt", attempt+1)
			return true
		}
		if attempt == c.maxAttempts-1 {
			c.logger.Error("compensating delete gave up", "kind", kind, "id", id, "attempts", c.maxAttempts, "error", err)
			break
		}
		next := c.nextDelay(attempt)
		c.logger.Warn("compensating delete failed", "kind", kind, "id", id, "attempt", attempt+1, "retry_in", next, "error", err)

		t := time.NewTimer(next)
		select {
		case <-ctx.Done():
			t.Stop()
			c.metrics.ObserveCompensation(kind, "aborted")
			c.logger.Error("compensating delete aborted", "kind", kind, "id", id, "error", ctx.Err())
			return false
		case <-t.C:
		}
	}
	c.metrics.ObserveCompensation(kind, "failed")
	return false
}

func (c *Compensator) nextDelay(attempts int) time.Duration {
	delay := c.baseDelay * time.Duration(1<<attempts)
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}
