package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

// Poller checks a payment status on a fixed interval until it is settled.
type Poller struct {
	interval    time.Duration
	maxAttempts int
	timeout     time.Duration
	metrics     *metrics.CheckoutMetrics
	logger      *logging.Logger
}

// NewPoller polls every 5s, at most 60 times and for at most 10 minutes.
// m may be nil.
func NewPoller(m *metrics.CheckoutMetrics, logger *logging.Logger) *Poller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		interval:    5 * time.Second,
		maxAttempts: 60,
		timeout:     10 * time.Minute,
		metrics:     m,
		logger:      logger,
	}
}

// WithInterval sets the delay before each check.
func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

// WithMaxAttempts bounds the number of checks. Zero or less means unbounded.
func (p *Poller) WithMaxAttempts(n int) *Poller {
	p.maxAttempts = n
	return p
}

// WithTimeout bounds the total polling time. Zero or less means unbounded.
func (p *Poller) WithTimeout(d time.Duration) *Poller {
	p.timeout = d
	return p
}

// Poll checks gw every interval, starting one interval after the call. It
// returns once the payment is settled, a check errors, a bound is hit or ctx
// is done. No timer outlives the call.
func (p *Poller) Poll(ctx context.Context, gw Gateway, id int64) Outcome {
	kind := gw.Kind()
	out := Outcome{Kind: kind, ID: id}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			out.Result = ResultCancelled
			out.Err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			return out
		case <-deadline:
			out.Result = ResultTimeout
			out.Err = fmt.Errorf("%w: no confirmation after %s", ErrPaymentTimeout, p.timeout)
			return out
		case <-ticker.C:
		}

		out.Attempts++
		res, err := gw.Check(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				out.Result = ResultCancelled
				out.Err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
				return out
			}
			p.metrics.ObservePoll(kind, "error")
			p.logger.Warn("payment status check failed", "kind", kind, "id", id, "attempt", out.Attempts, "error", err)
			out.Result = ResultFailed
			out.Err = fmt.Errorf("%w: %w", ErrPollFailed, err)
			return out
		}
		p.metrics.ObservePoll(kind, res.Status.String())

		switch res.Status {
		case StatusSucceeded:
			out.Result = ResultSucceeded
			out.Receipt = res.Receipt
			return out
		case StatusFailed:
			out.Result = ResultFailed
			reason := res.Reason
			if reason == "" {
				reason = "declined"
			}
			out.Err = fmt.Errorf("%w: %s", ErrPaymentFailed, reason)
			return out
		}

		p.logger.Debug("payment still pending", "kind", kind, "id", id, "attempt", out.Attempts)
		if p.maxAttempts > 0 && out.Attempts >= p.maxAttempts {
			out.Result = ResultTimeout
			out.Err = fmt.Errorf("%w: still pending after %d checks", ErrPaymentTimeout, out.Attempts)
			return out
		}
	}
}
