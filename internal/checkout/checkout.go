package checkout

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var checkoutTracer = otel.Tracer("medcare.internal.checkout")

// Checkout wires the payment steps together.
type Checkout struct {
	poller      *Poller
	compensator *Compensator
	opener      Opener
	metrics     *metrics.CheckoutMetrics
	logger      *logging.Logger
}

// New builds a Checkout. A nil opener prints nothing and opens nothing.
func New(poller *Poller, compensator *Compensator, opener Opener, m *metrics.CheckoutMetrics, logger *logging.Logger) *Checkout {
	if logger == nil {
		logger = logging.Default()
	}
	if poller == nil {
		poller = NewPoller(m, logger)
	}
	if compensator == nil {
		compensator = NewCompensator(m, logger)
	}
	if opener == nil {
		opener = nopOpener{}
	}
	return &Checkout{
		poller:      poller,
		compensator: compensator,
		opener:      opener,
		metrics:     m,
		logger:      logger,
	}
}

// SessionOption customises a single payment session.
type SessionOption func(*Session)

// OnSuccess registers fn to run once the payment is confirmed, before Wait
// returns.
func OnSuccess(fn func(context.Context, Outcome)) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.onSuccess = append(s.onSuccess, fn)
		}
	}
}

// Begin requests the payment URL for id, opens it and starts polling in the
// background. When the URL cannot be obtained the record is compensated and
// the error returned; no session is started.
func (c *Checkout) Begin(ctx context.Context, gw Gateway, id int64, opts ...SessionOption) (*Session, error) {
	kind := gw.Kind()
	ctx, span := checkoutTracer.Start(ctx, "checkout.begin")
	defer span.End()
	span.SetAttributes(
		attribute.String("medcare.payment_kind", kind),
		attribute.String("medcare.target_id", strconv.FormatInt(id, 10)),
	)

	url, err := gw.RequestURL(ctx, id)
	if err == nil && url == "" {
		err = ErrNoPaymentURL
	}
	if err != nil {
		span.RecordError(err)
		c.logger.Error("payment url request failed", "kind", kind, "id", id, "error", err)
		c.metrics.ObserveSession(kind, "no_url")
		compensated := c.compensator.Run(context.WithoutCancel(ctx), gw, id)
		return nil, &InitError{Kind: kind, ID: id, Compensated: compensated, Err: err}
	}

	if err := c.opener.Open(ctx, url); err != nil {
		c.logger.Warn("could not open payment page", "kind", kind, "id", id, "url", url, "error", err)
	}
	c.logger.Info("payment page opened", "kind", kind, "id", id)

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		URL:    url,
		kind:   kind,
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go c.run(pollCtx, gw, s)
	return s, nil
}

func (c *Checkout) run(ctx context.Context, gw Gateway, s *Session) {
	defer close(s.done)
	defer s.cancel()

	ctx, span := checkoutTracer.Start(ctx, "checkout.poll")
	defer span.End()

	out := c.poller.Poll(ctx, gw, s.id)
	if out.terminalFailure() {
		out.Compensated = c.compensator.Run(context.WithoutCancel(ctx), gw, s.id)
	}
	if out.Succeeded() {
		for _, fn := range s.onSuccess {
			fn(context.WithoutCancel(ctx), out)
		}
	}
	if out.Err != nil {
		span.RecordError(out.Err)
	}
	span.SetAttributes(
		attribute.String("medcare.payment_result", string(out.Result)),
		attribute.Int("medcare.poll_attempts", out.Attempts),
	)
	c.metrics.ObserveSession(out.Kind, string(out.Result))
	c.logger.Info("payment session finished", "kind", out.Kind, "id", out.ID, "result", out.Result, "attempts", out.Attempts, "compensated", out.Compensated)

	s.outcome = out
}

// Session is a running payment. It owns the polling goroutine.
type Session struct {
	URL string

	kind      string
	id        int64
	onSuccess []func(context.Context, Outcome)

	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}
	outcome    Outcome
}

// Kind names the record being paid for.
func (s *Session) Kind() string { return s.kind }

// ID is the id of the record being paid for.
func (s *Session) ID() int64 { return s.id }

// Done is closed once the session has a terminal outcome.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel stops polling. The record is left alone.
func (s *Session) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// Wait blocks until the session ends or ctx is done. Leaving through ctx does
// not stop the session; call Cancel for that.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		return s.outcome, s.outcome.Err
	case <-ctx.Done():
		return Outcome{Kind: s.kind, ID: s.id}, ctx.Err()
	}
}

// InitError reports a payment that never started.
type InitError struct {
	Kind        string
	ID          int64
	Compensated bool
	Err         error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("checkout: start %s %d payment: %v", e.Kind, e.ID, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }
