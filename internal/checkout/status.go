// Package checkout drives the external payment page: it fetches the payment
// URL, hands it to an opener, polls for the outcome and compensates when the
// payment does not go through.
package checkout

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoPaymentURL   = errors.New("checkout: backend returned no payment url")
	ErrPaymentFailed  = errors.New("checkout: payment failed")
	ErrPaymentTimeout = errors.New("checkout: payment not confirmed in time")
	ErrPollFailed     = errors.New("checkout: payment status request failed")
	ErrCancelled      = errors.New("checkout: polling cancelled")
)

// Status is what one check learned about a payment.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Receipt carries the details of a confirmed payment.
type Receipt struct {
	PaymentMethod string
	OrderID       string
	TransactionID string
}

// CheckResult is one status check.
type CheckResult struct {
	Status  Status
	Receipt Receipt
	Reason  string
}

// Gateway connects the checkout flow to one kind of payable record.
type Gateway interface {
	// Kind labels logs and metrics, e.g. "appointment".
	Kind() string
	RequestURL(ctx context.Context, id int64) (string, error)
	Check(ctx context.Context, id int64) (CheckResult, error)
	// Compensate deletes the record after a failed payment.
	Compensate(ctx context.Context, id int64) error
}

// Result is how a payment session ended.
type Result string

const (
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
	ResultTimeout   Result = "timeout"
	ResultCancelled Result = "cancelled"
)

// Outcome is the terminal state of a payment session.
type Outcome struct {
	Kind        string
	ID          int64
	Result      Result
	Receipt     Receipt
	Attempts    int
	Compensated bool
	Err         error
}

// Succeeded reports whether the payment was confirmed.
func (o Outcome) Succeeded() bool {
	return o.Result == ResultSucceeded
}

// terminalFailure reports whether the record should be compensated.
func (o Outcome) terminalFailure() bool {
	return o.Result == ResultFailed || o.Result == ResultTimeout
}
