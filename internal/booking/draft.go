// Package booking guides a customer through picking a doctor, date and slot
// for a service and submits the resulting appointment for payment.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/medcare-vn/medcare-mobile/internal/addressbook"
	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/availability"
	"github.com/medcare-vn/medcare-mobile/internal/checkout"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var bookingTracer = otel.Tracer("medcare.internal.booking")

// Errors returned by Controller. Validation errors leave the draft as it was.
var (
	ErrNoDoctor          = errors.New("booking: select a doctor first")
	ErrNoDate            = errors.New("booking: select a date first")
	ErrSlotUnavailable   = errors.New("booking: slot is not available")
	ErrAddressNotAllowed = errors.New("booking: this service does not take an address")
	ErrAddressOutOfArea  = errors.New("booking: home visits are only available in the served city")
	ErrDraftIncomplete   = errors.New("booking: draft is incomplete")
	ErrDraftClosed       = errors.New("booking: draft already submitted")
	ErrSubmitInProgress  = errors.New("booking: submission in progress")
	// ErrSubmitFailed wraps the backend error of a failed creation.
	ErrSubmitFailed      = errors.New("booking: could not create appointment")
	ErrPaymentNotStarted = errors.New("booking: could not start payment")
)

// State is where a draft sits in the selection sequence.
type State string

const (
	StateSelectingDoctor  State = "selecting_doctor"
	StateSelectingDate    State = "selecting_date"
	StateSelectingTime    State = "selecting_time"
	StateSelectingAddress State = "selecting_address"
	StateReady            State = "ready"
	StateSubmitting       State = "submitting"
	StateSubmitted        State = "submitted"
	StateFailed           State = "failed"
)

// SlotSource computes the slot partition for a doctor and date.
type SlotSource interface {
	Slots(ctx context.Context, doctorID int64, date time.Time) (availability.Slots, error)
}

// AppointmentCreator creates appointments on the backend.
type AppointmentCreator interface {
	CreateAppointment(ctx context.Context, req api.CreateAppointmentRequest) (int64, error)
}

// Payments starts a payment session for a created record.
type Payments interface {
	Begin(ctx context.Context, gw checkout.Gateway, id int64, opts ...checkout.SessionOption) (*checkout.Session, error)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Slots         SlotSource
	Appointments  AppointmentCreator
	Payments      Payments
	Gateway       checkout.Gateway
	HomeVisitCity string
}

// Draft is the current selection.
type Draft struct {
	DoctorID int64
	Date     time.Time
	Time     string
	Address  string
	Note     string
}

// Submission is a created appointment with its running payment.
type Submission struct {
	AppointmentID int64
	ScheduledAt   api.LocalTime
	Session       *checkout.Session
}

// Controller holds one booking draft for one service.
type Controller struct {
	service api.Service
	deps    Deps
	logger  *logging.Logger

	mu      sync.Mutex
	draft   Draft
	slots   availability.Slots
	phase   State
	lastErr error
}

// NewController starts an empty draft for service. All Deps but
// HomeVisitCity are required.
func NewController(service api.Service, deps Deps, logger *logging.Logger) *Controller {
	if deps.Slots == nil || deps.Appointments == nil || deps.Payments == nil || deps.Gateway == nil {
		panic("booking: slots, appointments, payments and gateway are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{service: service, deps: deps, logger: logger}
}

// Service is the service being booked.
func (c *Controller) Service() api.Service { return c.service }

// Draft returns a copy of the current selection.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Slots returns the partition computed for the selected date.
func (c *Controller) Slots() availability.Slots {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots
}

// Err is the error that moved the draft to StateFailed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// State derives the draft's position from what has been selected, unless a
// submission has moved it on.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	if c.phase != "" {
		return c.phase
	}
	switch {
	case c.draft.DoctorID == 0:
		return StateSelectingDoctor
	case c.draft.Date.IsZero():
		return StateSelectingDate
	case c.draft.Time == "":
		return StateSelectingTime
	case c.service.Category.RequiresAddress() && c.draft.Address == "":
		return StateSelectingAddress
	default:
		return StateReady
	}
}

// Ready reports whether the draft may be submitted.
func (c *Controller) Ready() bool {
	return c.State() == StateReady
}

// editableLocked reopens a failed draft and rejects edits once submitted.
func (c *Controller) editableLocked() error {
	switch c.phase {
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateSubmitted:
		return ErrDraftClosed
	}
	c.phase = ""
	c.lastErr = nil
	return nil
}

// SelectDoctor picks the doctor and clears date, time and slots.
func (c *Controller) SelectDoctor(doctorID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	if doctorID <= 0 {
		return fmt.Errorf("booking: invalid doctor id %d", doctorID)
	}
	c.draft.DoctorID = doctorID
	c.draft.Date = time.Time{}
	c.draft.Time = ""
	c.slots = availability.Slots{}
	return nil
}

// SelectDate checks date against the booking window and the doctor's
// schedule, and loads its slots. On failure the date stays unset.
func (c *Controller) SelectDate(ctx context.Context, date time.Time) (availability.Slots, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return availability.Slots{}, err
	}
	if c.draft.DoctorID == 0 {
		return availability.Slots{}, ErrNoDoctor
	}
	c.draft.Date = time.Time{}
	c.draft.Time = ""
	c.slots = availability.Slots{}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	slots, err := c.deps.Slots.Slots(ctx, c.draft.DoctorID, day)
	if err != nil {
		return availability.Slots{}, err
	}
	c.draft.Date = day
	c.slots = slots
	return slots, nil
}

// SelectTime picks one of the available slots of the selected date.
func (c *Controller) SelectTime(slot string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	if c.draft.Date.IsZero() {
		return ErrNoDate
	}
	slot = strings.TrimSpace(slot)
	if !c.slots.IsAvailable(slot) {
		return fmt.Errorf("%w: %q", ErrSlotUnavailable, slot)
	}
	c.draft.Time = slot
	return nil
}

// SetAddress sets the home visit address.
func (c *Controller) SetAddress(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	if !c.service.Category.RequiresAddress() {
		return ErrAddressNotAllowed
	}
	text = strings.TrimSpace(text)
	if !addressbook.HomeVisitEligible(text, c.deps.HomeVisitCity) {
		return ErrAddressOutOfArea
	}
	c.draft.Address = text
	return nil
}

// SetNote sets the free-text note for the doctor.
func (c *Controller) SetNote(note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.draft.Note = strings.TrimSpace(note)
	return nil
}

// ScheduledAt joins a calendar date and an "HH:mm" slot into a local
// timestamp with zero seconds.
func ScheduledAt(date time.Time, slot string) (api.LocalTime, error) {
	clock, err := time.Parse("15:04", slot)
	if err != nil {
		return api.LocalTime{}, fmt.Errorf("booking: bad slot %q: %w", slot, err)
	}
	return api.NewLocalTime(time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)), nil
}

// Submit creates the appointment and starts its payment. Creation failures
// are not retried. A payment that cannot start has already been
// compensated by the checkout. The draft reads StateSubmitting while the
// backend calls are in flight; a second Submit then gets ErrSubmitInProgress.
func (c *Controller) Submit(ctx context.Context, opts ...checkout.SessionOption) (*Submission, error) {
	c.mu.Lock()
	// a failed draft may be resubmitted by hand
	if c.phase == StateFailed {
		c.phase = ""
	}
	switch state := c.stateLocked(); state {
	case StateReady:
	case StateSubmitting:
		c.mu.Unlock()
		return nil, ErrSubmitInProgress
	case StateSubmitted:
		c.mu.Unlock()
		return nil, ErrDraftClosed
	default:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDraftIncomplete, state)
	}
	draft := c.draft
	c.phase = StateSubmitting
	c.mu.Unlock()

	ctx, span := bookingTracer.Start(ctx, "booking.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("medcare.service_id", strconv.FormatInt(c.service.ID, 10)),
		attribute.String("medcare.doctor_id", strconv.FormatInt(draft.DoctorID, 10)),
		attribute.String("medcare.slot", draft.Time),
	)

	at, err := ScheduledAt(draft.Date, draft.Time)
	if err != nil {
		return nil, c.fail(span, err)
	}

	req := api.CreateAppointmentRequest{
		ScheduledAt: at,
		DoctorID:    draft.DoctorID,
		ServiceID:   c.service.ID,
		Note:        draft.Note,
	}
	if c.service.Category.RequiresAddress() {
		req.Location = draft.Address
	}

	id, err := c.deps.Appointments.CreateAppointment(ctx, req)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("%w: %w", ErrSubmitFailed, err))
	}
	c.logger.Info("appointment created", "appointment_id", id, "service_id", c.service.ID, "doctor_id", draft.DoctorID, "scheduled_at", at.String())

	session, err := c.deps.Payments.Begin(ctx, c.deps.Gateway, id, opts...)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("%w: %w", ErrPaymentNotStarted, err))
	}

	c.mu.Lock()
	c.phase = StateSubmitted
	c.mu.Unlock()
	return &Submission{AppointmentID: id, ScheduledAt: at, Session: session}, nil
}

func (c *Controller) fail(span trace.Span, err error) error {
	span.RecordError(err)
	c.mu.Lock()
	c.phase = StateFailed
	c.lastErr = err
	c.mu.Unlock()
	c.logger.Warn("booking submission failed", "service_id", c.service.ID, "error", err)
	return err
}
