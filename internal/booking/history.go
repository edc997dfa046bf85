package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var (
	ErrCancelNotAllowed    = errors.New("booking: only unvisited appointments can be cancelled")
	ErrAppointmentNotFound = errors.New("booking: appointment not found")
)

// AppointmentStore reads and cancels the customer's appointments.
type AppointmentStore interface {
	ListCustomerAppointments(ctx context.Context) ([]api.Appointment, error)
	CancelAppointment(ctx context.Context, id int64) error
}

// Grouped is the customer's appointments split by status, newest first.
type Grouped struct {
	Unvisited []api.Appointment
	Visited   []api.Appointment
	Cancelled []api.Appointment
}

// History lists and cancels past bookings.
type History struct {
	store  AppointmentStore
	logger *logging.Logger
}

// NewHistory reads appointments through store.
func NewHistory(store AppointmentStore, logger *logging.Logger) *History {
	if logger == nil {
		logger = logging.Default()
	}
	return &History{store: store, logger: logger}
}

// List groups the customer's appointments. Unknown statuses are dropped.
func (h *History) List(ctx context.Context) (Grouped, error) {
	appts, err := h.store.ListCustomerAppointments(ctx)
	if err != nil {
		return Grouped{}, fmt.Errorf("booking: history: %w", err)
	}
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].ScheduledAt.After(appts[j].ScheduledAt.Time)
	})
	var g Grouped
	for _, a := range appts {
		switch a.Status {
		case api.StatusUnvisited:
			g.Unvisited = append(g.Unvisited, a)
		case api.StatusVisited:
			g.Visited = append(g.Visited, a)
		case api.StatusCancelled:
			g.Cancelled = append(g.Cancelled, a)
		default:
			h.logger.Debug("appointment with unknown status skipped", "appointment_id", a.ID, "status", string(a.Status))
		}
	}
	return g, nil
}

// Cancel cancels appt. Only unvisited appointments may be cancelled.
func (h *History) Cancel(ctx context.Context, appt api.Appointment) error {
	if appt.Status != api.StatusUnvisited {
		return fmt.Errorf("%w: appointment %d is %q", ErrCancelNotAllowed, appt.ID, appt.Status)
	}
	if err := h.store.CancelAppointment(ctx, appt.ID); err != nil {
		return err
	}
	h.logger.Info("appointment cancelled", "appointment_id", appt.ID)
	return nil
}

// CancelByID looks id up in the customer's appointments and cancels it.
func (h *History) CancelByID(ctx context.Context, id int64) error {
	appts, err := h.store.ListCustomerAppointments(ctx)
	if err != nil {
		return fmt.Errorf("booking: cancel %d: %w", id, err)
	}
	for _, a := range appts {
		if a.ID == id {
			return h.Cancel(ctx, a)
		}
	}
	return fmt.Errorf("%w: %d", ErrAppointmentNotFound, id)
}
