package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var (
	// ErrAvailabilityUnknown wraps fetch failures. Callers must not treat the
	// grid as free when they see it.
	ErrAvailabilityUnknown = errors.New("availability: unknown")
	// ErrDateNotBookable means the date is outside the window or the doctor
	// does not work that day.
	ErrDateNotBookable = errors.New("availability: date not bookable")
)

// Backend is the subset of the API client the engine reads from.
type Backend interface {
	ListDoctors(ctx context.Context) ([]api.Doctor, error)
	ListDoctorSpecialties(ctx context.Context) ([]api.DoctorSpecialty, error)
	ListWorkSchedules(ctx context.Context) ([]api.WorkSchedule, error)
	ListAppointments(ctx context.Context) ([]api.Appointment, error)
}

// Service fetches the inputs of the pure functions in this package.
type Service struct {
	backend Backend
	window  Window
	logger  *logging.Logger
}

// NewService constructs an availability service.
func NewService(backend Backend, window Window, logger *logging.Logger) *Service {
	if backend == nil {
		panic("availability: backend required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{backend: backend, window: window, logger: logger}
}

// Window returns the date window the service enforces.
func (s *Service) Window() Window {
	return s.window
}

func unknown(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrAvailabilityUnknown, what, err)
}

// Doctors lists doctors who can perform service.
func (s *Service) Doctors(ctx context.Context, service api.Service) ([]api.Doctor, error) {
	var (
		doctors   []api.Doctor
		links     []api.DoctorSpecialty
		schedules []api.WorkSchedule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doctors, err = s.backend.ListDoctors(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		links, err = s.backend.ListDoctorSpecialties(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		schedules, err = s.backend.ListWorkSchedules(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("eligible doctor lookup failed", "service_id", service.ID, "error", err)
		return nil, unknown("doctors", err)
	}
	return EligibleDoctors(service, doctors, links, schedules, s.window.Today()), nil
}

// Dates lists the bookable dates for doctorID.
func (s *Service) Dates(ctx context.Context, doctorID int64) ([]time.Time, error) {
	schedules, err := s.backend.ListWorkSchedules(ctx)
	if err != nil {
		s.logger.Warn("work schedule fetch failed", "doctor_id", doctorID, "error", err)
		return nil, unknown("work schedules", err)
	}
	return BookableDates(doctorID, schedules, s.window), nil
}

// Slots returns the slot partition for doctorID on date. The date must be in
// the window and on a working day of the doctor.
func (s *Service) Slots(ctx context.Context, doctorID int64, date time.Time) (Slots, error) {
	if !s.window.Contains(date) {
		return Slots{}, fmt.Errorf("%w: %s is outside the %d day window", ErrDateNotBookable, date.Format(dateLayout), s.window.Days)
	}
	schedules, err := s.backend.ListWorkSchedules(ctx)
	if err != nil {
		s.logger.Warn("work schedule fetch failed", "doctor_id", doctorID, "error", err)
		return Slots{}, unknown("work schedules", err)
	}
	if !HasSchedule(doctorID, date, schedules) {
		return Slots{}, fmt.Errorf("%w: doctor %d does not work on %s", ErrDateNotBookable, doctorID, date.Format(dateLayout))
	}
	appts, err := s.backend.ListAppointments(ctx)
	if err != nil {
		s.logger.Warn("appointment fetch failed", "doctor_id", doctorID, "date", date.Format(dateLayout), "error", err)
		return Slots{}, unknown("appointments", err)
	}
	slots := Compute(doctorID, date, appts)
	s.logger.Debug("slots computed",
		"doctor_id", doctorID,
		"date", date.Format(dateLayout),
		"available", len(slots.Morning)+len(slots.Afternoon),
		"unavailable", len(slots.Unavailable),
	)
	return slots, nil
}
