package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var (
	ErrInvalidStars    = errors.New("booking: rating must be between 1 and 5 stars")
	ErrNoResult        = errors.New("booking: appointment has no examination result yet")
	ErrAlreadyReviewed = errors.New("booking: appointment already reviewed")
)

// ResultStore reads examination results and reviews.
type ResultStore interface {
	ListCustomerAppointments(ctx context.Context) ([]api.Appointment, error)
	ListServiceResults(ctx context.Context) ([]api.ServiceResult, error)
	ListServiceReviews(ctx context.Context, serviceID int64) ([]api.Review, error)
	ListPendingReviews(ctx context.Context) ([]api.Review, error)
	CreateReview(ctx context.Context, req api.CreateReviewRequest) error
}

// Visit is a visited appointment with its result and the customer's review,
// when they exist.
type Visit struct {
	Appointment api.Appointment
	Result      *api.ServiceResult
	Review      *api.Review
	// PendingReview is set when Review still awaits moderation.
	PendingReview bool
}

// Reviewable reports whether the visit has a result and no review yet.
func (v Visit) Reviewable() bool {
	return v.Result != nil && v.Review == nil
}

// Results joins visited appointments with their examination results and
// reviews.
type Results struct {
	store  ResultStore
	logger *logging.Logger
}

// NewResults reads results and reviews through store.
func NewResults(store ResultStore, logger *logging.Logger) *Results {
	if logger == nil {
		logger = logging.Default()
	}
	return &Results{store: store, logger: logger}
}

// List returns the customer's visited appointments, newest first.
func (r *Results) List(ctx context.Context) ([]Visit, error) {
	var (
		appts   []api.Appointment
		results []api.ServiceResult
		pending []api.Review
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		appts, err = r.store.ListCustomerAppointments(gctx)
		return err
	})
	g.Go(func() (err error) {
		results, err = r.store.ListServiceResults(gctx)
		return err
	})
	g.Go(func() (err error) {
		pending, err = r.store.ListPendingReviews(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("booking: results: %w", err)
	}

	byAppointment := make(map[int64]api.ServiceResult, len(results))
	for _, res := range results {
		byAppointment[res.AppointmentID] = res
	}

	var visits []Visit
	approved := map[int64][]api.Review{}
	for _, a := range appts {
		if a.Status != api.StatusVisited {
			continue
		}
		v := Visit{Appointment: a}
		if res, ok := byAppointment[a.ID]; ok {
			v.Result = &res
			if _, seen := approved[a.ServiceID]; !seen {
				reviews, err := r.store.ListServiceReviews(ctx, a.ServiceID)
				if err != nil {
					return nil, fmt.Errorf("booking: results: %w", err)
				}
				approved[a.ServiceID] = reviews
			}
			if rev := reviewFor(res.ID, approved[a.ServiceID]); rev != nil {
				v.Review = rev
			} else if rev := reviewFor(res.ID, pending); rev != nil {
				v.Review = rev
				v.PendingReview = true
			}
		}
		visits = append(visits, v)
	}
	sort.SliceStable(visits, func(i, j int) bool {
		return visits[i].Appointment.ScheduledAt.After(visits[j].Appointment.ScheduledAt.Time)
	})
	return visits, nil
}

func reviewFor(resultID int64, reviews []api.Review) *api.Review {
	for i := range reviews {
		if reviews[i].ResultID == resultID {
			rev := reviews[i]
			return &rev
		}
	}
	return nil
}

// Review rates the service of a visited appointment. Each result takes one
// review, which the backend holds for moderation.
func (r *Results) Review(ctx context.Context, appointmentID int64, stars int, content string) error {
	if stars < 1 || stars > 5 {
		return fmt.Errorf("%w: got %d", ErrInvalidStars, stars)
	}
	visits, err := r.List(ctx)
	if err != nil {
		return err
	}
	for _, v := range visits {
		if v.Appointment.ID != appointmentID {
			continue
		}
		if v.Result == nil {
			return fmt.Errorf("%w: %d", ErrNoResult, appointmentID)
		}
		if v.Review != nil {
			return fmt.Errorf("%w: %d", ErrAlreadyReviewed, appointmentID)
		}
		req := api.CreateReviewRequest{ResultID: v.Result.ID, Stars: stars, Content: strings.TrimSpace(content)}
		if err := r.store.CreateReview(ctx, req); err != nil {
			return err
		}
		r.logger.Info("review submitted", "appointment_id", appointmentID, "result_id", v.Result.ID, "stars", stars)
		return nil
	}
	return fmt.Errorf("%w: %d is not a visited appointment", ErrAppointmentNotFound, appointmentID)
}

// ServiceReviews lists a service's approved reviews, newest first.
func (r *Results) ServiceReviews(ctx context.Context, serviceID int64) ([]api.Review, error) {
	reviews, err := r.store.ListServiceReviews(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("booking: reviews: %w", err)
	}
	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt.Time)
	})
	return reviews, nil
}
