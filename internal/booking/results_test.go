package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

type fakeResults struct {
	mu          sync.Mutex
	appts       []api.Appointment
	results     []api.ServiceResult
	approved    map[int64][]api.Review
	pending     []api.Review
	created     []api.CreateReviewRequest
	reviewCalls map[int64]int
	err         error
}

func (f *fakeResults) ListCustomerAppointments(context.Context) ([]api.Appointment, error) {
	return f.appts, f.err
}

func (f *fakeResults) ListServiceResults(context.Context) ([]api.ServiceResult, error) {
	return f.results, nil
}

func (f *fakeResults) ListServiceReviews(_ context.Context, serviceID int64) ([]api.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewCalls == nil {
		f.reviewCalls = map[int64]int{}
	}
	f.reviewCalls[serviceID]++
	return append([]api.Review(nil), f.approved[serviceID]...), nil
}

func (f *fakeResults) ListPendingReviews(context.Context) ([]api.Review, error) {
	return f.pending, nil
}

func (f *fakeResults) CreateReview(_ context.Context, req api.CreateReviewRequest) error {
	f.created = append(f.created, req)
	return nil
}

func visitedAt(id, serviceID int64, day int, status api.AppointmentStatus) api.Appointment {
	return api.Appointment{
		ID:          id,
		ServiceID:   serviceID,
		ScheduledAt: api.NewLocalTime(june10.AddDate(0, 0, day).Add(9 * time.Hour)),
		Status:      status,
	}
}

func newFakeResults() *fakeResults {
	return &fakeResults{
		appts: []api.Appointment{
			visitedAt(1, 10, 0, api.StatusVisited),
			visitedAt(2, 10, 2, api.StatusVisited),
			visitedAt(3, 20, 1, api.StatusVisited),
			visitedAt(4, 20, 3, api.StatusUnvisited),
			visitedAt(5, 10, 4, api.StatusCancelled),
		},
		results: []api.ServiceResult{
			{ID: 51, AppointmentID: 1, Description: "Cảm cúm"},
			{ID: 52, AppointmentID: 2, Description: "Ổn định"},
		},
		approved: map[int64][]api.Review{
			10: {{ID: 900, ResultID: 51, Stars: 5}},
		},
		pending: []api.Review{{ID: 901, ResultID: 52, Stars: 3}},
	}
}

func TestResults_ListJoinsResultsAndReviews(t *testing.T) {
	store := newFakeResults()
	visits, err := NewResults(store, logging.Discard()).List(context.Background())
	require.NoError(t, err)

	require.Len(t, visits, 3, "only visited appointments")
	assert.Equal(t, []int64{2, 3, 1}, []int64{visits[0].Appointment.ID, visits[1].Appointment.ID, visits[2].Appointment.ID})

	assert.Equal(t, int64(52), visits[0].Result.ID)
	require.NotNil(t, visits[0].Review)
	assert.True(t, visits[0].PendingReview)

	assert.Nil(t, visits[1].Result)
	assert.False(t, visits[1].Reviewable(), "no result yet")

	require.NotNil(t, visits[2].Review)
	assert.False(t, visits[2].PendingReview)
	assert.Equal(t, int64(900), visits[2].Review.ID)

	assert.Equal(t, 1, store.reviewCalls[10], "reviews are fetched once per service")
	assert.Zero(t, store.reviewCalls[20], "services without results are not queried")
}

func TestResults_Review(t *testing.T) {
	tests := []struct {
		name    string
		apptID  int64
		stars   int
		wantErr error
	}{
		{"zero stars", 1, 0, ErrInvalidStars},
		{"six stars", 1, 6, ErrInvalidStars},
		{"already approved", 1, 4, ErrAlreadyReviewed},
		{"already pending", 2, 4, ErrAlreadyReviewed},
		{"no result", 3, 4, ErrNoResult},
		{"not visited", 4, 4, ErrAppointmentNotFound},
		{"unknown", 99, 4, ErrAppointmentNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeResults()
			err := NewResults(store, logging.Discard()).Review(context.Background(), tc.apptID, tc.stars, "ok")
			require.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, store.created)
		})
	}
}

func TestResults_ReviewSubmitsForResult(t *testing.T) {
	store := newFakeResults()
	store.results = append(store.results, api.ServiceResult{ID: 53, AppointmentID: 3})

	err := NewResults(store, logging.Discard()).Review(context.Background(), 3, 4, "  tận tình  ")
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, api.CreateReviewRequest{ResultID: 53, Stars: 4, Content: "tận tình"}, store.created[0])
}

func TestResults_ListPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	store := newFakeResults()
	store.err = boom

	_, err := NewResults(store, logging.Discard()).List(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestResults_ServiceReviewsNewestFirst(t *testing.T) {
	store := &fakeResults{approved: map[int64][]api.Review{
		10: {
			{ID: 1, CreatedAt: api.NewLocalTime(june10)},
			{ID: 2, CreatedAt: api.NewLocalTime(june10.AddDate(0, 0, 2))},
			{ID: 3, CreatedAt: api.NewLocalTime(june10.AddDate(0, 0, 1))},
		},
	}}
	reviews, err := NewResults(store, logging.Discard()).ServiceReviews(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reviews, 3)
	assert.Equal(t, int64(2), reviews[0].ID)
	assert.Equal(t, int64(3), reviews[1].ID)
	assert.Equal(t, int64(1), reviews[2].ID)
}
