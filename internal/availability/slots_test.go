package availability

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var ict = time.FixedZone("ICT", 7*3600)

func appt(t *testing.T, id, doctorID int64, at string) api.Appointment {
	t.Helper()
	lt, err := api.ParseLocalTime(at)
	require.NoError(t, err)
	return api.Appointment{ID: id, DoctorID: doctorID, ScheduledAt: lt, Status: api.StatusUnvisited}
}

func schedule(t *testing.T, doctorID int64, day string) api.WorkSchedule {
	t.Helper()
	lt, err := api.ParseLocalTime(day)
	require.NoError(t, err)
	return api.WorkSchedule{DoctorID: doctorID, Date: lt}
}

func fixedWindow(today time.Time) Window {
	return Window{Days: 7, Location: ict, Now: func() time.Time { return today }}
}

func TestCompute_BookedEightOClock(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, ict)
	appts := []api.Appointment{
		appt(t, 1, 7, "2024-06-10T08:00:00"),
		appt(t, 2, 8, "2024-06-10T09:00:00"), // other doctor
		appt(t, 3, 7, "2024-06-11T10:00:00"), // other day
	}

	got := Compute(7, date, appts)
	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, got.Morning)
	assert.Equal(t, []string{"13:30", "14:30", "15:30", "16:30"}, got.Afternoon)
	assert.Equal(t, []string{"08:00"}, got.Unavailable)
	assert.False(t, got.IsAvailable("08:00"))
	assert.True(t, got.IsAvailable("13:30"))
}

func TestCompute_OffGridAppointmentsDoNotBlock(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, ict)
	got := Compute(7, date, []api.Appointment{appt(t, 1, 7, "2024-06-10T08:15:00")})
	assert.Empty(t, got.Unavailable)
	assert.Len(t, got.Available(), len(DailyGrid))
}

func TestCompute_PartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, ict)

	for iter := 0; iter < 200; iter++ {
		var appts []api.Appointment
		n := rng.Intn(12)
		for i := 0; i < n; i++ {
			doctor := int64(rng.Intn(3) + 1)
			day := 10 + rng.Intn(2)
			slot := DailyGrid[rng.Intn(len(DailyGrid))]
			appts = append(appts, appt(t, int64(i+1), doctor, fmt.Sprintf("2024-06-%02dT%s:00", day, slot)))
		}

		got := Compute(1, date, appts)
		union := map[string]int{}
		for _, s := range got.Available() {
			union[s]++
		}
		for _, s := range got.Unavailable {
			union[s]++
		}
		require.Len(t, union, len(DailyGrid), "iteration %d", iter)
		for _, slot := range DailyGrid {
			require.Equal(t, 1, union[slot], "slot %s must be in exactly one set", slot)
		}
		for _, s := range got.Morning {
			require.Less(t, slotHour(s), 12)
		}
		for _, s := range got.Afternoon {
			require.GreaterOrEqual(t, slotHour(s), 12)
		}
	}
}

func TestWindow_Contains(t *testing.T) {
	w := fixedWindow(time.Date(2024, 6, 10, 22, 30, 0, 0, ict))
	assert.True(t, w.Contains(time.Date(2024, 6, 10, 0, 0, 0, 0, ict)))
	assert.True(t, w.Contains(time.Date(2024, 6, 17, 0, 0, 0, 0, ict)), "today+7 is inclusive")
	assert.False(t, w.Contains(time.Date(2024, 6, 18, 0, 0, 0, 0, ict)))
	assert.False(t, w.Contains(time.Date(2024, 6, 9, 0, 0, 0, 0, ict)))
}

func TestWindow_TodayUsesLocation(t *testing.T) {
	// 18:00 UTC on the 9th is already the 10th in Vietnam.
	w := Window{Days: 7, Location: ict, Now: func() time.Time { return time.Date(2024, 6, 9, 18, 0, 0, 0, time.UTC) }}
	assert.Equal(t, 10, w.Today().Day())
}

func TestBookableDates(t *testing.T) {
	w := fixedWindow(time.Date(2024, 6, 10, 9, 0, 0, 0, ict))
	schedules := []api.WorkSchedule{
		schedule(t, 7, "2024-06-12T00:00:00"),
		schedule(t, 7, "2024-06-10T00:00:00"),
		schedule(t, 7, "2024-06-12T00:00:00"),
		schedule(t, 7, "2024-06-09T00:00:00"),
		schedule(t, 7, "2024-06-20T00:00:00"),
		schedule(t, 8, "2024-06-11T00:00:00"),
	}

	dates := BookableDates(7, schedules, w)
	require.Len(t, dates, 2)
	assert.Equal(t, "2024-06-10", dates[0].Format("2006-01-02"))
	assert.Equal(t, "2024-06-12", dates[1].Format("2006-01-02"))
}

func TestEligibleDoctors(t *testing.T) {
	service := api.Service{ID: 1, SpecialtyID: 3}
	doctors := []api.Doctor{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}}
	links := []api.DoctorSpecialty{{DoctorID: 1, SpecialtyID: 3}, {DoctorID: 2, SpecialtyID: 3}, {DoctorID: 3, SpecialtyID: 4}}
	schedules := []api.WorkSchedule{
		schedule(t, 1, "2024-06-10T00:00:00"),
		schedule(t, 2, "2024-06-01T00:00:00"),
		schedule(t, 3, "2024-06-12T00:00:00"),
	}

	got := EligibleDoctors(service, doctors, links, schedules, time.Date(2024, 6, 10, 0, 0, 0, 0, ict))
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

type fakeBackend struct {
	doctors      []api.Doctor
	links        []api.DoctorSpecialty
	schedules    []api.WorkSchedule
	appointments []api.Appointment
	apptErr      error
	schedErr     error
}

func (f *fakeBackend) ListDoctors(context.Context) ([]api.Doctor, error) { return f.doctors, nil }
func (f *fakeBackend) ListDoctorSpecialties(context.Context) ([]api.DoctorSpecialty, error) {
	return f.links, nil
}
func (f *fakeBackend) ListWorkSchedules(context.Context) ([]api.WorkSchedule, error) {
	return f.schedules, f.schedErr
}
func (f *fakeBackend) ListAppointments(context.Context) ([]api.Appointment, error) {
	return f.appointments, f.apptErr
}

func TestService_Slots(t *testing.T) {
	backend := &fakeBackend{
		schedules:    []api.WorkSchedule{schedule(t, 7, "2024-06-10T00:00:00")},
		appointments: []api.Appointment{appt(t, 1, 7, "2024-06-10T08:00:00")},
	}
	svc := NewService(backend, fixedWindow(time.Date(2024, 6, 10, 7, 0, 0, 0, ict)), logging.Discard())
	ctx := context.Background()

	slots, err := svc.Slots(ctx, 7, time.Date(2024, 6, 10, 0, 0, 0, 0, ict))
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00"}, slots.Unavailable)

	_, err = svc.Slots(ctx, 7, time.Date(2024, 6, 11, 0, 0, 0, 0, ict))
	assert.ErrorIs(t, err, ErrDateNotBookable, "no schedule that day")

	_, err = svc.Slots(ctx, 7, time.Date(2024, 6, 30, 0, 0, 0, 0, ict))
	assert.ErrorIs(t, err, ErrDateNotBookable, "outside window")
}

func TestService_SlotsFetchFailureIsNotDefaultOpen(t *testing.T) {
	boom := errors.New("connection reset")
	backend := &fakeBackend{
		schedules: []api.WorkSchedule{schedule(t, 7, "2024-06-10T00:00:00")},
		apptErr:   boom,
	}
	svc := NewService(backend, fixedWindow(time.Date(2024, 6, 10, 7, 0, 0, 0, ict)), logging.Discard())

	slots, err := svc.Slots(context.Background(), 7, time.Date(2024, 6, 10, 0, 0, 0, 0, ict))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAvailabilityUnknown)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, slots.Available(), "a failed fetch must not report free slots")
}

func TestService_DoctorsAndDates(t *testing.T) {
	backend := &fakeBackend{
		doctors:   []api.Doctor{{ID: 7, Name: "BS. Minh"}},
		links:     []api.DoctorSpecialty{{DoctorID: 7, SpecialtyID: 2}},
		schedules: []api.WorkSchedule{schedule(t, 7, "2024-06-11T00:00:00")},
	}
	svc := NewService(backend, fixedWindow(time.Date(2024, 6, 10, 7, 0, 0, 0, ict)), logging.Discard())
	ctx := context.Background()

	doctors, err := svc.Doctors(ctx, api.Service{ID: 1, SpecialtyID: 2})
	require.NoError(t, err)
	require.Len(t, doctors, 1)

	dates, err := svc.Dates(ctx, 7)
	require.NoError(t, err)
	require.Len(t, dates, 1)

	backend.schedErr = errors.New("timeout")
	_, err = svc.Doctors(ctx, api.Service{ID: 1, SpecialtyID: 2})
	assert.ErrorIs(t, err, ErrAvailabilityUnknown)
	_, err = svc.Dates(ctx, 7)
	assert.ErrorIs(t, err, ErrAvailabilityUnknown)
}
