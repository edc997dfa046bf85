// Package availability computes which appointment slots a doctor can still
// take on a given day.
package availability

import (
	"sort"
	"time"

	"github.com/medcare-vn/medcare-mobile/internal/api"
)

// DailyGrid is the fixed set of bookable slot start times.
var DailyGrid = []string{"08:00", "09:00", "10:00", "11:00", "13:30", "14:30", "15:30", "16:30"}

const dateLayout = "2006-01-02"

// Slots is the partition of DailyGrid for one doctor and date.
type Slots struct {
	Morning     []string
	Afternoon   []string
	Unavailable []string
}

// Available returns morning and afternoon slots in grid order.
func (s Slots) Available() []string {
	out := make([]string, 0, len(s.Morning)+len(s.Afternoon))
	out = append(out, s.Morning...)
	return append(out, s.Afternoon...)
}

// IsAvailable reports whether slot is bookable.
func (s Slots) IsAvailable(slot string) bool {
	for _, v := range s.Available() {
		if v == slot {
			return true
		}
	}
	return false
}

// IsGridSlot reports whether slot is one of the fixed daily slots.
func IsGridSlot(slot string) bool {
	for _, v := range DailyGrid {
		if v == slot {
			return true
		}
	}
	return false
}

// Compute partitions the daily grid for doctorID on date. date is read as a
// calendar day; its clock and zone are ignored. Every appointment, whatever
// its status, blocks its slot.
func Compute(doctorID int64, date time.Time, appointments []api.Appointment) Slots {
	day := date.Format(dateLayout)
	booked := make(map[string]struct{})
	for _, a := range appointments {
		if a.DoctorID != doctorID || a.ScheduledAt.IsZero() {
			continue
		}
		if a.ScheduledAt.DateKey() != day {
			continue
		}
		booked[a.ScheduledAt.Clock()] = struct{}{}
	}

	out := Slots{
		Morning:     []string{},
		Afternoon:   []string{},
		Unavailable: []string{},
	}
	for _, slot := range DailyGrid {
		if _, taken := booked[slot]; taken {
			out.Unavailable = append(out.Unavailable, slot)
			continue
		}
		if slotHour(slot) < 12 {
			out.Morning = append(out.Morning, slot)
		} else {
			out.Afternoon = append(out.Afternoon, slot)
		}
	}
	return out
}

func slotHour(slot string) int {
	t, err := time.Parse("15:04", slot)
	if err != nil {
		return 0
	}
	return t.Hour()
}

// Window is the range of selectable dates, [today, today+Days] inclusive.
type Window struct {
	Days     int
	Location *time.Location
	Now      func() time.Time
}

// NewWindow builds a window of days in loc.
func NewWindow(days int, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	return Window{Days: days, Location: loc, Now: time.Now}
}

// Today returns local midnight of the current day.
func (w Window) Today() time.Time {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	t := now().In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Contains reports whether the calendar day of date lies inside the window.
func (w Window) Contains(date time.Time) bool {
	today := w.Today()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, today.Location())
	last := today.AddDate(0, 0, w.Days)
	return !day.Before(today) && !day.After(last)
}

// BookableDates returns the sorted, de-duplicated dates on which doctorID has a
// work schedule inside the window.
func BookableDates(doctorID int64, schedules []api.WorkSchedule, w Window) []time.Time {
	seen := make(map[string]struct{})
	var dates []time.Time
	loc := w.Today().Location()
	for _, s := range schedules {
		if s.DoctorID != doctorID || s.Date.IsZero() {
			continue
		}
		day := time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, loc)
		if !w.Contains(day) {
			continue
		}
		key := day.Format(dateLayout)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// HasSchedule reports whether doctorID works on the calendar day of date.
func HasSchedule(doctorID int64, date time.Time, schedules []api.WorkSchedule) bool {
	day := date.Format(dateLayout)
	for _, s := range schedules {
		if s.DoctorID == doctorID && s.Date.DateKey() == day {
			return true
		}
	}
	return false
}

// EligibleDoctors returns doctors practising the service's specialty who have
// at least one work schedule on or after today.
func EligibleDoctors(service api.Service, doctors []api.Doctor, links []api.DoctorSpecialty, schedules []api.WorkSchedule, today time.Time) []api.Doctor {
	inSpecialty := make(map[int64]bool)
	for _, l := range links {
		if l.SpecialtyID == service.SpecialtyID {
			inSpecialty[l.DoctorID] = true
		}
	}
	todayKey := today.Format(dateLayout)
	working := make(map[int64]bool)
	for _, s := range schedules {
		if s.Date.DateKey() >= todayKey {
			working[s.DoctorID] = true
		}
	}
	out := make([]api.Doctor, 0)
	for _, d := range doctors {
		if inSpecialty[d.ID] && working[d.ID] {
			out = append(out, d)
		}
	}
	return out
}
