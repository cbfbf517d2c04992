package agenda

import (
	"sort"
	"strconv"
	"time"

	"github.com/mehdi-it48/medisync-lite/pkg/types"
)

// DefaultDays is the number of columns of a week grid
const DefaultDays = 7

// DefaultHours returns the hour rows of the agenda, 8:00 through 18:00
func DefaultHours() []int {
	return HourRange(8, 18)
}

// HourRange returns every hour from first to last inclusive
func HourRange(first, last int) []int {
	if last < first {
		return nil
	}
	hours := make([]int, 0, last-first+1)
	for h := first; h <= last; h++ {
		hours = append(hours, h)
	}
	return hours
}

// StartOfWeek returns midnight of the Monday on or before t, in t's location
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}

// Slot is one hour of one day in the grid
type Slot struct {
	Hour         int                  `json:"hour"`
	Appointments []*types.Appointment `json:"appointments"`
}

// GridDay is one column of the grid
type GridDay struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

// WeekGrid is a week of appointments bucketed by day and start hour.
// Appointments of the week whose start hour has no row are kept in
// Unslotted.
type WeekGrid struct {
	WeekStart string               `json:"week_start"`
	Hours     []int                `json:"hours"`
	Days      []GridDay            `json:"days"`
	Unslotted []*types.Appointment `json:"unslotted"`
}

// At returns the appointments in the given day column and hour row
func (g *WeekGrid) At(dayIndex, hour int) []*types.Appointment {
	if dayIndex < 0 || dayIndex >= len(g.Days) {
		return nil
	}
	for _, slot := range g.Days[dayIndex].Slots {
		if slot.Hour == hour {
			return slot.Appointments
		}
	}
	return nil
}

// Count returns the number of appointments placed in the grid
func (g *WeekGrid) Count() int {
	n := 0
	for _, day := range g.Days {
		for _, slot := range day.Slots {
			n += len(slot.Appointments)
		}
	}
	return n
}

// BuildWeekGrid projects appts onto daysCount days starting at weekStart's
// date and the given hour rows. Non-positive daysCount and empty hourSlots
// fall back to the defaults. Input order is kept within a slot.
func BuildWeekGrid(appts []*types.Appointment, weekStart time.Time, daysCount int, hourSlots []int) *WeekGrid {
	if daysCount <= 0 {
		daysCount = DefaultDays
	}
	if len(hourSlots) == 0 {
		hourSlots = DefaultHours()
	}

	start := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)
	grid := &WeekGrid{
		WeekStart: start.Format(types.DateLayout),
		Hours:     append([]int(nil), hourSlots...),
		Days:      make([]GridDay, daysCount),
		Unslotted: []*types.Appointment{},
	}

	rowOf := make(map[int]int, len(hourSlots))
	for i, h := range hourSlots {
		rowOf[h] = i
	}
	for d := range grid.Days {
		grid.Days[d].Date = start.AddDate(0, 0, d).Format(types.DateLayout)
		grid.Days[d].Slots = make([]Slot, len(hourSlots))
		for i, h := range hourSlots {
			grid.Days[d].Slots[i] = Slot{Hour: h, Appointments: []*types.Appointment{}}
		}
	}

	for _, appt := range appts {
		if appt == nil {
			continue
		}
		date, err := time.Parse(types.DateLayout, appt.Date)
		if err != nil {
			continue
		}
		dayIndex := int(date.Sub(start).Hours() / 24)
		if date.Before(start) || dayIndex >= daysCount {
			continue
		}

		hour, ok := startHour(appt.HeureDebut)
		row, slotted := rowOf[hour]
		if !ok || !slotted {
			grid.Unslotted = append(grid.Unslotted, appt)
			continue
		}
		slot := &grid.Days[dayIndex].Slots[row]
		slot.Appointments = append(slot.Appointments, appt)
	}
	return grid
}

// DayAgenda returns the appointments dated day, ordered by start time.
// Equal start times keep their input order.
func DayAgenda(appts []*types.Appointment, day string) []*types.Appointment {
	out := []*types.Appointment{}
	for _, appt := range appts {
		if appt != nil && appt.Date == day {
			out = append(out, appt)
		}
	}
	// HH:MM is fixed width, so string order is time order
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].HeureDebut < out[j].HeureDebut
	})
	return out
}

func startHour(hhmm string) (int, bool) {
	if len(hhmm) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(hhmm[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}
