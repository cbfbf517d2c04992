package agenda

import (
	"testing"
	"time"

	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appt(id, date, start string) *types.Appointment {
	return &types.Appointment{ID: id, Date: date, HeureDebut: start, HeureFin: start, Status: types.AppointmentPending}
}

func apptIDs(appts []*types.Appointment) []string {
	out := make([]string, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.ID)
	}
	return out
}

func TestStartOfWeek(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"wednesday", time.Date(2024, 3, 13, 15, 4, 0, 0, time.UTC), "2024-03-11"},
		{"monday", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), "2024-03-11"},
		{"sunday", time.Date(2024, 3, 17, 23, 59, 0, 0, time.UTC), "2024-03-11"},
		{"across month", time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), "2024-02-26"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StartOfWeek(tt.in)
			assert.Equal(t, tt.want, got.Format(types.DateLayout))
			assert.Equal(t, 0, got.Hour())
		})
	}
}

func TestBuildWeekGrid_BucketsByDayAndHour(t *testing.T) {
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	appts := []*types.Appointment{
		appt("a", "2024-03-13", "09:15"),
		appt("b", "2024-03-13", "09:45"),
		appt("c", "2024-03-11", "08:00"),
		appt("d", "2024-03-17", "18:30"),
	}

	grid := BuildWeekGrid(appts, monday, 0, nil)

	assert.Equal(t, "2024-03-11", grid.WeekStart)
	require.Len(t, grid.Days, 7)
	assert.Equal(t, DefaultHours(), grid.Hours)
	assert.Len(t, grid.Hours, 11)
	assert.Equal(t, "2024-03-17", grid.Days[6].Date)

	assert.Equal(t, []string{"a", "b"}, apptIDs(grid.At(2, 9)))
	assert.Equal(t, []string{"c"}, apptIDs(grid.At(0, 8)))
	assert.Equal(t, []string{"d"}, apptIDs(grid.At(6, 18)))
	assert.Empty(t, grid.At(2, 10))
	assert.Equal(t, 4, grid.Count())
	assert.Empty(t, grid.Unslotted)
}

func TestBuildWeekGrid_ExcludesOtherWeeks(t *testing.T) {
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	appts := []*types.Appointment{
		appt("before", "2024-03-10", "10:00"),
		appt("inside", "2024-03-12", "10:00"),
		appt("after", "2024-03-18", "10:00"),
		appt("garbage", "13/03/2024", "10:00"),
	}

	grid := BuildWeekGrid(appts, monday, 7, nil)

	assert.Equal(t, 1, grid.Count())
	assert.Equal(t, []string{"inside"}, apptIDs(grid.At(1, 10)))
	assert.Empty(t, grid.Unslotted)
}

func TestBuildWeekGrid_ReportsUnslotted(t *testing.T) {
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	appts := []*types.Appointment{
		appt("early", "2024-03-12", "07:30"),
		appt("late", "2024-03-12", "19:00"),
		appt("broken", "2024-03-12", "x"),
		appt("ok", "2024-03-12", "12:00"),
	}

	grid := BuildWeekGrid(appts, monday, 7, nil)

	assert.Equal(t, []string{"early", "late", "broken"}, apptIDs(grid.Unslotted))
	assert.Equal(t, 1, grid.Count())
}

func TestBuildWeekGrid_CustomShape(t *testing.T) {
	start := time.Date(2024, 3, 11, 14, 0, 0, 0, time.FixedZone("CET", 3600))
	appts := []*types.Appointment{
		appt("a", "2024-03-13", "14:05"),
		appt("b", "2024-03-16", "14:05"),
	}

	grid := BuildWeekGrid(appts, start, 5, []int{14, 15})

	require.Len(t, grid.Days, 5)
	assert.Equal(t, "2024-03-11", grid.WeekStart)
	assert.Equal(t, []string{"a"}, apptIDs(grid.At(2, 14)))
	assert.Equal(t, 1, grid.Count())
	assert.Nil(t, grid.At(5, 14))
}

func TestBuildWeekGrid_IsPure(t *testing.T) {
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	appts := []*types.Appointment{appt("a", "2024-03-13", "09:15")}
	hours := []int{9, 10}

	first := BuildWeekGrid(appts, monday, 7, hours)
	second := BuildWeekGrid(appts, monday, 7, hours)

	assert.Equal(t, first, second)
	assert.Equal(t, []int{9, 10}, hours)
	assert.Len(t, appts, 1)
}

func TestDayAgenda(t *testing.T) {
	appts := []*types.Appointment{
		appt("ten", "2024-03-13", "10:00"),
		appt("nineA", "2024-03-13", "09:00"),
		appt("other", "2024-03-14", "08:00"),
		appt("nineB", "2024-03-13", "09:00"),
	}

	got := DayAgenda(appts, "2024-03-13")

	assert.Equal(t, []string{"nineA", "nineB", "ten"}, apptIDs(got))
	assert.Equal(t, "ten", appts[0].ID)
}

func TestDayAgenda_NoMatch(t *testing.T) {
	got := DayAgenda([]*types.Appointment{appt("a", "2024-03-14", "08:00")}, "2024-03-13")

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestHourRange(t *testing.T) {
	assert.Equal(t, []int{8, 9, 10}, HourRange(8, 10))
	assert.Nil(t, HourRange(10, 8))
}
