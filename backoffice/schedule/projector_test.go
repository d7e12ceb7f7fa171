package schedule_test

import (
	"testing"
	"time"

	"school_platform/backoffice/schedule"
	"school_platform/backoffice/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reference is a Thursday.
var reference = time.Date(2026, time.September, 3, 15, 30, 0, 0, time.UTC)

func lessonAt(start, end time.Time) schema.Lesson {
	return schema.Lesson{Id: uuid.New(), Name: "Math", StartTime: start, EndTime: end}
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, monday, schedule.WeekStart(reference))
	assert.Equal(t, monday, schedule.WeekStart(monday), "Monday is its own week start")

	sunday := time.Date(2026, time.September, 6, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, monday, schedule.WeekStart(sunday), "Sunday belongs to the preceding Monday's week")
}

func TestProjectMovesStaleLessonIntoCurrentWeek(t *testing.T) {
	// A Wednesday lesson recorded months ago.
	start := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	projected := schedule.Project([]schema.Lesson{lessonAt(start, start.Add(45*time.Minute))}, reference)
	require.Len(t, projected, 1)

	want := time.Date(2026, time.September, 2, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, want, projected[0].StartTime)
	assert.Equal(t, want.Add(45*time.Minute), projected[0].EndTime)
	assert.Equal(t, time.Wednesday, projected[0].StartTime.Weekday())
}

func TestProjectIsIdempotent(t *testing.T) {
	start := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	lessons := []schema.Lesson{lessonAt(start, start.Add(time.Hour))}

	once := schedule.Project(lessons, reference)
	twice := schedule.Project(once, reference)

	assert.Equal(t, once[0].StartTime, twice[0].StartTime)
	assert.Equal(t, once[0].EndTime, twice[0].EndTime)
}

func TestProjectLeavesCurrentWeekLessonUnchanged(t *testing.T) {
	start := time.Date(2026, time.September, 1, 10, 15, 0, 0, time.UTC) // Tuesday of the reference week
	projected := schedule.Project([]schema.Lesson{lessonAt(start, start.Add(time.Hour))}, reference)

	assert.Equal(t, start, projected[0].StartTime)
	assert.Equal(t, start.Add(time.Hour), projected[0].EndTime)
}

func TestProjectWeekendLesson(t *testing.T) {
	// A Sunday lesson lands on the Sunday at the end of the current week,
	// even when the reference day is before it.
	start := time.Date(2026, time.May, 10, 11, 0, 0, 0, time.UTC) // a Sunday
	projected := schedule.Project([]schema.Lesson{lessonAt(start, start.Add(time.Hour))}, reference)

	want := time.Date(2026, time.September, 6, 11, 0, 0, 0, time.UTC)
	assert.Equal(t, want, projected[0].StartTime)
}

func TestProjectPreservesDurationAcrossMidnight(t *testing.T) {
	start := time.Date(2026, time.March, 6, 23, 30, 0, 0, time.UTC) // Friday night
	end := start.Add(time.Hour)                                     // ends Saturday

	projected := schedule.Project([]schema.Lesson{lessonAt(start, end)}, reference)
	assert.Equal(t, time.Hour, projected[0].EndTime.Sub(projected[0].StartTime))
	assert.Equal(t, time.Friday, projected[0].StartTime.Weekday())
}

func TestProjectPreservesOrderAndCount(t *testing.T) {
	var lessons []schema.Lesson
	for day := 2; day <= 6; day++ {
		start := time.Date(2026, time.March, day, 8, 0, 0, 0, time.UTC)
		lessons = append(lessons, lessonAt(start, start.Add(time.Hour)))
	}

	projected := schedule.Project(lessons, reference)
	require.Len(t, projected, len(lessons))
	for i := range lessons {
		assert.Equal(t, lessons[i].Id, projected[i].Id)
	}
}
