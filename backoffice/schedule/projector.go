package schedule

import (
	"time"

	"school_platform/backoffice/schema"
)

// Lessons are stored with times from whatever week they were entered in; only
// the weekday and time-of-day are meaningful. Project remaps them onto the
// week containing the reference time so calendar views always show the
// current week. Projection is idempotent: lessons already in the reference
// week are returned unchanged.

// WeekStart returns midnight on the Monday of the week containing t, in t's
// location.
func WeekStart(t time.Time) time.Time {
	daysSinceMonday := int(t.Weekday()) - int(time.Monday)
	if daysSinceMonday < 0 {
		daysSinceMonday += 7
	}
	year, month, day := t.AddDate(0, 0, -daysSinceMonday).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func projectTime(t, monday time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	day := monday.AddDate(0, 0, offset)
	return time.Date(day.Year(), day.Month(), day.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), monday.Location())
}

// Project returns copies of the given lessons with start and end times moved
// into the week of the reference time. The weekday and time-of-day of each
// start are preserved, and the lesson duration is carried over so a lesson
// spanning midnight keeps its length.
func Project(lessons []schema.Lesson, reference time.Time) []schema.Lesson {
	monday := WeekStart(reference)

	projected := make([]schema.Lesson, len(lessons))
	for i, lesson := range lessons {
		duration := lesson.EndTime.Sub(lesson.StartTime)
		lesson.StartTime = projectTime(lesson.StartTime, monday)
		lesson.EndTime = lesson.StartTime.Add(duration)
		projected[i] = lesson
	}
	return projected
}
