package tests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"school_platform/backoffice/schedule"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lessonBody(name string, s structure, teacherId uuid.UUID, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"name":       name,
		"start_time": start,
		"end_time":   start.Add(time.Hour),
		"subject_id": s.SubjectId,
		"class_id":   s.ClassId,
		"teacher_id": teacherId,
	}
}

func TestLessonLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	s := env.seedStructure(t, 10)

	teacher, err := admin.createTeacher(teacherPayload("teacher1", s.SubjectId))
	require.NoError(t, err)

	start := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	lesson, err := admin.createLesson(lessonBody("Math", s, teacher.Id, start))
	require.NoError(t, err)
	assert.Equal(t, start, lesson.StartTime.UTC())

	// End before start is refused.
	bad := lessonBody("Backwards", s, teacher.Id, start)
	bad["end_time"] = start.Add(-time.Hour)
	err = admin.Post("/lessons").Json(bad).ExpectStatus(http.StatusUnprocessableEntity).Do(nil)
	assert.NoError(t, err)

	// So is a lesson pointing at a teacher that does not exist.
	orphan := lessonBody("Orphan", s, uuid.New(), start)
	err = admin.Post("/lessons").Json(orphan).ExpectStatus(http.StatusUnprocessableEntity).Do(nil)
	assert.NoError(t, err)

	// Teachers cannot manage the timetable.
	tc := env.newClient()
	require.NoError(t, tc.login("teacher1", "teacher1_password"))
	err = tc.Post("/lessons").Json(lessonBody("Rogue", s, teacher.Id, start)).ExpectStatus(http.StatusForbidden).Do(nil)
	assert.NoError(t, err)

	require.NoError(t, admin.Delete(fmt.Sprintf("/lessons/%v", lesson.Id)).Do(nil))
	err = admin.Delete(fmt.Sprintf("/lessons/%v", lesson.Id)).ExpectStatus(http.StatusNotFound).Do(nil)
	assert.NoError(t, err)
}

func TestScheduleProjectsLessonsOntoCurrentWeek(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	s := env.seedStructure(t, 10)

	teacher, err := admin.createTeacher(teacherPayload("teacher1", s.SubjectId))
	require.NoError(t, err)

	// A lesson recorded with a long stale start time.
	stale := time.Date(2020, time.January, 8, 9, 30, 0, 0, time.UTC) // a Wednesday
	_, err = admin.createLesson(lessonBody("Math", s, teacher.Id, stale))
	require.NoError(t, err)

	tc := env.newClient()
	require.NoError(t, tc.login("teacher1", "teacher1_password"))

	lessons, err := tc.schedule("")
	require.NoError(t, err)
	require.Len(t, lessons, 1)

	got := lessons[0].StartTime
	weekStart := schedule.WeekStart(time.Now().In(got.Location()))

	assert.Equal(t, time.Wednesday, got.Weekday())
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 30, got.Minute())
	assert.False(t, got.Before(weekStart))
	assert.True(t, got.Before(weekStart.AddDate(0, 0, 7)))
	assert.Equal(t, time.Hour, lessons[0].EndTime.Sub(got))
}

func TestAttendanceRecording(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	s := env.seedStructure(t, 10)

	teacherA, err := admin.createTeacher(teacherPayload("teachera", s.SubjectId))
	require.NoError(t, err)
	teacherB := teacherPayload("teacherb", s.SubjectId)
	teacherB["phone"] = "0123456785"
	_, err = admin.createTeacher(teacherB)
	require.NoError(t, err)

	parent, err := admin.createParent(parentPayload("parent1", "0123456789"))
	require.NoError(t, err)
	student, err := admin.createStudent(studentPayload("student1", s, parent.Id))
	require.NoError(t, err)

	start := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)
	lesson, err := admin.createLesson(lessonBody("Math", s, teacherA.Id, start))
	require.NoError(t, err)

	ta := env.newClient()
	require.NoError(t, ta.login("teachera", "teachera_password"))

	day := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	record := map[string]interface{}{
		"date": day, "present": true,
		"student_id": student.Id, "lesson_id": lesson.Id,
	}

	_, err = ta.recordAttendance(record)
	require.NoError(t, err)

	// Same student, lesson, and day again.
	err = ta.Post("/attendance").Json(record).ExpectStatus(http.StatusConflict).Do(nil)
	assert.NoError(t, err)

	// The other teacher does not own this lesson.
	tb := env.newClient()
	require.NoError(t, tb.login("teacherb", "teacherb_password"))
	other := map[string]interface{}{
		"date": day.AddDate(0, 0, 1), "present": false,
		"student_id": student.Id, "lesson_id": lesson.Id,
	}
	err = tb.Post("/attendance").Json(other).ExpectStatus(http.StatusForbidden).Do(nil)
	assert.NoError(t, err)

	// Students and parents can read their rows but never write them.
	sc := env.newClient()
	require.NoError(t, sc.login("student1", "student1_password"))
	err = sc.Post("/attendance").Json(other).ExpectStatus(http.StatusForbidden).Do(nil)
	assert.NoError(t, err)

	rows, err := sc.listAttendance("")
	require.NoError(t, err)
	require.Equal(t, int64(1), rows.Total)
	assert.Equal(t, student.Id, rows.Items[0].StudentId)

	pc := env.newClient()
	require.NoError(t, pc.login("parent1", "parent1_password"))
	rows, err = pc.listAttendance("")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows.Total)
}
