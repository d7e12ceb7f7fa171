package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrTeacherNotFound = errors.New("teacher not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrParentNotFound  = errors.New("parent not found")
	ErrClassNotFound   = errors.New("class not found")
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrCallerNotFound  = errors.New("no account found for identity")
	ErrDbAccessFailed  = errors.New("db access failed")
)

func GetTeacher(teacherId uuid.UUID, db *gorm.DB) (Teacher, error) {
	var teacher Teacher

	result := db.Preload("Subjects").First(&teacher, "id = ?", teacherId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return teacher, ErrTeacherNotFound
		}
		slog.Error("sql error in get teacher", "teacher_id", teacherId, "error", result.Error)
		return teacher, ErrDbAccessFailed
	}

	return teacher, nil
}

func GetStudent(studentId uuid.UUID, db *gorm.DB) (Student, error) {
	var student Student

	result := db.First(&student, "id = ?", studentId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return student, ErrStudentNotFound
		}
		slog.Error("sql error in get student", "student_id", studentId, "error", result.Error)
		return student, ErrDbAccessFailed
	}

	return student, nil
}

func GetParent(parentId uuid.UUID, db *gorm.DB) (Parent, error) {
	var parent Parent

	result := db.First(&parent, "id = ?", parentId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return parent, ErrParentNotFound
		}
		slog.Error("sql error in get parent", "parent_id", parentId, "error", result.Error)
		return parent, ErrDbAccessFailed
	}

	return parent, nil
}

func GetClass(classId uuid.UUID, db *gorm.DB) (Class, error) {
	var class Class

	result := db.First(&class, "id = ?", classId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return class, ErrClassNotFound
		}
		slog.Error("sql error in get class", "class_id", classId, "error", result.Error)
		return class, ErrDbAccessFailed
	}

	return class, nil
}

func GetLesson(lessonId uuid.UUID, db *gorm.DB) (Lesson, error) {
	var lesson Lesson

	result := db.First(&lesson, "id = ?", lessonId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return lesson, ErrLessonNotFound
		}
		slog.Error("sql error in get lesson", "lesson_id", lessonId, "error", result.Error)
		return lesson, ErrDbAccessFailed
	}

	return lesson, nil
}

// ResolveRole finds which account table holds the given identity id. The
// directory is the authority for the role attribute, but every authenticated
// caller must also have a local row, so the local tables are checked in order.
func ResolveRole(id uuid.UUID, db *gorm.DB) (string, error) {
	probes := []struct {
		role  string
		model interface{}
	}{
		{RoleAdmin, &Admin{}},
		{RoleTeacher, &Teacher{}},
		{RoleStudent, &Student{}},
		{RoleParent, &Parent{}},
	}

	for _, probe := range probes {
		var count int64
		result := db.Model(probe.model).Where("id = ?", id).Count(&count)
		if result.Error != nil {
			slog.Error("sql error resolving caller role", "id", id, "error", result.Error)
			return "", ErrDbAccessFailed
		}
		if count > 0 {
			return probe.role, nil
		}
	}

	return "", ErrCallerNotFound
}
