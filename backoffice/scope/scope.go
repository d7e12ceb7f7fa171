package scope

import (
	"errors"
	"log/slog"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrUnauthorizedScope is returned alongside a match-none scope when the
// caller's role grants no visibility over the requested entity. Callers that
// apply the scope anyway get an empty result set, never an unscoped one.
var ErrUnauthorizedScope = errors.New("role has no visibility over this entity")

// A Scope narrows a list query to the rows the caller may see. Scopes are
// composable with gorm's Scopes().
type Scope func(*gorm.DB) *gorm.DB

func matchAll(db *gorm.DB) *gorm.DB {
	return db
}

func matchNone(db *gorm.DB) *gorm.DB {
	return db.Where("1 = 0")
}

func failClosed(caller auth.Caller, entity string) (Scope, error) {
	slog.Warn("caller role has no scope rule for entity, denying", "entity", entity, "role", caller.Role, "caller_id", caller.Id)
	return matchNone, ErrUnauthorizedScope
}

// checkCallerId refuses resolution for role-restricted callers without an id.
// Every non-admin rule keys on the caller id; resolving without one would
// build predicates against the zero uuid.
func checkCallerId(caller auth.Caller, entity string) error {
	if caller.Role != schema.RoleAdmin && caller.Id == uuid.Nil {
		slog.Warn("caller id missing for scoped entity, denying", "entity", entity, "role", caller.Role)
		return ErrUnauthorizedScope
	}
	return nil
}

// Filters are the optional list filters supplied by the caller. They are
// intersected with the role scope, never unioned: a parent filtering by a
// student that is not theirs sees nothing.
type Filters struct {
	StudentId *uuid.UUID
	ClassId   *uuid.UUID
	TeacherId *uuid.UUID
	LessonId  *uuid.UUID
	Search    string
}

const lessonsOfTeacher = "select id from lessons where teacher_id = ?"
const classesOfTeacher = "select distinct class_id from lessons where teacher_id = ?"
const classOfStudent = "select class_id from students where id = ?"
const classesOfChildren = "select distinct class_id from students where parent_id = ?"
const childrenOfParent = "select id from students where parent_id = ?"

// Attendance scopes attendance rows. Teachers see attendance for their own
// lessons, students their own rows, parents their children's rows.
func Attendance(caller auth.Caller, filters Filters) (Scope, error) {
	if err := checkCallerId(caller, "attendance"); err != nil {
		return matchNone, err
	}

	var role Scope
	switch caller.Role {
	case schema.RoleAdmin:
		role = matchAll
	case schema.RoleTeacher:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("attendances.lesson_id in ("+lessonsOfTeacher+")", caller.Id)
		}
	case schema.RoleStudent:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("attendances.student_id = ?", caller.Id)
		}
	case schema.RoleParent:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("attendances.student_id in ("+childrenOfParent+")", caller.Id)
		}
	default:
		return failClosed(caller, "attendance")
	}

	return func(db *gorm.DB) *gorm.DB {
		db = role(db)
		if filters.StudentId != nil {
			db = db.Where("attendances.student_id = ?", *filters.StudentId)
		}
		if filters.LessonId != nil {
			db = db.Where("attendances.lesson_id = ?", *filters.LessonId)
		}
		if filters.ClassId != nil {
			db = db.Where("attendances.lesson_id in (select id from lessons where class_id = ?)", *filters.ClassId)
		}
		if filters.Search != "" {
			db = db.Where("attendances.student_id in (select id from students where name like ? or surname like ?)",
				"%"+filters.Search+"%", "%"+filters.Search+"%")
		}
		return db
	}, nil
}

// Lessons scopes the timetable. Students and parents see the lessons of the
// relevant class, teachers their own teaching load.
func Lessons(caller auth.Caller, filters Filters) (Scope, error) {
	if err := checkCallerId(caller, "lessons"); err != nil {
		return matchNone, err
	}

	var role Scope
	switch caller.Role {
	case schema.RoleAdmin:
		role = matchAll
	case schema.RoleTeacher:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("lessons.teacher_id = ?", caller.Id)
		}
	case schema.RoleStudent:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("lessons.class_id in ("+classOfStudent+")", caller.Id)
		}
	case schema.RoleParent:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("lessons.class_id in ("+classesOfChildren+")", caller.Id)
		}
	default:
		return failClosed(caller, "lessons")
	}

	return func(db *gorm.DB) *gorm.DB {
		db = role(db)
		if filters.ClassId != nil {
			db = db.Where("lessons.class_id = ?", *filters.ClassId)
		}
		if filters.TeacherId != nil {
			db = db.Where("lessons.teacher_id = ?", *filters.TeacherId)
		}
		if filters.Search != "" {
			db = db.Where("lessons.name like ?", "%"+filters.Search+"%")
		}
		return db
	}, nil
}

func lessonBoundScope(caller auth.Caller, column string) (Scope, error) {
	if err := checkCallerId(caller, "lesson-bound records"); err != nil {
		return matchNone, err
	}

	switch caller.Role {
	case schema.RoleAdmin:
		return matchAll, nil
	case schema.RoleTeacher:
		return func(db *gorm.DB) *gorm.DB {
			return db.Where(column+" in ("+lessonsOfTeacher+")", caller.Id)
		}, nil
	case schema.RoleStudent:
		return func(db *gorm.DB) *gorm.DB {
			return db.Where(column+" in (select id from lessons where class_id in ("+classOfStudent+"))", caller.Id)
		}, nil
	case schema.RoleParent:
		return func(db *gorm.DB) *gorm.DB {
			return db.Where(column+" in (select id from lessons where class_id in ("+classesOfChildren+"))", caller.Id)
		}, nil
	default:
		return failClosed(caller, "lesson-bound records")
	}
}

func Exams(caller auth.Caller, filters Filters) (Scope, error) {
	role, err := lessonBoundScope(caller, "exams.lesson_id")
	if err != nil {
		return role, err
	}
	return func(db *gorm.DB) *gorm.DB {
		db = role(db)
		if filters.LessonId != nil {
			db = db.Where("exams.lesson_id = ?", *filters.LessonId)
		}
		if filters.Search != "" {
			db = db.Where("exams.title like ?", "%"+filters.Search+"%")
		}
		return db
	}, nil
}

func Assignments(caller auth.Caller, filters Filters) (Scope, error) {
	role, err := lessonBoundScope(caller, "assignments.lesson_id")
	if err != nil {
		return role, err
	}
	return func(db *gorm.DB) *gorm.DB {
		db = role(db)
		if filters.LessonId != nil {
			db = db.Where("assignments.lesson_id = ?", *filters.LessonId)
		}
		if filters.Search != "" {
			db = db.Where("assignments.title like ?", "%"+filters.Search+"%")
		}
		return db
	}, nil
}

// Results scopes graded scores. Teachers see scores for exams and assignments
// of their own lessons.
func Results(caller auth.Caller, filters Filters) (Scope, error) {
	if err := checkCallerId(caller, "results"); err != nil {
		return matchNone, err
	}

	var role Scope
	switch caller.Role {
	case schema.RoleAdmin:
		role = matchAll
	case schema.RoleTeacher:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where(
				"results.exam_id in (select id from exams where lesson_id in ("+lessonsOfTeacher+"))"+
					" or results.assignment_id in (select id from assignments where lesson_id in ("+lessonsOfTeacher+"))",
				caller.Id, caller.Id)
		}
	case schema.RoleStudent:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("results.student_id = ?", caller.Id)
		}
	case schema.RoleParent:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("results.student_id in ("+childrenOfParent+")", caller.Id)
		}
	default:
		return failClosed(caller, "results")
	}

	return func(db *gorm.DB) *gorm.DB {
		db = role(db)
		if filters.StudentId != nil {
			db = db.Where("results.student_id = ?", *filters.StudentId)
		}
		if filters.Search != "" {
			db = db.Where("results.student_id in (select id from students where name like ? or surname like ?)",
				"%"+filters.Search+"%", "%"+filters.Search+"%")
		}
		return db
	}, nil
}

// Students scopes the student roster. Teachers see students of classes they
// teach, parents their own children, students only themselves.
func Students(caller auth.Caller, filters Filters) (Scope, error) {
	if err := checkCallerId(caller, "students"); err != nil {
		return matchNone, err
	}

	var role Scope
	switch caller.Role {
	case schema.RoleAdmin:
		role = matchAll
	case schema.RoleTeacher:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("students.class_id in ("+classesOfTeacher+")", caller.Id)
		}
	case schema.RoleStudent:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("students.id = ?", caller.Id)
		}
	case schema.RoleParent:
		role = func(db *gorm.DB) *gorm.DB {
			return db.Where("students.parent_id = ?", caller.Id)
		}
	default:
		return failClosed(caller, "students")
	}

	return func(db *gorm.DB) *gorm.DB {
		db = role(db)
		if filters.ClassId != nil {
			db = db.Where("students.class_id = ?", *filters.ClassId)
		}
		if filters.TeacherId != nil {
			db = db.Where("students.class_id in ("+classesOfTeacher+")", *filters.TeacherId)
		}
		if filters.Search != "" {
			db = db.Where("students.name like ? or students.surname like ?", "%"+filters.Search+"%", "%"+filters.Search+"%")
		}
		return db
	}, nil
}

// classBoundScope covers announcements and events: rows bound to one of the
// caller's classes plus school-wide rows with no class at all.
func classBoundScope(caller auth.Caller, column, entity string) (Scope, error) {
	if err := checkCallerId(caller, entity); err != nil {
		return matchNone, err
	}

	switch caller.Role {
	case schema.RoleAdmin:
		return matchAll, nil
	case schema.RoleTeacher:
		return func(db *gorm.DB) *gorm.DB {
			return db.Where(column+" is null or "+column+" in ("+classesOfTeacher+")", caller.Id)
		}, nil
	case schema.RoleStudent:
		return func(db *gorm.DB) *gorm.DB {
			return db.Where(column+" is null or "+column+" in ("+classOfStudent+")", caller.Id)
		}, nil
	case schema.RoleParent:
		return func(db *gorm.DB) *gorm.DB {
			return db.Where(column+" is null or "+column+" in ("+classesOfChildren+")", caller.Id)
		}, nil
	default:
		return failClosed(caller, entity)
	}
}

func Announcements(caller auth.Caller, filters Filters) (Scope, error) {
	role, err := classBoundScope(caller, "announcements.class_id", "announcements")
	if err != nil {
		return role, err
	}
	return func(db *gorm.DB) *gorm.DB {
		db = role(db)
		if filters.Search != "" {
			db = db.Where("announcements.title like ?", "%"+filters.Search+"%")
		}
		return db
	}, nil
}

func Events(caller auth.Caller, filters Filters) (Scope, error) {
	role, err := classBoundScope(caller, "events.class_id", "events")
	if err != nil {
		return role, err
	}
	return func(db *gorm.DB) *gorm.DB {
		db = role(db)
		if filters.Search != "" {
			db = db.Where("events.title like ?", "%"+filters.Search+"%")
		}
		return db
	}, nil
}
