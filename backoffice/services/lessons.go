package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/schedule"
	"school_platform/backoffice/schema"
	"school_platform/backoffice/scope"
	"school_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LessonService manages the timetable. The /schedule endpoint returns the
// caller's visible lessons projected onto the current week for calendar
// rendering.
type LessonService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider

	// now is swapped out in tests to pin the reference week.
	now func() time.Time
}

func (s *LessonService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)
	r.Get("/schedule", s.Schedule)

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly())

		r.Post("/", s.Create)
		r.Post("/{lesson_id}", s.Update)
		r.Delete("/{lesson_id}", s.Delete)
	})

	return r
}

func (s *LessonService) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Lessons(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	res, err := listPage[schema.Lesson](s.db, &schema.Lesson{}, rowScope, parsePagination(r), "Subject", "Class", "Teacher")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing lessons: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

// Schedule returns every lesson the caller can see with times remapped onto
// the current week. It is unpaginated since a week of lessons is small.
func (s *LessonService) Schedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Lessons(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	var lessons []schema.Lesson
	result := s.db.Model(&schema.Lesson{}).Scopes(rowScope).Preload("Subject").Preload("Class").Find(&lessons)
	if result.Error != nil {
		slog.Error("sql error loading schedule lessons", "error", result.Error)
		http.Error(w, "error loading schedule", http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, schedule.Project(lessons, s.now()))
}

type lessonRequest struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	SubjectId uuid.UUID `json:"subject_id"`
	ClassId   uuid.UUID `json:"class_id"`
	TeacherId uuid.UUID `json:"teacher_id"`
}

func (s *LessonService) checkLessonRelations(txn *gorm.DB, params lessonRequest) error {
	checks := []struct {
		model    interface{}
		id       uuid.UUID
		relation string
	}{
		{&schema.Subject{}, params.SubjectId, "subject"},
		{&schema.Class{}, params.ClassId, "class"},
		{&schema.Teacher{}, params.TeacherId, "teacher"},
	}
	for _, check := range checks {
		var count int64
		if result := txn.Model(check.model).Where("id = ?", check.id).Count(&count); result.Error != nil {
			slog.Error("sql error checking lesson relation", "relation", check.relation, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count == 0 {
			return CodedError(fmt.Errorf("%v does not exist", check.relation), http.StatusUnprocessableEntity)
		}
	}
	return nil
}

func validateLessonTimes(params lessonRequest) error {
	if params.Name == "" {
		return CodedError(errors.New("lesson name is required"), http.StatusUnprocessableEntity)
	}
	if !params.EndTime.After(params.StartTime) {
		return CodedError(errors.New("lesson end time must be after its start time"), http.StatusUnprocessableEntity)
	}
	return nil
}

func (s *LessonService) Create(w http.ResponseWriter, r *http.Request) {
	var params lessonRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if err := validateLessonTimes(params); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	lesson := schema.Lesson{
		Id: uuid.New(), Name: params.Name,
		StartTime: params.StartTime, EndTime: params.EndTime,
		SubjectId: params.SubjectId, ClassId: params.ClassId, TeacherId: params.TeacherId,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := s.checkLessonRelations(txn, params); err != nil {
			return err
		}
		if result := txn.Create(&lesson); result.Error != nil {
			slog.Error("sql error creating lesson", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating lesson: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, lesson)
}

func (s *LessonService) Update(w http.ResponseWriter, r *http.Request) {
	lessonId, err := utils.URLParamUUID(r, "lesson_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params lessonRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if err := validateLessonTimes(params); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		lesson, err := schema.GetLesson(lessonId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrLessonNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := s.checkLessonRelations(txn, params); err != nil {
			return err
		}

		lesson.Name = params.Name
		lesson.StartTime = params.StartTime
		lesson.EndTime = params.EndTime
		lesson.SubjectId = params.SubjectId
		lesson.ClassId = params.ClassId
		lesson.TeacherId = params.TeacherId

		if result := txn.Save(&lesson); result.Error != nil {
			slog.Error("sql error updating lesson", "lesson_id", lessonId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating lesson: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *LessonService) Delete(w http.ResponseWriter, r *http.Request) {
	lessonId, err := utils.URLParamUUID(r, "lesson_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		// Exams, assignments, and attendance hang off the lesson and go
		// with it. Results cascade off the exams and assignments.
		var examIds []uuid.UUID
		if result := txn.Model(&schema.Exam{}).Where("lesson_id = ?", lessonId).Pluck("id", &examIds); result.Error != nil {
			slog.Error("sql error listing lesson exams", "lesson_id", lessonId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		var assignmentIds []uuid.UUID
		if result := txn.Model(&schema.Assignment{}).Where("lesson_id = ?", lessonId).Pluck("id", &assignmentIds); result.Error != nil {
			slog.Error("sql error listing lesson assignments", "lesson_id", lessonId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if len(examIds) > 0 {
			if result := txn.Where("exam_id in ?", examIds).Delete(&schema.Result{}); result.Error != nil {
				slog.Error("sql error deleting exam results", "lesson_id", lessonId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		if len(assignmentIds) > 0 {
			if result := txn.Where("assignment_id in ?", assignmentIds).Delete(&schema.Result{}); result.Error != nil {
				slog.Error("sql error deleting assignment results", "lesson_id", lessonId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		for _, model := range []interface{}{&schema.Exam{}, &schema.Assignment{}, &schema.Attendance{}} {
			if result := txn.Where("lesson_id = ?", lessonId).Delete(model); result.Error != nil {
				slog.Error("sql error deleting lesson dependents", "lesson_id", lessonId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		result := txn.Delete(&schema.Lesson{Id: lessonId})
		if result.Error != nil {
			slog.Error("sql error deleting lesson", "lesson_id", lessonId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(schema.ErrLessonNotFound, http.StatusNotFound)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting lesson: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
