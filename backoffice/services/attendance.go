package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/schema"
	"school_platform/backoffice/scope"
	"school_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttendanceService records and lists lesson attendance. Listing is scoped
// per role: teachers see their own lessons, students themselves, parents
// their children.
type AttendanceService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *AttendanceService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)

	r.Group(func(r chi.Router) {
		r.Use(auth.StaffOnly())

		r.Post("/", s.Record)
		r.Post("/{attendance_id}", s.Update)
		r.Delete("/{attendance_id}", s.Delete)
	})

	return r
}

func (s *AttendanceService) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Attendance(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	res, err := listPage[schema.Attendance](s.db, &schema.Attendance{}, rowScope, parsePagination(r), "Student", "Lesson")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing attendance: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type attendanceRequest struct {
	Date      time.Time `json:"date"`
	Present   bool      `json:"present"`
	StudentId uuid.UUID `json:"student_id"`
	LessonId  uuid.UUID `json:"lesson_id"`
}

// checkAttendanceTarget verifies the lesson and student exist, that teachers
// are only marking their own lessons, and that the student is in the class
// the lesson belongs to.
func checkAttendanceTarget(txn *gorm.DB, params attendanceRequest, caller auth.Caller) error {
	lesson, err := schema.GetLesson(params.LessonId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrLessonNotFound) {
			return CodedError(errors.New("lesson does not exist"), http.StatusUnprocessableEntity)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	if caller.Role == schema.RoleTeacher && lesson.TeacherId != caller.Id {
		return CodedError(errors.New("teachers may only record attendance for their own lessons"), http.StatusForbidden)
	}

	student, err := schema.GetStudent(params.StudentId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrStudentNotFound) {
			return CodedError(errors.New("student does not exist"), http.StatusUnprocessableEntity)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	if student.ClassId != lesson.ClassId {
		return CodedError(errors.New("student is not in the class of this lesson"), http.StatusUnprocessableEntity)
	}
	return nil
}

func (s *AttendanceService) Record(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	var params attendanceRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Date.IsZero() {
		http.Error(w, "attendance date is required", http.StatusUnprocessableEntity)
		return
	}

	record := schema.Attendance{
		Id: uuid.New(), Date: params.Date, Present: params.Present,
		StudentId: params.StudentId, LessonId: params.LessonId,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkAttendanceTarget(txn, params, caller); err != nil {
			return err
		}

		// One attendance row per student, lesson, and day.
		var count int64
		result := txn.Model(&schema.Attendance{}).
			Where("student_id = ? and lesson_id = ? and date = ?", params.StudentId, params.LessonId, params.Date).
			Count(&count)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate attendance", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(errors.New("attendance has already been recorded for this student, lesson, and date"), http.StatusConflict)
		}

		if result := txn.Create(&record); result.Error != nil {
			slog.Error("sql error creating attendance", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error recording attendance: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, record)
}

func (s *AttendanceService) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	attendanceId, err := utils.URLParamUUID(r, "attendance_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params attendanceRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Date.IsZero() {
		http.Error(w, "attendance date is required", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var record schema.Attendance
		result := txn.First(&record, "id = ?", attendanceId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("attendance record not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading attendance", "attendance_id", attendanceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := checkAttendanceTarget(txn, params, caller); err != nil {
			return err
		}

		record.Date = params.Date
		record.Present = params.Present
		record.StudentId = params.StudentId
		record.LessonId = params.LessonId

		if result := txn.Save(&record); result.Error != nil {
			slog.Error("sql error updating attendance", "attendance_id", attendanceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating attendance: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AttendanceService) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	attendanceId, err := utils.URLParamUUID(r, "attendance_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var record schema.Attendance
		result := txn.First(&record, "id = ?", attendanceId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("attendance record not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading attendance", "attendance_id", attendanceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if caller.Role == schema.RoleTeacher {
			lesson, err := schema.GetLesson(record.LessonId, txn)
			if err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
			if lesson.TeacherId != caller.Id {
				return CodedError(errors.New("teachers may only remove attendance for their own lessons"), http.StatusForbidden)
			}
		}

		if result := txn.Delete(&record); result.Error != nil {
			slog.Error("sql error deleting attendance", "attendance_id", attendanceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting attendance: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
