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

// AssessmentService manages exams, assignments, and their scores. Admins may
// touch anything; teachers only records attached to their own lessons.
type AssessmentService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *AssessmentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/exams", s.ListExams)
	r.Get("/assignments", s.ListAssignments)
	r.Get("/results", s.ListResults)

	r.Group(func(r chi.Router) {
		r.Use(auth.StaffOnly())

		r.Post("/exams", s.CreateExam)
		r.Post("/exams/{exam_id}", s.UpdateExam)
		r.Delete("/exams/{exam_id}", s.DeleteExam)

		r.Post("/assignments", s.CreateAssignment)
		r.Post("/assignments/{assignment_id}", s.UpdateAssignment)
		r.Delete("/assignments/{assignment_id}", s.DeleteAssignment)

		r.Post("/results", s.CreateResult)
		r.Post("/results/{result_id}", s.UpdateResult)
		r.Delete("/results/{result_id}", s.DeleteResult)
	})

	return r
}

// checkLessonOwnership verifies the lesson exists and, for teachers, that it
// is one of their own.
func checkLessonOwnership(txn *gorm.DB, lessonId uuid.UUID, caller auth.Caller) error {
	lesson, err := schema.GetLesson(lessonId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrLessonNotFound) {
			return CodedError(errors.New("lesson does not exist"), http.StatusUnprocessableEntity)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	if caller.Role == schema.RoleTeacher && lesson.TeacherId != caller.Id {
		return CodedError(errors.New("teachers may only manage records for their own lessons"), http.StatusForbidden)
	}
	return nil
}

func (s *AssessmentService) ListExams(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Exams(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	res, err := listPage[schema.Exam](s.db, &schema.Exam{}, rowScope, parsePagination(r), "Lesson")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing exams: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type examRequest struct {
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	LessonId  uuid.UUID `json:"lesson_id"`
}

func (s *AssessmentService) CreateExam(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	var params examRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" || !params.EndTime.After(params.StartTime) {
		http.Error(w, "exam title and a valid time range are required", http.StatusUnprocessableEntity)
		return
	}

	exam := schema.Exam{
		Id: uuid.New(), Title: params.Title,
		StartTime: params.StartTime, EndTime: params.EndTime, LessonId: params.LessonId,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkLessonOwnership(txn, params.LessonId, caller); err != nil {
			return err
		}
		if result := txn.Create(&exam); result.Error != nil {
			slog.Error("sql error creating exam", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating exam: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, exam)
}

func (s *AssessmentService) UpdateExam(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	examId, err := utils.URLParamUUID(r, "exam_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params examRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" || !params.EndTime.After(params.StartTime) {
		http.Error(w, "exam title and a valid time range are required", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var exam schema.Exam
		result := txn.First(&exam, "id = ?", examId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("exam not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading exam", "exam_id", examId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// Ownership applies to both the current lesson and the target one.
		if err := checkLessonOwnership(txn, exam.LessonId, caller); err != nil {
			return err
		}
		if err := checkLessonOwnership(txn, params.LessonId, caller); err != nil {
			return err
		}

		exam.Title = params.Title
		exam.StartTime = params.StartTime
		exam.EndTime = params.EndTime
		exam.LessonId = params.LessonId

		if result := txn.Save(&exam); result.Error != nil {
			slog.Error("sql error updating exam", "exam_id", examId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating exam: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AssessmentService) DeleteExam(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	examId, err := utils.URLParamUUID(r, "exam_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var exam schema.Exam
		result := txn.First(&exam, "id = ?", examId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("exam not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading exam", "exam_id", examId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := checkLessonOwnership(txn, exam.LessonId, caller); err != nil {
			return err
		}

		if result := txn.Where("exam_id = ?", examId).Delete(&schema.Result{}); result.Error != nil {
			slog.Error("sql error deleting exam results", "exam_id", examId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&exam); result.Error != nil {
			slog.Error("sql error deleting exam", "exam_id", examId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting exam: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AssessmentService) ListAssignments(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Assignments(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	res, err := listPage[schema.Assignment](s.db, &schema.Assignment{}, rowScope, parsePagination(r), "Lesson")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing assignments: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type assignmentRequest struct {
	Title     string    `json:"title"`
	StartDate time.Time `json:"start_date"`
	DueDate   time.Time `json:"due_date"`
	LessonId  uuid.UUID `json:"lesson_id"`
}

func (s *AssessmentService) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	var params assignmentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" || !params.DueDate.After(params.StartDate) {
		http.Error(w, "assignment title and a due date after the start date are required", http.StatusUnprocessableEntity)
		return
	}

	assignment := schema.Assignment{
		Id: uuid.New(), Title: params.Title,
		StartDate: params.StartDate, DueDate: params.DueDate, LessonId: params.LessonId,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkLessonOwnership(txn, params.LessonId, caller); err != nil {
			return err
		}
		if result := txn.Create(&assignment); result.Error != nil {
			slog.Error("sql error creating assignment", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating assignment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, assignment)
}

func (s *AssessmentService) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	assignmentId, err := utils.URLParamUUID(r, "assignment_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params assignmentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" || !params.DueDate.After(params.StartDate) {
		http.Error(w, "assignment title and a due date after the start date are required", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var assignment schema.Assignment
		result := txn.First(&assignment, "id = ?", assignmentId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("assignment not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading assignment", "assignment_id", assignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := checkLessonOwnership(txn, assignment.LessonId, caller); err != nil {
			return err
		}
		if err := checkLessonOwnership(txn, params.LessonId, caller); err != nil {
			return err
		}

		assignment.Title = params.Title
		assignment.StartDate = params.StartDate
		assignment.DueDate = params.DueDate
		assignment.LessonId = params.LessonId

		if result := txn.Save(&assignment); result.Error != nil {
			slog.Error("sql error updating assignment", "assignment_id", assignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating assignment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AssessmentService) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	assignmentId, err := utils.URLParamUUID(r, "assignment_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var assignment schema.Assignment
		result := txn.First(&assignment, "id = ?", assignmentId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("assignment not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading assignment", "assignment_id", assignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := checkLessonOwnership(txn, assignment.LessonId, caller); err != nil {
			return err
		}

		if result := txn.Where("assignment_id = ?", assignmentId).Delete(&schema.Result{}); result.Error != nil {
			slog.Error("sql error deleting assignment results", "assignment_id", assignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&assignment); result.Error != nil {
			slog.Error("sql error deleting assignment", "assignment_id", assignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting assignment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AssessmentService) ListResults(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Results(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	res, err := listPage[schema.Result](s.db, &schema.Result{}, rowScope, parsePagination(r), "Student", "Exam", "Assignment")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing results: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type resultRequest struct {
	Score        int        `json:"score"`
	ExamId       *uuid.UUID `json:"exam_id"`
	AssignmentId *uuid.UUID `json:"assignment_id"`
	StudentId    uuid.UUID  `json:"student_id"`
}

// resultLesson resolves the lesson a score belongs to and enforces that the
// score is attached to exactly one of an exam or an assignment.
func resultLesson(txn *gorm.DB, params resultRequest) (uuid.UUID, error) {
	if (params.ExamId == nil) == (params.AssignmentId == nil) {
		return uuid.Nil, CodedError(errors.New("a result must reference exactly one of an exam or an assignment"), http.StatusUnprocessableEntity)
	}

	if params.ExamId != nil {
		var exam schema.Exam
		result := txn.First(&exam, "id = ?", *params.ExamId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return uuid.Nil, CodedError(errors.New("exam does not exist"), http.StatusUnprocessableEntity)
			}
			slog.Error("sql error loading exam for result", "error", result.Error)
			return uuid.Nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return exam.LessonId, nil
	}

	var assignment schema.Assignment
	result := txn.First(&assignment, "id = ?", *params.AssignmentId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return uuid.Nil, CodedError(errors.New("assignment does not exist"), http.StatusUnprocessableEntity)
		}
		slog.Error("sql error loading assignment for result", "error", result.Error)
		return uuid.Nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return assignment.LessonId, nil
}

func (s *AssessmentService) CreateResult(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	var params resultRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Score < 0 {
		http.Error(w, "score cannot be negative", http.StatusUnprocessableEntity)
		return
	}

	record := schema.Result{
		Id: uuid.New(), Score: params.Score,
		ExamId: params.ExamId, AssignmentId: params.AssignmentId, StudentId: params.StudentId,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		lessonId, err := resultLesson(txn, params)
		if err != nil {
			return err
		}
		if err := checkLessonOwnership(txn, lessonId, caller); err != nil {
			return err
		}
		if _, err := schema.GetStudent(params.StudentId, txn); err != nil {
			if errors.Is(err, schema.ErrStudentNotFound) {
				return CodedError(errors.New("student does not exist"), http.StatusUnprocessableEntity)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if result := txn.Create(&record); result.Error != nil {
			slog.Error("sql error creating result", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating result: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, record)
}

func (s *AssessmentService) UpdateResult(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	resultId, err := utils.URLParamUUID(r, "result_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params resultRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Score < 0 {
		http.Error(w, "score cannot be negative", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var record schema.Result
		result := txn.First(&record, "id = ?", resultId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("result not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading result", "result_id", resultId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		lessonId, err := resultLesson(txn, params)
		if err != nil {
			return err
		}
		if err := checkLessonOwnership(txn, lessonId, caller); err != nil {
			return err
		}

		record.Score = params.Score
		record.ExamId = params.ExamId
		record.AssignmentId = params.AssignmentId
		record.StudentId = params.StudentId

		if result := txn.Save(&record); result.Error != nil {
			slog.Error("sql error updating result", "result_id", resultId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating result: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AssessmentService) DeleteResult(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	resultId, err := utils.URLParamUUID(r, "result_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var record schema.Result
		result := txn.First(&record, "id = ?", resultId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("result not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading result", "result_id", resultId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		lessonId, err := resultLesson(txn, resultRequest{
			ExamId: record.ExamId, AssignmentId: record.AssignmentId, StudentId: record.StudentId,
		})
		if err != nil {
			return err
		}
		if err := checkLessonOwnership(txn, lessonId, caller); err != nil {
			return err
		}

		if result := txn.Delete(&record); result.Error != nil {
			slog.Error("sql error deleting result", "result_id", resultId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting result: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
