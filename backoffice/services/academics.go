package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/schema"
	"school_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AcademicsService manages the school structure records: subjects, grades,
// and classes. These are reference data visible to every authenticated
// caller; only admins may change them.
type AcademicsService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *AcademicsService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/subjects", s.ListSubjects)
	r.Get("/grades", s.ListGrades)
	r.Get("/classes", s.ListClasses)

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly())

		r.Post("/subjects", s.CreateSubject)
		r.Post("/subjects/{subject_id}", s.UpdateSubject)
		r.Delete("/subjects/{subject_id}", s.DeleteSubject)

		r.Post("/grades", s.CreateGrade)
		r.Delete("/grades/{grade_id}", s.DeleteGrade)

		r.Post("/classes", s.CreateClass)
		r.Post("/classes/{class_id}", s.UpdateClass)
		r.Delete("/classes/{class_id}", s.DeleteClass)
	})

	return r
}

func (s *AcademicsService) ListSubjects(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope := func(db *gorm.DB) *gorm.DB {
		if filters.Search != "" {
			db = db.Where("subjects.name like ?", "%"+filters.Search+"%")
		}
		return db
	}

	res, err := listPage[schema.Subject](s.db, &schema.Subject{}, rowScope, parsePagination(r), "Teachers")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing subjects: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type subjectRequest struct {
	Name       string      `json:"name"`
	TeacherIds []uuid.UUID `json:"teacher_ids"`
}

func (s *AcademicsService) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var params subjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" {
		http.Error(w, "subject name is required", http.StatusUnprocessableEntity)
		return
	}

	subject := schema.Subject{Id: uuid.New(), Name: params.Name}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var count int64
		if result := txn.Model(&schema.Subject{}).Where("name = ?", params.Name).Count(&count); result.Error != nil {
			slog.Error("sql error checking for duplicate subject", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("a subject named %v already exists", params.Name), http.StatusConflict)
		}

		var teachers []schema.Teacher
		if result := txn.Find(&teachers, "id in ?", params.TeacherIds); result.Error != nil {
			slog.Error("sql error loading teachers for subject", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if len(teachers) != len(params.TeacherIds) {
			return CodedError(errors.New("one or more teachers do not exist"), http.StatusUnprocessableEntity)
		}
		subject.Teachers = teachers

		if result := txn.Create(&subject); result.Error != nil {
			slog.Error("sql error creating subject", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating subject: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, subject)
}

func (s *AcademicsService) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	subjectId, err := utils.URLParamUUID(r, "subject_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params subjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" {
		http.Error(w, "subject name is required", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var subject schema.Subject
		result := txn.First(&subject, "id = ?", subjectId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("subject not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading subject", "subject_id", subjectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		var count int64
		if result := txn.Model(&schema.Subject{}).Where("name = ? and id <> ?", params.Name, subjectId).Count(&count); result.Error != nil {
			slog.Error("sql error checking for duplicate subject", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("a subject named %v already exists", params.Name), http.StatusConflict)
		}

		var teachers []schema.Teacher
		if result := txn.Find(&teachers, "id in ?", params.TeacherIds); result.Error != nil {
			slog.Error("sql error loading teachers for subject", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if len(teachers) != len(params.TeacherIds) {
			return CodedError(errors.New("one or more teachers do not exist"), http.StatusUnprocessableEntity)
		}

		subject.Name = params.Name
		if result := txn.Omit("Teachers").Save(&subject); result.Error != nil {
			slog.Error("sql error updating subject", "subject_id", subjectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if err := txn.Model(&subject).Association("Teachers").Replace(teachers); err != nil {
			slog.Error("sql error replacing subject teachers", "subject_id", subjectId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating subject: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AcademicsService) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	subjectId, err := utils.URLParamUUID(r, "subject_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var lessons int64
		if result := txn.Model(&schema.Lesson{}).Where("subject_id = ?", subjectId).Count(&lessons); result.Error != nil {
			slog.Error("sql error counting subject lessons", "subject_id", subjectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if lessons > 0 {
			return CodedError(errors.New("subject still has lessons and cannot be removed"), http.StatusUnprocessableEntity)
		}

		subject := schema.Subject{Id: subjectId}
		if err := txn.Model(&subject).Association("Teachers").Clear(); err != nil {
			slog.Error("sql error clearing subject teachers", "subject_id", subjectId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result := txn.Delete(&subject)
		if result.Error != nil {
			slog.Error("sql error deleting subject", "subject_id", subjectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(errors.New("subject not found"), http.StatusNotFound)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting subject: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AcademicsService) ListGrades(w http.ResponseWriter, r *http.Request) {
	var grades []schema.Grade
	if result := s.db.Order("level asc").Find(&grades); result.Error != nil {
		slog.Error("sql error listing grades", "error", result.Error)
		http.Error(w, "error listing grades", http.StatusInternalServerError)
		return
	}
	utils.WriteJsonResponse(w, grades)
}

type gradeRequest struct {
	Level int `json:"level"`
}

func (s *AcademicsService) CreateGrade(w http.ResponseWriter, r *http.Request) {
	var params gradeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Level <= 0 {
		http.Error(w, "grade level must be positive", http.StatusUnprocessableEntity)
		return
	}

	grade := schema.Grade{Id: uuid.New(), Level: params.Level}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var count int64
		if result := txn.Model(&schema.Grade{}).Where("level = ?", params.Level).Count(&count); result.Error != nil {
			slog.Error("sql error checking for duplicate grade", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("grade level %v already exists", params.Level), http.StatusConflict)
		}

		if result := txn.Create(&grade); result.Error != nil {
			slog.Error("sql error creating grade", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating grade: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, grade)
}

func (s *AcademicsService) DeleteGrade(w http.ResponseWriter, r *http.Request) {
	gradeId, err := utils.URLParamUUID(r, "grade_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var dependents int64
		if result := txn.Model(&schema.Student{}).Where("grade_id = ?", gradeId).Count(&dependents); result.Error != nil {
			slog.Error("sql error counting grade students", "grade_id", gradeId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if dependents > 0 {
			return CodedError(errors.New("grade still has students and cannot be removed"), http.StatusUnprocessableEntity)
		}
		if result := txn.Model(&schema.Class{}).Where("grade_id = ?", gradeId).Count(&dependents); result.Error != nil {
			slog.Error("sql error counting grade classes", "grade_id", gradeId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if dependents > 0 {
			return CodedError(errors.New("grade still has classes and cannot be removed"), http.StatusUnprocessableEntity)
		}

		result := txn.Delete(&schema.Grade{Id: gradeId})
		if result.Error != nil {
			slog.Error("sql error deleting grade", "grade_id", gradeId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(errors.New("grade not found"), http.StatusNotFound)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting grade: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AcademicsService) ListClasses(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope := func(db *gorm.DB) *gorm.DB {
		if filters.TeacherId != nil {
			db = db.Where("classes.supervisor_id = ?", *filters.TeacherId)
		}
		if filters.Search != "" {
			db = db.Where("classes.name like ?", "%"+filters.Search+"%")
		}
		return db
	}

	res, err := listPage[schema.Class](s.db, &schema.Class{}, rowScope, parsePagination(r), "Grade", "Supervisor")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing classes: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type classRequest struct {
	Name         string     `json:"name"`
	Capacity     int        `json:"capacity"`
	GradeId      uuid.UUID  `json:"grade_id"`
	SupervisorId *uuid.UUID `json:"supervisor_id"`
}

func (s *AcademicsService) checkClassRelations(txn *gorm.DB, params classRequest) error {
	var count int64
	if result := txn.Model(&schema.Grade{}).Where("id = ?", params.GradeId).Count(&count); result.Error != nil {
		slog.Error("sql error checking class grade", "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if count == 0 {
		return CodedError(errors.New("grade does not exist"), http.StatusUnprocessableEntity)
	}

	if params.SupervisorId != nil {
		if result := txn.Model(&schema.Teacher{}).Where("id = ?", *params.SupervisorId).Count(&count); result.Error != nil {
			slog.Error("sql error checking class supervisor", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count == 0 {
			return CodedError(errors.New("supervisor does not exist"), http.StatusUnprocessableEntity)
		}
	}
	return nil
}

func (s *AcademicsService) CreateClass(w http.ResponseWriter, r *http.Request) {
	var params classRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" || params.Capacity <= 0 {
		http.Error(w, "class name and a positive capacity are required", http.StatusUnprocessableEntity)
		return
	}

	class := schema.Class{
		Id: uuid.New(), Name: params.Name, Capacity: params.Capacity,
		GradeId: params.GradeId, SupervisorId: params.SupervisorId,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var count int64
		if result := txn.Model(&schema.Class{}).Where("name = ?", params.Name).Count(&count); result.Error != nil {
			slog.Error("sql error checking for duplicate class", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("a class named %v already exists", params.Name), http.StatusConflict)
		}

		if err := s.checkClassRelations(txn, params); err != nil {
			return err
		}

		if result := txn.Create(&class); result.Error != nil {
			slog.Error("sql error creating class", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating class: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, class)
}

func (s *AcademicsService) UpdateClass(w http.ResponseWriter, r *http.Request) {
	classId, err := utils.URLParamUUID(r, "class_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params classRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" || params.Capacity <= 0 {
		http.Error(w, "class name and a positive capacity are required", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		class, err := schema.GetClass(classId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrClassNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		var count int64
		if result := txn.Model(&schema.Class{}).Where("name = ? and id <> ?", params.Name, classId).Count(&count); result.Error != nil {
			slog.Error("sql error checking for duplicate class", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("a class named %v already exists", params.Name), http.StatusConflict)
		}

		if err := s.checkClassRelations(txn, params); err != nil {
			return err
		}

		// Shrinking below current enrollment would strand students.
		var enrolled int64
		if result := txn.Model(&schema.Student{}).Where("class_id = ?", classId).Count(&enrolled); result.Error != nil {
			slog.Error("sql error counting class enrollment", "class_id", classId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if enrolled > int64(params.Capacity) {
			return CodedError(fmt.Errorf("class has %v students, capacity cannot be reduced to %v", enrolled, params.Capacity), http.StatusConflict)
		}

		class.Name = params.Name
		class.Capacity = params.Capacity
		class.GradeId = params.GradeId
		class.SupervisorId = params.SupervisorId

		if result := txn.Save(&class); result.Error != nil {
			slog.Error("sql error updating class", "class_id", classId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating class: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AcademicsService) DeleteClass(w http.ResponseWriter, r *http.Request) {
	classId, err := utils.URLParamUUID(r, "class_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var dependents int64
		if result := txn.Model(&schema.Student{}).Where("class_id = ?", classId).Count(&dependents); result.Error != nil {
			slog.Error("sql error counting class students", "class_id", classId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if dependents > 0 {
			return CodedError(errors.New("class still has students and cannot be removed"), http.StatusUnprocessableEntity)
		}
		if result := txn.Model(&schema.Lesson{}).Where("class_id = ?", classId).Count(&dependents); result.Error != nil {
			slog.Error("sql error counting class lessons", "class_id", classId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if dependents > 0 {
			return CodedError(errors.New("class still has lessons and cannot be removed"), http.StatusUnprocessableEntity)
		}

		result := txn.Delete(&schema.Class{Id: classId})
		if result.Error != nil {
			slog.Error("sql error deleting class", "class_id", classId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(errors.New("class not found"), http.StatusNotFound)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting class: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
