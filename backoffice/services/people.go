package services

import (
	"errors"
	"fmt"
	"net/http"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/schema"
	"school_platform/backoffice/scope"
	"school_platform/backoffice/sync"
	"school_platform/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// PeopleService exposes the teacher, student, and parent accounts. All
// mutations go through the synchronizer so the directory and the store never
// drift; plain reads go straight to the store.
type PeopleService struct {
	db       *gorm.DB
	sync     *sync.Synchronizer
	userAuth auth.IdentityProvider
}

func (s *PeopleService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/teachers", s.ListTeachers)
	r.Get("/teachers/{teacher_id}", s.GetTeacher)
	r.Get("/students", s.ListStudents)
	r.Get("/students/{student_id}", s.GetStudent)
	r.Get("/parents", s.ListParents)

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly())

		r.Post("/teachers", s.CreateTeacher)
		r.Post("/teachers/{teacher_id}", s.UpdateTeacher)
		r.Delete("/teachers/{teacher_id}", s.DeleteTeacher)

		r.Post("/students", s.CreateStudent)
		r.Post("/students/{student_id}", s.UpdateStudent)
		r.Delete("/students/{student_id}", s.DeleteStudent)

		r.Post("/parents", s.CreateParent)
		r.Post("/parents/{parent_id}", s.UpdateParent)
		r.Delete("/parents/{parent_id}", s.DeleteParent)
	})

	return r
}

func (s *PeopleService) ListTeachers(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}
	if caller.Role != schema.RoleAdmin && caller.Role != schema.RoleTeacher {
		http.Error(w, "only staff may list teachers", http.StatusForbidden)
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope := func(db *gorm.DB) *gorm.DB {
		if filters.ClassId != nil {
			db = db.Where("teachers.id in (select distinct teacher_id from lessons where class_id = ?)", *filters.ClassId)
		}
		if filters.Search != "" {
			db = db.Where("teachers.name like ? or teachers.surname like ?", "%"+filters.Search+"%", "%"+filters.Search+"%")
		}
		return db
	}

	res, err := listPage[schema.Teacher](s.db, &schema.Teacher{}, rowScope, parsePagination(r), "Subjects")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing teachers: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

func (s *PeopleService) GetTeacher(w http.ResponseWriter, r *http.Request) {
	teacherId, err := utils.URLParamUUID(r, "teacher_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	teacher, err := schema.GetTeacher(teacherId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrTeacherNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, teacher)
}

func (s *PeopleService) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var fields sync.TeacherFields
	if !utils.ParseRequestBody(w, r, &fields) {
		return
	}

	teacher, err := s.sync.CreateTeacher(r.Context(), fields)
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating teacher: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, teacher)
}

func (s *PeopleService) UpdateTeacher(w http.ResponseWriter, r *http.Request) {
	teacherId, err := utils.URLParamUUID(r, "teacher_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var fields sync.TeacherFields
	if !utils.ParseRequestBody(w, r, &fields) {
		return
	}

	if err := s.sync.UpdateTeacher(r.Context(), teacherId, fields); err != nil {
		http.Error(w, fmt.Sprintf("error updating teacher: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *PeopleService) DeleteTeacher(w http.ResponseWriter, r *http.Request) {
	teacherId, err := utils.URLParamUUID(r, "teacher_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sync.DeleteTeacher(r.Context(), teacherId); err != nil {
		http.Error(w, fmt.Sprintf("error deleting teacher: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *PeopleService) ListStudents(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Students(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	res, err := listPage[schema.Student](s.db, &schema.Student{}, rowScope, parsePagination(r), "Grade", "Class")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing students: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

func (s *PeopleService) GetStudent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	studentId, err := utils.URLParamUUID(r, "student_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	student, err := schema.GetStudent(studentId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrStudentNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch caller.Role {
	case schema.RoleAdmin, schema.RoleTeacher:
	case schema.RoleStudent:
		if student.Id != caller.Id {
			http.Error(w, "students may only view their own record", http.StatusForbidden)
			return
		}
	case schema.RoleParent:
		if student.ParentId != caller.Id {
			http.Error(w, "parents may only view their own children", http.StatusForbidden)
			return
		}
	default:
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	utils.WriteJsonResponse(w, student)
}

func (s *PeopleService) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var fields sync.StudentFields
	if !utils.ParseRequestBody(w, r, &fields) {
		return
	}

	student, err := s.sync.CreateStudent(r.Context(), fields)
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating student: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, student)
}

func (s *PeopleService) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	studentId, err := utils.URLParamUUID(r, "student_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var fields sync.StudentFields
	if !utils.ParseRequestBody(w, r, &fields) {
		return
	}

	if err := s.sync.UpdateStudent(r.Context(), studentId, fields); err != nil {
		http.Error(w, fmt.Sprintf("error updating student: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *PeopleService) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	studentId, err := utils.URLParamUUID(r, "student_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sync.DeleteStudent(r.Context(), studentId); err != nil {
		http.Error(w, fmt.Sprintf("error deleting student: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *PeopleService) ListParents(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}
	if caller.Role != schema.RoleAdmin && caller.Role != schema.RoleTeacher {
		http.Error(w, "only staff may list parents", http.StatusForbidden)
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope := func(db *gorm.DB) *gorm.DB {
		if filters.Search != "" {
			db = db.Where("parents.name like ? or parents.surname like ?", "%"+filters.Search+"%", "%"+filters.Search+"%")
		}
		return db
	}

	res, err := listPage[schema.Parent](s.db, &schema.Parent{}, rowScope, parsePagination(r), "Students")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing parents: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

func (s *PeopleService) CreateParent(w http.ResponseWriter, r *http.Request) {
	var fields sync.ParentFields
	if !utils.ParseRequestBody(w, r, &fields) {
		return
	}

	parent, err := s.sync.CreateParent(r.Context(), fields)
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating parent: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, parent)
}

func (s *PeopleService) UpdateParent(w http.ResponseWriter, r *http.Request) {
	parentId, err := utils.URLParamUUID(r, "parent_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var fields sync.ParentFields
	if !utils.ParseRequestBody(w, r, &fields) {
		return
	}

	if err := s.sync.UpdateParent(r.Context(), parentId, fields); err != nil {
		http.Error(w, fmt.Sprintf("error updating parent: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *PeopleService) DeleteParent(w http.ResponseWriter, r *http.Request) {
	parentId, err := utils.URLParamUUID(r, "parent_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sync.DeleteParent(r.Context(), parentId); err != nil {
		http.Error(w, fmt.Sprintf("error deleting parent: %v", err), syncResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
