package services

import (
	"fmt"
	"log/slog"
	"net/http"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/schema"
	"school_platform/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// LookupService serves the reference bundles forms need to render their
// dropdowns: the set of related records a given entity form can point at.
// The entity names form a closed set; anything else is a 404.
type LookupService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *LookupService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)
	r.Use(auth.StaffOnly())

	r.Get("/{entity}", s.Lookup)

	return r
}

type classOption struct {
	schema.Class
	Enrolled int64 `json:"enrolled"`
}

func (s *LookupService) classOptions(txn *gorm.DB) ([]classOption, error) {
	var classes []schema.Class
	if result := txn.Order("name asc").Find(&classes); result.Error != nil {
		return nil, result.Error
	}

	options := make([]classOption, 0, len(classes))
	for _, class := range classes {
		var enrolled int64
		if result := txn.Model(&schema.Student{}).Where("class_id = ?", class.Id).Count(&enrolled); result.Error != nil {
			return nil, result.Error
		}
		options = append(options, classOption{Class: class, Enrolled: enrolled})
	}
	return options, nil
}

// lessonOptions limits the lesson dropdown for teachers to their own
// teaching load; admins see every lesson.
func (s *LookupService) lessonOptions(txn *gorm.DB, caller auth.Caller) ([]schema.Lesson, error) {
	query := txn.Order("name asc")
	if caller.Role == schema.RoleTeacher {
		query = query.Where("teacher_id = ?", caller.Id)
	}

	var lessons []schema.Lesson
	if result := query.Find(&lessons); result.Error != nil {
		return nil, result.Error
	}
	return lessons, nil
}

func (s *LookupService) Lookup(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	entity, err := utils.URLParam(r, "entity")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bundle := map[string]interface{}{}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		listInto := func(key string, dest interface{}, order string) error {
			if result := txn.Order(order).Find(dest); result.Error != nil {
				return result.Error
			}
			bundle[key] = dest
			return nil
		}

		switch entity {
		case "teacher":
			return listInto("subjects", &[]schema.Subject{}, "name asc")

		case "student":
			if err := listInto("grades", &[]schema.Grade{}, "level asc"); err != nil {
				return err
			}
			if err := listInto("parents", &[]schema.Parent{}, "surname asc"); err != nil {
				return err
			}
			classes, err := s.classOptions(txn)
			if err != nil {
				return err
			}
			bundle["classes"] = classes
			return nil

		case "parent":
			return nil

		case "subject":
			return listInto("teachers", &[]schema.Teacher{}, "surname asc")

		case "class":
			if err := listInto("grades", &[]schema.Grade{}, "level asc"); err != nil {
				return err
			}
			return listInto("teachers", &[]schema.Teacher{}, "surname asc")

		case "lesson":
			if err := listInto("subjects", &[]schema.Subject{}, "name asc"); err != nil {
				return err
			}
			if err := listInto("teachers", &[]schema.Teacher{}, "surname asc"); err != nil {
				return err
			}
			classes, err := s.classOptions(txn)
			if err != nil {
				return err
			}
			bundle["classes"] = classes
			return nil

		case "exam", "assignment", "attendance":
			lessons, err := s.lessonOptions(txn, caller)
			if err != nil {
				return err
			}
			bundle["lessons"] = lessons
			return nil

		case "result":
			lessons, err := s.lessonOptions(txn, caller)
			if err != nil {
				return err
			}
			bundle["lessons"] = lessons
			if err := listInto("exams", &[]schema.Exam{}, "start_time desc"); err != nil {
				return err
			}
			return listInto("assignments", &[]schema.Assignment{}, "due_date desc")

		case "announcement", "event":
			classes, err := s.classOptions(txn)
			if err != nil {
				return err
			}
			bundle["classes"] = classes
			return nil

		default:
			return CodedError(fmt.Errorf("unknown lookup entity %v", entity), http.StatusNotFound)
		}
	})
	if err != nil {
		code := GetResponseCode(err)
		if code == http.StatusInternalServerError {
			slog.Error("sql error building lookup bundle", "entity", entity, "error", err)
			err = schema.ErrDbAccessFailed
		}
		http.Error(w, fmt.Sprintf("error building lookup for %v: %v", entity, err), code)
		return
	}

	utils.WriteJsonResponse(w, bundle)
}
