package services

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/scope"
	"school_platform/backoffice/sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// syncResponseCode maps the synchronizer's failure taxonomy to http statuses.
// Directory outages surface as 502 so clients can distinguish them from
// faults in this system.
func syncResponseCode(err error) int {
	switch {
	case errors.Is(err, sync.ErrValidation), errors.Is(err, sync.ErrInvalidDate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sync.ErrWeakCredential):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sync.ErrDuplicateIdentity), errors.Is(err, sync.ErrDuplicateField):
		return http.StatusConflict
	case errors.Is(err, sync.ErrClassFull):
		return http.StatusConflict
	case errors.Is(err, sync.ErrReferentialIntegrity), errors.Is(err, sync.ErrReferentialConstraint):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sync.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, sync.ErrMissingIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, sync.ErrIdentityProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var defaultPageSize = 10
var maxPageSize = 100

// SetPageLimits applies the operator-configured pagination bounds. Called
// once at startup before the router is mounted.
func SetPageLimits(defaultSize, maxSize int) {
	if defaultSize > 0 {
		defaultPageSize = defaultSize
	}
	if maxSize >= defaultPageSize {
		maxPageSize = maxSize
	}
}

type pagination struct {
	Page    int
	PerPage int
}

func (p pagination) offset() int {
	return (p.Page - 1) * p.PerPage
}

func parsePagination(r *http.Request) pagination {
	p := pagination{Page: 1, PerPage: defaultPageSize}
	if value := r.URL.Query().Get("page"); value != "" {
		if page, err := strconv.Atoi(value); err == nil && page > 0 {
			p.Page = page
		}
	}
	if value := r.URL.Query().Get("per_page"); value != "" {
		if perPage, err := strconv.Atoi(value); err == nil && perPage > 0 {
			p.PerPage = min(perPage, maxPageSize)
		}
	}
	return p
}

func queryParamUUID(r *http.Request, key string) (*uuid.UUID, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, CodedError(err, http.StatusBadRequest)
	}
	return &id, nil
}

func parseFilters(r *http.Request) (scope.Filters, error) {
	var filters scope.Filters
	var err error

	if filters.StudentId, err = queryParamUUID(r, "student_id"); err != nil {
		return filters, err
	}
	if filters.ClassId, err = queryParamUUID(r, "class_id"); err != nil {
		return filters, err
	}
	if filters.TeacherId, err = queryParamUUID(r, "teacher_id"); err != nil {
		return filters, err
	}
	if filters.LessonId, err = queryParamUUID(r, "lesson_id"); err != nil {
		return filters, err
	}
	filters.Search = r.URL.Query().Get("search")

	return filters, nil
}

type listResponse[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

// listPage runs the count and page queries in one transaction so the total
// and the items reflect the same snapshot.
func listPage[T any](db *gorm.DB, model interface{}, rowScope scope.Scope, page pagination, preloads ...string) (listResponse[T], error) {
	res := listResponse[T]{Items: []T{}, Page: page.Page, PerPage: page.PerPage}

	err := db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Model(model).Scopes(rowScope).Count(&res.Total); result.Error != nil {
			slog.Error("sql error counting rows for list", "error", result.Error)
			return CodedError(errors.New("error listing records"), http.StatusInternalServerError)
		}

		query := txn.Model(model).Scopes(rowScope).Offset(page.offset()).Limit(page.PerPage)
		for _, preload := range preloads {
			query = query.Preload(preload)
		}
		if result := query.Find(&res.Items); result.Error != nil {
			slog.Error("sql error listing rows", "error", result.Error)
			return CodedError(errors.New("error listing records"), http.StatusInternalServerError)
		}
		return nil
	})

	return res, err
}

func callerOrFail(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	caller, err := auth.CallerFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return auth.Caller{}, false
	}
	return caller, true
}
