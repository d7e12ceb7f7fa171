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

// NoticeboardService serves announcements and calendar events. Rows with no
// class are school-wide and visible to everyone; class-bound rows only to
// members of that class.
type NoticeboardService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *NoticeboardService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/announcements", s.ListAnnouncements)
	r.Get("/events", s.ListEvents)

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly())

		r.Post("/announcements", s.CreateAnnouncement)
		r.Post("/announcements/{announcement_id}", s.UpdateAnnouncement)
		r.Delete("/announcements/{announcement_id}", s.DeleteAnnouncement)

		r.Post("/events", s.CreateEvent)
		r.Post("/events/{event_id}", s.UpdateEvent)
		r.Delete("/events/{event_id}", s.DeleteEvent)
	})

	return r
}

func checkOptionalClass(txn *gorm.DB, classId *uuid.UUID) error {
	if classId == nil {
		return nil
	}
	var count int64
	if result := txn.Model(&schema.Class{}).Where("id = ?", *classId).Count(&count); result.Error != nil {
		slog.Error("sql error checking class", "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if count == 0 {
		return CodedError(errors.New("class does not exist"), http.StatusUnprocessableEntity)
	}
	return nil
}

func (s *NoticeboardService) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Announcements(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	res, err := listPage[schema.Announcement](s.db, &schema.Announcement{}, rowScope, parsePagination(r), "Class")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing announcements: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type announcementRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	ClassId     *uuid.UUID `json:"class_id"`
}

func (s *NoticeboardService) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var params announcementRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" || params.Description == "" || params.Date.IsZero() {
		http.Error(w, "announcement title, description, and date are required", http.StatusUnprocessableEntity)
		return
	}

	announcement := schema.Announcement{
		Id: uuid.New(), Title: params.Title, Description: params.Description,
		Date: params.Date, ClassId: params.ClassId,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkOptionalClass(txn, params.ClassId); err != nil {
			return err
		}
		if result := txn.Create(&announcement); result.Error != nil {
			slog.Error("sql error creating announcement", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating announcement: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, announcement)
}

func (s *NoticeboardService) UpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	announcementId, err := utils.URLParamUUID(r, "announcement_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params announcementRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" || params.Description == "" || params.Date.IsZero() {
		http.Error(w, "announcement title, description, and date are required", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var announcement schema.Announcement
		result := txn.First(&announcement, "id = ?", announcementId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("announcement not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading announcement", "announcement_id", announcementId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := checkOptionalClass(txn, params.ClassId); err != nil {
			return err
		}

		announcement.Title = params.Title
		announcement.Description = params.Description
		announcement.Date = params.Date
		announcement.ClassId = params.ClassId

		if result := txn.Save(&announcement); result.Error != nil {
			slog.Error("sql error updating announcement", "announcement_id", announcementId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating announcement: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *NoticeboardService) DeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	announcementId, err := utils.URLParamUUID(r, "announcement_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.db.Delete(&schema.Announcement{Id: announcementId})
	if result.Error != nil {
		slog.Error("sql error deleting announcement", "announcement_id", announcementId, "error", result.Error)
		http.Error(w, "error deleting announcement", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "announcement not found", http.StatusNotFound)
		return
	}

	utils.WriteSuccess(w)
}

func (s *NoticeboardService) ListEvents(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	rowScope, scopeErr := scope.Events(caller, filters)
	if scopeErr != nil {
		http.Error(w, scopeErr.Error(), http.StatusForbidden)
		return
	}

	res, err := listPage[schema.Event](s.db, &schema.Event{}, rowScope, parsePagination(r), "Class")
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing events: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, res)
}

type eventRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	ClassId     *uuid.UUID `json:"class_id"`
}

func (s *NoticeboardService) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var params eventRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" || !params.EndTime.After(params.StartTime) {
		http.Error(w, "event title and a valid time range are required", http.StatusUnprocessableEntity)
		return
	}

	event := schema.Event{
		Id: uuid.New(), Title: params.Title, Description: params.Description,
		StartTime: params.StartTime, EndTime: params.EndTime, ClassId: params.ClassId,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkOptionalClass(txn, params.ClassId); err != nil {
			return err
		}
		if result := txn.Create(&event); result.Error != nil {
			slog.Error("sql error creating event", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating event: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, event)
}

func (s *NoticeboardService) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventId, err := utils.URLParamUUID(r, "event_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params eventRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" || !params.EndTime.After(params.StartTime) {
		http.Error(w, "event title and a valid time range are required", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var event schema.Event
		result := txn.First(&event, "id = ?", eventId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(errors.New("event not found"), http.StatusNotFound)
			}
			slog.Error("sql error loading event", "event_id", eventId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := checkOptionalClass(txn, params.ClassId); err != nil {
			return err
		}

		event.Title = params.Title
		event.Description = params.Description
		event.StartTime = params.StartTime
		event.EndTime = params.EndTime
		event.ClassId = params.ClassId

		if result := txn.Save(&event); result.Error != nil {
			slog.Error("sql error updating event", "event_id", eventId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating event: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *NoticeboardService) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventId, err := utils.URLParamUUID(r, "event_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.db.Delete(&schema.Event{Id: eventId})
	if result.Error != nil {
		slog.Error("sql error deleting event", "event_id", eventId, "error", result.Error)
		http.Error(w, "error deleting event", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}

	utils.WriteSuccess(w)
}
