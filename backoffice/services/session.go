package services

import (
	"errors"
	"fmt"
	"net/http"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/metrics"
	"school_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionService handles login and caller introspection.
type SessionService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *SessionService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/login", s.Login)
	r.Post("/login-with-token", s.LoginWithToken)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/info", s.Info)
	})

	return r
}

type loginResponse struct {
	CallerId    uuid.UUID `json:"caller_id"`
	Role        string    `json:"role"`
	AccessToken string    `json:"access_token"`
}

func (s *SessionService) Login(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithPassword(username, password)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		responseCode := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidCredentials) {
			responseCode = http.StatusUnauthorized
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	metrics.Logins.WithLabelValues("success").Inc()
	utils.WriteJsonResponse(w, loginResponse{CallerId: login.CallerId, Role: login.Role, AccessToken: login.AccessToken})
}

type loginWithTokenRequest struct {
	AccessToken string `json:"access_token"`
}

func (s *SessionService) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var params loginWithTokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.LoginWithToken(params.AccessToken)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		http.Error(w, fmt.Sprintf("login failed: %v", err), http.StatusUnauthorized)
		return
	}

	metrics.Logins.WithLabelValues("success").Inc()
	utils.WriteJsonResponse(w, loginResponse{CallerId: login.CallerId, Role: login.Role, AccessToken: login.AccessToken})
}

type callerInfoResponse struct {
	CallerId uuid.UUID `json:"caller_id"`
	Role     string    `json:"role"`
}

func (s *SessionService) Info(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrFail(w, r)
	if !ok {
		return
	}
	utils.WriteJsonResponse(w, callerInfoResponse{CallerId: caller.Id, Role: caller.Role})
}
