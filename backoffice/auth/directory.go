package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"school_platform/backoffice/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrIdentifierTaken    = errors.New("username is already in use")
	ErrPasswordRejected   = errors.New("password does not meet the directory policy")
	ErrIdentityNotFound   = errors.New("identity not found in directory")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrGeneratingJwt      = errors.New("error generating jwt")
)

// Identity is the directory-side record of a person. The directory owns
// uniqueness of the username and the credential policy; this system only
// reads back the generated id.
type Identity struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// IdentityUpdate carries the mutable identity fields. An empty Password
// leaves the stored credential unchanged.
type IdentityUpdate struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Directory is the external identity store consumed by sync.Synchronizer.
type Directory interface {
	CreateUser(ctx context.Context, identity Identity) (uuid.UUID, error)

	UpdateUser(ctx context.Context, id uuid.UUID, update IdentityUpdate) error

	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type LoginResult struct {
	CallerId    uuid.UUID
	Role        string
	AccessToken string
}

// IdentityProvider extends the directory with the transport side: request
// authentication and login.
type IdentityProvider interface {
	Directory

	AuthMiddleware() chi.Middlewares

	LoginWithPassword(username, password string) (LoginResult, error)

	LoginWithToken(accessToken string) (LoginResult, error)
}

// Caller is the authenticated identity and role of a request, resolved once
// by the auth middleware. Core operations take it as an explicit argument and
// never read it from ambient state.
type Caller struct {
	Id   uuid.UUID
	Role string
}

type requestContextKey string

const callerRequestContextKey requestContextKey = "caller"

func CallerFromContext(r *http.Request) (Caller, error) {
	callerUntyped := r.Context().Value(callerRequestContextKey)
	if callerUntyped == nil {
		return Caller{}, fmt.Errorf("caller field not found in request context")
	}
	caller, ok := callerUntyped.(Caller)
	if !ok {
		return Caller{}, fmt.Errorf("invalid value for caller field")
	}
	return caller, nil
}

func withCaller(r *http.Request, caller Caller) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), callerRequestContextKey, caller))
}

func addInitialAdmin(db *gorm.DB, adminId uuid.UUID, username, email string, hashedPwd []byte) error {
	err := db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Admin
		result := txn.Limit(1).Find(&existing, "id = ? or username = ? or email = ?", adminId, username, email)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return nil
		}

		admin := schema.Admin{Id: adminId, Username: username, Email: email, Password: hashedPwd}
		if result := txn.Create(&admin); result.Error != nil {
			slog.Error("sql error creating initial admin", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		if hashedPwd != nil {
			credential := schema.Credential{Id: adminId, Username: username, Password: hashedPwd, Role: schema.RoleAdmin}
			if result := txn.Create(&credential); result.Error != nil {
				slog.Error("sql error creating initial admin credential", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin: %w", err)
	}

	return nil
}
