package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"school_platform/backoffice/schema"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// minPasswordLen mirrors the length(8) policy configured on the Keycloak
// realm so both directories reject the same credentials.
const minPasswordLen = 8

// BasicProvider is a self-hosted directory for deployments without a
// Keycloak server, and for tests. Identities live in their own credentials
// table, kept separate from the person rows so the dual-write path is
// exercised the same way as with an external directory.
type BasicProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   AuditLogger
}

type BasicProviderArgs struct {
	Secret        []byte
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// Zero means the default session lifetime.
	SessionTtl time.Duration
}

func NewBasicProvider(db *gorm.DB, auditLog AuditLogger, args BasicProviderArgs) (IdentityProvider, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.AdminPassword), 10)
	if err != nil {
		return nil, fmt.Errorf("error encrypting admin password: %w", err)
	}

	err = addInitialAdmin(db, uuid.New(), args.AdminUsername, args.AdminEmail, hashedPwd)
	if err != nil {
		return nil, err
	}

	return &BasicProvider{
		jwtManager: NewJwtManager(args.Secret).WithSessionTtl(args.SessionTtl),
		db:         db,
		auditLog:   auditLog,
	}, nil
}

func (auth *BasicProvider) addCallerToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			callerId, err := CallerIdFromClaims(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			role, err := schema.ResolveRole(callerId, auth.db)
			if err != nil {
				if errors.Is(err, schema.ErrCallerNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, fmt.Sprintf("unable to resolve caller %v: %v", callerId, err), http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, withCaller(r, Caller{Id: callerId, Role: role}))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.addCallerToContext(), auth.auditLog.Middleware}
}

func (auth *BasicProvider) LoginWithPassword(username, password string) (LoginResult, error) {
	var credential schema.Credential
	result := auth.db.First(&credential, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// Unknown usernames look the same as bad passwords to the caller.
			return LoginResult{}, ErrInvalidCredentials
		}
		slog.Error("sql error looking up credential by username", "error", result.Error)
		return LoginResult{}, schema.ErrDbAccessFailed
	}

	err := bcrypt.CompareHashAndPassword(credential.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := auth.jwtManager.CreateSessionJwt(credential.Id)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{CallerId: credential.Id, Role: credential.Role, AccessToken: token}, nil
}

func (auth *BasicProvider) LoginWithToken(accessToken string) (LoginResult, error) {
	return LoginResult{}, fmt.Errorf("login with token is not supported for this identity provider")
}

func (auth *BasicProvider) CreateUser(ctx context.Context, identity Identity) (uuid.UUID, error) {
	if len(identity.Password) < minPasswordLen {
		return uuid.Nil, ErrPasswordRejected
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(identity.Password), 10)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error encrypting password: %w", err)
	}

	credential := schema.Credential{Id: uuid.New(), Username: identity.Username, Password: hashedPwd, Role: identity.Role}

	err = auth.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var existing schema.Credential
		result := txn.Limit(1).Find(&existing, "username = ?", identity.Username)
		if result.Error != nil {
			slog.Error("sql error checking for existing username", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return ErrIdentifierTaken
		}

		result = txn.Create(&credential)
		if result.Error != nil {
			slog.Error("sql error creating new credential entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, ErrIdentifierTaken) {
			return uuid.Nil, ErrIdentifierTaken
		}
		return uuid.Nil, fmt.Errorf("error creating new identity: %w", err)
	}

	return credential.Id, nil
}

func (auth *BasicProvider) UpdateUser(ctx context.Context, id uuid.UUID, update IdentityUpdate) error {
	if update.Password != "" && len(update.Password) < minPasswordLen {
		return ErrPasswordRejected
	}

	return auth.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var credential schema.Credential
		result := txn.First(&credential, "id = ?", id)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrIdentityNotFound
			}
			slog.Error("sql error looking up credential", "id", id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		var taken schema.Credential
		result = txn.Limit(1).Find(&taken, "username = ? and id <> ?", update.Username, id)
		if result.Error != nil {
			slog.Error("sql error checking for existing username", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return ErrIdentifierTaken
		}

		credential.Username = update.Username
		if update.Password != "" {
			hashedPwd, err := bcrypt.GenerateFromPassword([]byte(update.Password), 10)
			if err != nil {
				return fmt.Errorf("error encrypting password: %w", err)
			}
			credential.Password = hashedPwd
		}

		result = txn.Save(&credential)
		if result.Error != nil {
			slog.Error("sql error updating credential entry", "id", id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})
}

func (auth *BasicProvider) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result := auth.db.WithContext(ctx).Delete(&schema.Credential{Id: id})
	if result.Error != nil {
		slog.Error("sql error deleting credential entry", "id", id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}
