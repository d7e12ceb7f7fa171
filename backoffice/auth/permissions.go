package auth

import (
	"fmt"
	"net/http"
	"school_platform/backoffice/schema"
	"slices"
)

// RequireRole rejects callers whose role is not in the allowed set.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			caller, err := CallerFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !slices.Contains(roles, caller.Role) {
				http.Error(w, fmt.Sprintf("caller %v with role %v cannot access this endpoint", caller.Id, caller.Role), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func AdminOnly() func(http.Handler) http.Handler {
	return RequireRole(schema.RoleAdmin)
}

// StaffOnly admits administrators and teachers, the two roles allowed to
// mutate lesson-adjacent records.
func StaffOnly() func(http.Handler) http.Handler {
	return RequireRole(schema.RoleAdmin, schema.RoleTeacher)
}
