package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the admin secret on maintenance requests.
const AdminKeyHeader = "X-Admin-Key"

// AdminVerifier checks presented admin keys against the one configured
// secret. The secret may be given as a bcrypt hash ("$2a$...") so the
// plaintext never sits in the deployment config.
type AdminVerifier struct {
	secret string
	hashed bool
}

// NewAdminVerifier returns nil when secret is empty: admin routes are then
// disabled rather than open.
func NewAdminVerifier(secret string) *AdminVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &AdminVerifier{secret: secret, hashed: strings.HasPrefix(secret, "$2")}
}

// Verify is safe to call on a nil verifier; it then always fails.
func (v *AdminVerifier) Verify(presented string) bool {
	if v == nil || presented == "" {
		return false
	}
	if v.hashed {
		return bcrypt.CompareHashAndPassword([]byte(v.secret), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(v.secret)) == 1
}

// IsAdmin checks the admin header of a request.
func (v *AdminVerifier) IsAdmin(r *http.Request) bool {
	return v.Verify(r.Header.Get(AdminKeyHeader))
}

// RequireAdmin rejects requests without a valid admin key: 401 when the
// header is missing, 403 when it is wrong, 404 when no secret is configured
// (the routes behave as if they did not exist).
func RequireAdmin(v *AdminVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch {
			case v == nil:
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":"not_found","message":"admin routes are disabled"}` + "\n"))
			case r.Header.Get(AdminKeyHeader) == "":
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"admin key required"}` + "\n"))
			case !v.IsAdmin(r):
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"forbidden","message":"invalid admin key"}` + "\n"))
			default:
				w.Header().Del("Content-Type")
				next.ServeHTTP(w, r)
			}
		})
	}
}
