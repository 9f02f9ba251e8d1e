package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	VoterHeader = "X-Voter-ID"
	VoterCookie = "voter"

	voterCookieMaxAge = 365 * 24 * time.Hour
)

type voterKey struct{}

// Voter identifies the anonymous client casting likes. The id comes from
// the X-Voter-ID header or the voter cookie and must be a UUID; clients
// without a valid one are issued a fresh id in a cookie.
func Voter(secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := presentedVoter(r)
			if !ok {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     VoterCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(voterCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithVoterID(r.Context(), id)))
		})
	}
}

func presentedVoter(r *http.Request) (string, bool) {
	candidates := []string{r.Header.Get(VoterHeader)}
	if c, err := r.Cookie(VoterCookie); err == nil {
		candidates = append(candidates, c.Value)
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if u, err := uuid.Parse(c); err == nil {
			return u.String(), true
		}
	}
	return "", false
}

// WithVoterID stores a voter id on the context.
func WithVoterID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, voterKey{}, id)
}

// VoterID returns the voter id set by Voter, or "".
func VoterID(ctx context.Context) string {
	id, _ := ctx.Value(voterKey{}).(string)
	return id
}
