package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserContextKey contextKey = "user"

	// AnonCookieName is the cookie used to track anonymous users per-device
	AnonCookieName = "__reelmix_anon"

	// AnonIDPrefix is prepended to anonymous user IDs
	AnonIDPrefix = "anon:"

	// AnonCookieMaxAge is the max-age of the anonymous cookie (30 days)
	AnonCookieMaxAge = 30 * 24 * 60 * 60
)

// User represents the identity runs are stamped with
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// IsAnonymous returns true if the user is an anonymous (not logged in) user
func (u *User) IsAnonymous() bool {
	if u == nil {
		return true
	}
	return strings.HasPrefix(u.ID, AnonIDPrefix)
}

// ClerkAuthMiddleware handles Clerk authentication
type ClerkAuthMiddleware struct {
	secure bool // true in production (HTTPS)
}

// NewClerkAuthMiddleware creates a new Clerk auth middleware instance
func NewClerkAuthMiddleware(secretKey string, secure bool) *ClerkAuthMiddleware {
	clerk.SetKey(secretKey)
	return &ClerkAuthMiddleware{secure: secure}
}

// getOrCreateAnonID reads the anonymous cookie or generates a new one.
// Returns the anon user ID (e.g. "anon:550e8400-...") and sets the cookie if new.
func (m *ClerkAuthMiddleware) getOrCreateAnonID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(AnonCookieName); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return AnonIDPrefix + cookie.Value
		}
	}

	anonUUID := uuid.New().String()

	sameSite := http.SameSiteLaxMode
	if m.secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    anonUUID,
		Path:     "/",
		MaxAge:   AnonCookieMaxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: sameSite,
	})

	return AnonIDPrefix + anonUUID
}

// Handler returns the HTTP middleware handler for Clerk authentication.
// Requests without a bearer token get a per-device anonymous identity.
func (m *ClerkAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			u := &User{ID: m.getOrCreateAnonID(w, r)}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header")
			return
		}

		claims, err := jwt.Verify(r.Context(), &jwt.VerifyParams{Token: token})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		u := &User{ID: claims.Subject}
		if clerkUser, err := user.Get(r.Context(), claims.Subject); err == nil {
			u.FirstName = safeString(clerkUser.FirstName)
			u.LastName = safeString(clerkUser.LastName)
			for _, addr := range clerkUser.EmailAddresses {
				if clerkUser.PrimaryEmailAddressID != nil && addr.ID == *clerkUser.PrimaryEmailAddressID {
					u.Email = addr.EmailAddress
					break
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// WithUser stores u in ctx
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

// GetUser retrieves the user from context
func GetUser(ctx context.Context) *User {
	user, ok := ctx.Value(UserContextKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// UserID returns the ID of the request user, or "" without one
func UserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.ID
	}
	return ""
}

// safeString safely dereferences a string pointer
func safeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"code":    code,
		"message": message,
	})
}
