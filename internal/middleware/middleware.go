package middleware

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/antonminaichev/agroconnect/internal/respond"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	"github.com/golang-jwt/jwt/v4"
)

var ErrUnauthorized = errors.New("unauthorized")

// gzipResponseWriter picks compression on the first header write, when the
// handler's Content-Type is known. Event streams are written through as is.
type gzipResponseWriter struct {
	http.ResponseWriter
	gz      *gzip.Writer
	decided bool
}

func (w *gzipResponseWriter) decide(code int) {
	if w.decided {
		return
	}
	w.decided = true
	if code == http.StatusNoContent || code == http.StatusNotModified ||
		strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Del("Content-Length")
	w.gz = gzip.NewWriter(w.ResponseWriter)
}

func (w *gzipResponseWriter) WriteHeader(code int) {
	w.decide(code)
	w.ResponseWriter.WriteHeader(code)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	w.decide(http.StatusOK)
	if w.gz == nil {
		return w.ResponseWriter.Write(b)
	}
	return w.gz.Write(b)
}

func (w *gzipResponseWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *gzipResponseWriter) Close() error {
	if w.gz == nil {
		return nil
	}
	return w.gz.Close()
}

func (w *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// GzipHandler decompresses gzip request bodies and compresses responses for
// clients that accept it.
func GzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") == "gzip" {
			gzr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(rw, "Failed to create gzip reader", http.StatusBadRequest)
				return
			}
			defer gzr.Close()
			r.Body = io.NopCloser(gzr)
		}

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(rw, r)
			return
		}
		rw.Header().Add("Vary", "Accept-Encoding")
		gzrw := &gzipResponseWriter{ResponseWriter: rw}
		defer gzrw.Close()
		next.ServeHTTP(gzrw, r)
	})
}

type UserFinder interface {
	FindByLogin(ctx context.Context, login string) (*user.User, error)
}

// Authenticator verifies bearer tokens issued by the user service and resolves
// them to a stored user.
type Authenticator struct {
	secret []byte
	users  UserFinder
}

func NewAuthenticator(secret []byte, users UserFinder) *Authenticator {
	return &Authenticator{secret: secret, users: users}
}

func (a *Authenticator) Authenticate(ctx context.Context, tokenStr string) (*user.User, error) {
	if tokenStr == "" {
		return nil, ErrUnauthorized
	}
	claims := &user.Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	u, err := a.users.FindByLogin(ctx, claims.Subject)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// TokenFromRequest returns the bearer token from the Authorization header, or
// the token query parameter for clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (a *Authenticator) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			respond.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		u, err := a.Authenticate(r.Context(), strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), u.ID, u.Role)))
	})
}

// RequireRole answers 403 unless the authenticated user has one of roles.
// Must run after JWTMiddleware.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, RoleFromContext(r.Context())) {
				respond.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ctxKeyUserID struct{}
type ctxKeyRole struct{}

func UserIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxKeyUserID{}).(int64)
	return id
}

func RoleFromContext(ctx context.Context) user.Role {
	role, _ := ctx.Value(ctxKeyRole{}).(user.Role)
	return role
}

func ContextWithUser(ctx context.Context, userID int64, role user.Role) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUserID{}, userID)
	return context.WithValue(ctx, ctxKeyRole{}, role)
}
