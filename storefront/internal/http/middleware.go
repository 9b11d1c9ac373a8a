package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
)

const (
	SessionHeader   = "X-Session-ID"
	RequestIDHeader = "X-Request-ID"
	maxSessionIDLen = 128
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionIDKey
	userIDKey
	adminKey
)

// AdminClaim is the custom token claim that grants access to the admin routes.
const AdminClaim = "admin"

// TokenVerifier is satisfied by the Firebase auth client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionMiddleware binds the request to a browsing session. A session id is minted
// when the client did not send one; clients keep it from the response header.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
		if len(sessionID) > maxSessionIDLen {
			respondError(w, http.StatusBadRequest, "invalid_session", "session id too long")
			return
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		w.Header().Set(SessionHeader, sessionID)
		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves a bearer ID token to a user id. Requests without a token pass
// through anonymously; a token that fails verification is rejected.
func AuthMiddleware(verifier TokenVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
				return
			}

			verified, err := verifier.VerifyIDToken(r.Context(), strings.TrimSpace(token))
			if err != nil {
				log.WarnContext(r.Context(), "id token rejected", "request_id", getRequestID(r.Context()), "error", err)
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid id token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, verified.UID)
			if admin, _ := verified.Claims[AdminClaim].(bool); admin {
				ctx = context.WithValue(ctx, adminKey, true)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if getUserID(r.Context()) == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if getUserID(r.Context()) == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		if admin, _ := r.Context().Value(adminKey).(bool); !admin {
			respondError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func getSessionID(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionIDKey).(string)
	return sessionID
}

func getRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}
