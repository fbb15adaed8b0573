package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/memoryd/internal/identity"
)

// sessionTTL bounds how long an idle session stays bound to an identity.
const sessionTTL = 30 * time.Minute

const sessionHeader = "Mcp-Session-Id"

type ctxKey int

const userIDKey ctxKey = iota

// WithUserID returns a context carrying the verified user identity.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFrom extracts the verified user identity, if any.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// Authenticator gates the hosted MCP endpoint: it verifies the bearer
// token, binds the resolved identity to the request context, and pins MCP
// sessions to the identity that created them.
type Authenticator struct {
	resolver *identity.Resolver
	baseURL  string

	mu       sync.Mutex
	sessions map[string]sessionEntry
}

type sessionEntry struct {
	userID   string
	lastSeen time.Time
}

// NewAuthenticator builds an Authenticator. baseURL is the public origin
// used in the WWW-Authenticate challenge.
func NewAuthenticator(resolver *identity.Resolver, baseURL string) *Authenticator {
	return &Authenticator{
		resolver: resolver,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		sessions: make(map[string]sessionEntry),
	}
}

func (a *Authenticator) challenge() string {
	return fmt.Sprintf(
		`Bearer error="invalid_token", error_description="A valid access token is required", resource_metadata=%q`,
		a.baseURL+"/.well-known/oauth-protected-resource/mcp",
	)
}

// Middleware wraps the MCP handler. Token failures here are the one place
// the system answers with a protocol-level error instead of a text
// payload: the check gates all tool access.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()

		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			w.Header().Set("WWW-Authenticate", a.challenge())
			httpError(w, http.StatusUnauthorized, "authentication_error", "missing or invalid Authorization header")
			return
		}

		claims, err := a.resolver.Verify(r.Context(), auth[len(prefix):])
		if err != nil {
			slog.Warn("token verification failed", "request_id", reqID, "error", err)
			w.Header().Set("WWW-Authenticate", a.challenge())
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid token")
			return
		}
		uid := claims.UserID()

		if sid := r.Header.Get(sessionHeader); sid != "" {
			if owner, ok := a.sessionOwner(sid); ok && owner != uid {
				slog.Warn("session identity mismatch", "request_id", reqID, "session_id", sid)
				httpError(w, http.StatusForbidden, "authorization_error", "session belongs to a different user")
				return
			}
			a.bindSession(sid, uid)
		}

		slog.Debug("request authenticated", "request_id", reqID, "user", truncateID(uid))

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))

		// The transport assigns the session id on initialize; bind it to
		// the identity that opened it.
		if sid := w.Header().Get(sessionHeader); sid != "" {
			a.bindSession(sid, uid)
		}
	})
}

func (a *Authenticator) sessionOwner(sessionID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()
	entry, ok := a.sessions[sessionID]
	return entry.userID, ok
}

func (a *Authenticator) bindSession(sessionID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()
	a.sessions[sessionID] = sessionEntry{userID: userID, lastSeen: time.Now()}
}

func (a *Authenticator) pruneLocked() {
	cutoff := time.Now().Add(-sessionTTL)
	for id, entry := range a.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(a.sessions, id)
		}
	}
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
