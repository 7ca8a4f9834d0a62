package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const SessionHeader = "X-Session-ID"

const maxSessionIDLen = 128

type ctxKey int

const sessionKey ctxKey = iota

// SessionMiddleware resolves the cart session from the X-Session-ID header,
// minting a new id when the header is missing. The id is echoed back so the
// client can keep using it.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if len(sessionID) > maxSessionIDLen {
			respondError(w, http.StatusBadRequest, "invalid_session", "session id too long")
			return
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		w.Header().Set(SessionHeader, sessionID)
		ctx := context.WithValue(r.Context(), sessionKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey).(string); ok {
		return id
	}
	return ""
}
