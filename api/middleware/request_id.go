package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 128
)

// RequestID keeps a sane inbound X-Request-Id, otherwise mints a uuid. The id
// is echoed back and carried on both the context and the logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := inboundRequestID(r)
			w.Header().Set(requestIDHeader, id)
			ctx := logg.WithRequestID(withRequestID(r.Context(), id), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > maxRequestIDLen || strings.ContainsAny(id, "\r\n") {
		return uuid.NewString()
	}
	return id
}
