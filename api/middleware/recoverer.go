package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/courier-dispatch/api/responses"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

// Recoverer turns a handler panic into a 500 error envelope. Aborted
// handlers keep panicking so net/http can drop the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"panic":  fmt.Sprint(rec),
						"method": r.Method,
						"route":  r.URL.Path,
					})
				}
				responses.WriteError(ctx, logg, w,
					pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("panic: %v", rec), "handler panicked"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
