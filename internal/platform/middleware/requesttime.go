package middleware

import (
	"net/http"
	"time"

	"crosslink/pkg/requestcontext"
)

// RequestTime captures the current time at the start of the request so every
// operation in one request shares the same "now". Domain timestamps, history
// entries, and audit events all read it from the context.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
