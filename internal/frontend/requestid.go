package frontend

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDHeader is the header this gateway both reads and stamps, the
// way the original gateway's RequestIdFilter did ahead of all routing.
const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// withRequestID generates a UUIDv4 when the inbound request lacks
// X-Request-ID, stamps it on the response, and makes it available to
// handlers via requestIDFromContext.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
