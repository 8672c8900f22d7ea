package middleware

import (
	"context"
	"net/http"
	"strings"
)

// HeaderCaller carries the authenticated identity the host has already
// established for the request (wallet address, service account).
const HeaderCaller = "X-Caller-ID"

type callerKey struct{}

// Caller copies the X-Caller-ID header into the request context.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(HeaderCaller)); id != "" {
			r = r.WithContext(WithCaller(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// CallerFrom returns the caller identity, or "" for anonymous requests.
func CallerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}
