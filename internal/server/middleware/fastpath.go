package middleware

import (
	"bytes"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/chigozzdevv/tossr/internal/crypto"
)

const maxFastPathBody = 64 << 10

// FastPath admits only requests signed with the shared fast-path secret by
// one of the allowed callers. Everything else gets 403.
func FastPath(auth crypto.RequestAuth, allowed []string, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFrom(r.Context())
			if !slices.Contains(allowed, caller) {
				writeError(w, http.StatusForbidden, "Unauthorized", "caller not allowed on fast path")
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxFastPathBody))
			if err != nil {
				writeError(w, http.StatusBadRequest, "BadRequest", "unreadable body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = auth.Verify(caller, r.Method, r.URL.Path, body,
				r.Header.Get(crypto.HeaderFastPathTimestamp),
				r.Header.Get(crypto.HeaderFastPathSignature),
				now())
			if err != nil {
				writeError(w, http.StatusForbidden, "Unauthorized", "invalid fast path signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
