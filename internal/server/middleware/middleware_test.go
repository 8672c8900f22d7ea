package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chigozzdevv/tossr/internal/crypto"
)

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(CallerFrom(r.Context())))
	})
}

func TestCallerFromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCaller, "  alice ")
	rec := httptest.NewRecorder()
	Caller(echoCaller()).ServeHTTP(rec, req)
	assert.Equal(t, "alice", rec.Body.String())

	rec = httptest.NewRecorder()
	Caller(echoCaller()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Body.String())
}

func TestAuth(t *testing.T) {
	h := Auth("k3y", "/api/health")(echoCaller())

	cases := []struct {
		name   string
		path   string
		header [2]string
		want   int
	}{
		{"public path", "/api/health", [2]string{}, http.StatusOK},
		{"missing token", "/api/markets", [2]string{}, http.StatusUnauthorized},
		{"bearer", "/api/markets", [2]string{"Authorization", "Bearer k3y"}, http.StatusOK},
		{"api key header", "/api/markets", [2]string{"X-API-Key", "k3y"}, http.StatusOK},
		{"wrong key", "/api/markets", [2]string{"X-API-Key", "nope"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header[0] != "" {
				req.Header.Set(tc.header[0], tc.header[1])
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestFastPath(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	auth := crypto.RequestAuth{Secret: []byte("s"), MaxSkew: time.Minute}
	h := Caller(FastPath(auth, []string{"operator"}, func() time.Time { return now })(echoCaller()))
	body := `{"outcome":{}}`

	sendAs := func(who, signedFor string, signedAt time.Time, sentBody string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/fast/x", strings.NewReader(sentBody))
		req.Header.Set(HeaderCaller, who)
		for k, v := range auth.Headers(signedFor, http.MethodPost, "/api/fast/x", []byte(body), signedAt) {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	send := func(who string, signedAt time.Time, sentBody string) int {
		return sendAs(who, who, signedAt, sentBody)
	}

	assert.Equal(t, http.StatusOK, send("operator", now, body))
	assert.Equal(t, http.StatusForbidden, send("someone", now, body))
	assert.Equal(t, http.StatusForbidden, send("operator", now.Add(-2*time.Minute), body))
	assert.Equal(t, http.StatusForbidden, send("operator", now, `{"outcome":{"kind":"numeric"}}`))
	assert.Equal(t, http.StatusForbidden, sendAs("operator", "relay", now, body), "signature is bound to the caller")
}

func TestFastPathPreservesBody(t *testing.T) {
	auth := crypto.RequestAuth{Secret: []byte("s")}
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := new(strings.Builder)
		_, err := io.Copy(b, r.Body)
		require.NoError(t, err)
		seen = b.String()
	})
	h := Caller(FastPath(auth, []string{"op"}, nil)(inner))

	req := httptest.NewRequest(http.MethodPost, "/p", strings.NewReader("payload"))
	req.Header.Set(HeaderCaller, "op")
	for k, v := range auth.Headers("op", http.MethodPost, "/p", []byte("payload"), time.Now()) {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "payload", seen)
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := CORS([]string{"https://app.example"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "https://APP.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://APP.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderFastPathSignature)

	req = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
