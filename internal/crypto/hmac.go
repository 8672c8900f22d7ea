package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by requests from the low-latency execution context.
const (
	HeaderFastPathTimestamp = "X-Tossr-Timestamp"
	HeaderFastPathSignature = "X-Tossr-Signature"
)

var (
	errStaleRequest = errors.New("crypto/hmac: request timestamp outside allowed skew")
	errBadSignature = errors.New("crypto/hmac: signature mismatch")
)

// DefaultMaxSkew applies when RequestAuth.MaxSkew is not positive.
const DefaultMaxSkew = 30 * time.Second

// RequestAuth signs and verifies HMAC-SHA256 over the newline-joined
// timestamp, caller, method, path and body. Only the body may contain a
// newline and it comes last.
type RequestAuth struct {
	Secret  []byte
	MaxSkew time.Duration
}

// Headers returns the signing headers for a request sent at ts.
func (a RequestAuth) Headers(caller, method, path string, body []byte, ts time.Time) map[string]string {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	return map[string]string{
		HeaderFastPathTimestamp: stamp,
		HeaderFastPathSignature: a.sign(stamp, caller, method, path, body),
	}
}

// Verify checks a request's timestamp and signature headers against now.
func (a RequestAuth) Verify(caller, method, path string, body []byte, stamp, signature string, now time.Time) error {
	unix, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto/hmac: invalid timestamp %q", stamp)
	}
	skew := now.Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > a.maxSkew() {
		return errStaleRequest
	}
	want := a.sign(stamp, caller, method, path, body)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return errBadSignature
	}
	return nil
}

func (a RequestAuth) maxSkew() time.Duration {
	if a.MaxSkew <= 0 {
		return DefaultMaxSkew
	}
	return a.MaxSkew
}

func (a RequestAuth) sign(stamp, caller, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, a.Secret)
	for _, field := range []string{stamp, caller, method, path} {
		mac.Write([]byte(field))
		mac.Write([]byte{'\n'})
	}
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (a RequestAuth) String() string {
	return fmt.Sprintf("RequestAuth{secret=****, max_skew=%s}", a.maxSkew())
}
