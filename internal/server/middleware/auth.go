package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/crypto"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"

	maxBodyBytes = 1 << 20
)

type callerKey struct{}

// Caller returns the wallet that signed the request, if any.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// WithCaller attaches a verified caller to ctx.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Auth recovers the caller of signed requests. The signature covers
// X-Timestamp, method, path and body; timestamps older or newer than
// maxSkew are rejected. Unsigned requests pass through anonymously and
// handlers decide whether they need a caller.
func Auth(maxSkew time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(HeaderSignature)
			if sig == "" {
				next.ServeHTTP(w, r)
				return
			}

			secs, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
			if err != nil {
				writeUnauthorized(w, "missing or invalid timestamp")
				return
			}
			ts := time.Unix(secs, 0)
			if skew := now().Sub(ts); skew > maxSkew || skew < -maxSkew {
				writeUnauthorized(w, "stale timestamp")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeUnauthorized(w, "unreadable body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller, err := crypto.Recover(crypto.RequestMessage(ts, r.Method, r.URL.Path, body), sig)
			if err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// RequireCaller rejects unsigned requests and, when allowed is not empty,
// callers outside it.
func RequireCaller(allowed ...common.Address) func(http.Handler) http.Handler {
	set := make(map[common.Address]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := Caller(r.Context())
			if !ok {
				writeUnauthorized(w, "signature required")
				return
			}
			if len(set) > 0 && !set[caller] {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"caller not allowed"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
