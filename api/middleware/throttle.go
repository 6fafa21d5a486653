package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/farmachelo/pharmacy-backend/api/responses"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

// WindowCounter counts hits on a key inside a fixed window.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
}

// Limit caps how often one subject may hit a throttled route per window.
type Limit struct {
	Dimension string
	Max       int
	readsBody bool
	subject   func(r *http.Request, body []byte) string
}

// PerIP limits by client address.
func PerIP(maxHits int) Limit {
	return Limit{Dimension: "ip", Max: maxHits, subject: func(r *http.Request, _ []byte) string {
		return clientIP(r)
	}}
}

// PerEmail limits by the hashed, lower-cased "email" field of a JSON body.
func PerEmail(maxHits int) Limit {
	return Limit{Dimension: "email", Max: maxHits, readsBody: true, subject: func(_ *http.Request, body []byte) string {
		var payload struct {
			Email string `json:"email"`
		}
		if json.Unmarshal(body, &payload) != nil {
			return ""
		}
		email := strings.ToLower(strings.TrimSpace(payload.Email))
		if email == "" {
			return ""
		}
		sum := sha256.Sum256([]byte(email))
		return hex.EncodeToString(sum[:])
	}}
}

// Throttle rejects requests with 429 once any limit is exceeded for the
// current window. A nil store or a zero window disables it.
func Throttle(surface string, window time.Duration, store WindowCounter, logg *logger.Logger, limits ...Limit) func(http.Handler) http.Handler {
	active := make([]Limit, 0, len(limits))
	readsBody := false
	for _, l := range limits {
		if l.Max > 0 {
			active = append(active, l)
			readsBody = readsBody || l.readsBody
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil || window <= 0 || len(active) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var body []byte
			if readsBody {
				var err error
				if body, err = io.ReadAll(r.Body); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, l := range active {
				subject := l.subject(r, body)
				if subject == "" {
					continue
				}
				hits, err := store.Hit(ctx, store.RateLimitKey(surface, l.Dimension, subject), window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if hits > int64(l.Max) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"surface":   surface,
							"dimension": l.Dimension,
							"hits":      hits,
							"limit":     l.Max,
						}), "request throttled")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
