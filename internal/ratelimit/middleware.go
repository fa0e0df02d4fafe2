package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"adgate/internal/authz"
	"adgate/internal/clock"
	"adgate/internal/models"
)

// Request and response headers used by the middleware.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderSlowdown  = "X-RateLimit-Slowdown"

	queryAPIKey = "api_key"
)

// Checker is the decision contract the middleware consumes. *Engine satisfies
// it; tests substitute fakes.
type Checker interface {
	Check(ctx context.Context, identity string) (Decision, error)
}

// MiddlewareOption configures optional middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	failClosed bool
	clk        clock.Clock
}

// FailClosed makes the middleware reject with 503 when the counter store is
// unreachable. The default is fail-open: metering exists to protect the
// marketplace API, not to take it down with the limiter's own backend.
func FailClosed() MiddlewareOption {
	return func(c *middlewareConfig) { c.failClosed = true }
}

// WithMiddlewareClock substitutes the clock used for slowdown sleeps.
func WithMiddlewareClock(clk clock.Clock) MiddlewareOption {
	return func(c *middlewareConfig) { c.clk = clk }
}

// Middleware returns HTTP middleware that meters requests per API key. The
// key comes from the X-API-Key header, falling back to the api_key query
// parameter. The classifier decides who is metered: admin keys bypass
// entirely, unrecognized or absent keys pass through unmetered (metering is
// opt-in per registered user key), and user keys are checked against the
// engine.
func Middleware(checker Checker, classifier authz.Classifier, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{clk: clock.NewSystem()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := extractIdentity(r)

			switch classifier.Classify(r.Context(), identity) {
			case authz.RoleUser:
				// Metered below.
			default:
				// Admin and unknown callers never touch the engine and
				// consume no quota.
				next.ServeHTTP(w, r)
				return
			}

			decision, err := checker.Check(r.Context(), identity)
			if err != nil {
				if cfg.failClosed {
					writeUnavailable(w)
					slog.Error("Rate limit check failed, rejecting",
						"error", err)
					return
				}
				slog.Warn("Rate limit check failed, serving anyway",
					"error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				writeRateLimited(w, decision)
				slog.Warn("Rate limit exceeded",
					"retry_after", decision.RetryAfter)
				return
			}

			if decision.Slowdown > 0 {
				w.Header().Set(HeaderSlowdown, strconv.FormatFloat(decision.Slowdown.Seconds(), 'g', -1, 64))
				// Cooperative sleep. A disconnected caller skips the
				// response, but the quota was already charged.
				select {
				case <-cfg.clk.After(decision.Slowdown):
				case <-r.Context().Done():
					return
				}
			}

			w.Header().Set(HeaderRemaining, strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// extractIdentity pulls the caller's API key from the request. Empty string
// means no identity was presented.
func extractIdentity(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	return r.URL.Query().Get(queryAPIKey)
}

func writeRateLimited(w http.ResponseWriter, decision Decision) {
	retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set(HeaderRemaining, "0")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(models.RateLimitedResponse{
		Detail:     "Rate limit exceeded",
		RetryAfter: retryAfter,
	})
}

func writeUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(models.NewErrorResponse(
		"Rate limiter backend unavailable", models.ErrorCodeServiceUnavailable))
}
