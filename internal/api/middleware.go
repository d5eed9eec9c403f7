package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/punchamoorthee/creditops/internal/models"
	"github.com/punchamoorthee/creditops/internal/token"
)

type contextKey string

const claimsKey contextKey = "session_claims"

// ClaimsFromContext returns the authenticated session claims, if any.
func ClaimsFromContext(ctx context.Context) (*token.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*token.SessionClaims)
	return claims, ok
}

// Authenticate verifies the bearer session token and stores its claims in the
// request context. Verification is stateless; the account store is not hit.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondWithError(w, http.StatusUnauthorized, "Invalid Authorization header format")
			return
		}

		claims, err := h.tokens.VerifySessionToken(parts[1])
		if err != nil {
			h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("session token rejected")
			if err == token.ErrExpiredToken {
				respondWithError(w, http.StatusUnauthorized, "Session token expired")
				return
			}
			respondWithError(w, http.StatusUnauthorized, "Invalid session token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// RequireMutation guards an endpoint with the role capability check for one
// mutation kind. Evaluated once per endpoint contract.
func (h *Handler) RequireMutation(kind models.MutationKind, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !claims.Role.Authorizes(kind) {
			h.logger.Warn().
				Str("role", string(claims.Role)).
				Str("kind", string(kind)).
				Int64("account_id", claims.AccountID).
				Msg("mutation forbidden for role")
			respondWithError(w, http.StatusForbidden, "Role not authorized for this operation")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimiter applies a per-caller token bucket, keyed by account when
// authenticated and by remote address otherwise.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			key = claims.Username
		}
		if !rl.getLimiter(key).Allow() {
			respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs every request with method, path, status and latency.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
