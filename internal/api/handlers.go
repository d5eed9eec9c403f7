package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/punchamoorthee/creditops/internal/auth"
	"github.com/punchamoorthee/creditops/internal/models"
	"github.com/punchamoorthee/creditops/internal/service"
	"github.com/punchamoorthee/creditops/internal/store"
	"github.com/punchamoorthee/creditops/internal/token"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credits_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// MutationProcessor executes one validated credit mutation.
type MutationProcessor interface {
	ProcessMutation(ctx context.Context, actorID int64, mut models.Mutation) (*models.MutationResponse, error)
}

// AccountStore is the slice of the store the handlers need.
type AccountStore interface {
	CreateAccount(ctx context.Context, username, passwordHash string, role models.Role) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	GetEntries(ctx context.Context, accountID int64) ([]models.RequestRecord, error)
}

// TokenIssuer mints and verifies both token classes.
type TokenIssuer interface {
	IssueSessionToken(acct *models.Account) (string, time.Time, error)
	VerifySessionToken(tok string) (*token.SessionClaims, error)
	IssueScanToken(username string, ttl time.Duration) (string, time.Time, error)
}

type Handler struct {
	store   AccountStore
	service MutationProcessor
	tokens  TokenIssuer
	logger  zerolog.Logger
	skew    time.Duration
}

func NewHandler(s AccountStore, svc MutationProcessor, tokens TokenIssuer, logger zerolog.Logger, skew time.Duration) *Handler {
	return &Handler{store: s, service: svc, tokens: tokens, logger: logger, skew: skew}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.countAndRespondError(w, "POST", "/auth/register", http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Username == "" {
		h.countAndRespondError(w, "POST", "/auth/register", http.StatusBadRequest, "Username required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.countAndRespondError(w, "POST", "/auth/register", http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	// Registration always creates an ordinary holder. Kiosk, merchant and
	// admin accounts are provisioned out of band (see cmd/seeder).
	acct, err := h.store.CreateAccount(r.Context(), req.Username, hash, models.RoleHolder)
	if err != nil {
		if err == store.ErrUsernameTaken {
			h.countAndRespondError(w, "POST", "/auth/register", http.StatusConflict, "Username already taken")
			return
		}
		h.logger.Error().Err(err).Msg("account creation failed")
		h.countAndRespondError(w, "POST", "/auth/register", http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("POST", "/auth/register", "201").Inc()
	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       acct.ID,
		"username": acct.Username,
		"role":     acct.Role,
	})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.countAndRespondError(w, "POST", "/auth/login", http.StatusBadRequest, "Malformed JSON body")
		return
	}

	acct, err := h.store.GetAccountByUsername(r.Context(), req.Username)
	if err != nil || !auth.CheckPassword(acct.PasswordHash, req.Password) {
		// Same response for unknown user and wrong password.
		h.countAndRespondError(w, "POST", "/auth/login", http.StatusUnauthorized, "Invalid credentials")
		return
	}

	tok, exp, err := h.tokens.IssueSessionToken(acct)
	if err != nil {
		h.logger.Error().Err(err).Msg("session token issuance failed")
		h.countAndRespondError(w, "POST", "/auth/login", http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("POST", "/auth/login", "200").Inc()
	respondWithJSON(w, http.StatusOK, models.TokenResponse{Token: tok, ExpiresAt: exp})
}

// IssueScanTokenHandler mints a scan capability token for the caller. The
// subject is always the authenticated account; no other target is accepted.
func (h *Handler) IssueScanTokenHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.countAndRespondError(w, "POST", "/scan-tokens", http.StatusUnauthorized, "Authentication required")
		return
	}

	tok, exp, err := h.tokens.IssueScanToken(claims.Username, 0)
	if err != nil {
		h.logger.Error().Err(err).Msg("scan token issuance failed")
		h.countAndRespondError(w, "POST", "/scan-tokens", http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("POST", "/scan-tokens", "200").Inc()
	respondWithJSON(w, http.StatusOK, models.TokenResponse{Token: tok, ExpiresAt: exp})
}

// MutationHandler returns the handler for one mutation kind. ADD and DEDUCT
// share the full contract: Idempotency-Key, bounded X-Request-Timestamp, and
// a body naming the amount and exactly one target specifier.
func (h *Handler) MutationHandler(kind models.MutationKind, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
		defer timer.ObserveDuration()

		idempotencyKey := r.Header.Get("Idempotency-Key")
		if idempotencyKey == "" {
			h.countAndRespondError(w, "POST", endpoint, http.StatusBadRequest, "Missing Idempotency-Key header")
			return
		}

		// Staleness window bounds the replay horizon for captured requests,
		// independent of idempotency-key protection. Checked before any
		// transaction is opened.
		if err := h.checkTimestamp(r.Header.Get("X-Request-Timestamp")); err != nil {
			h.countAndRespondError(w, "POST", endpoint, http.StatusBadRequest, err.Error())
			return
		}

		var req models.MutationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.countAndRespondError(w, "POST", endpoint, http.StatusBadRequest, "Malformed JSON body")
			return
		}

		mut, err := req.Validate(kind, idempotencyKey)
		if err != nil {
			h.countAndRespondError(w, "POST", endpoint, http.StatusBadRequest, err.Error())
			return
		}

		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			h.countAndRespondError(w, "POST", endpoint, http.StatusUnauthorized, "Authentication required")
			return
		}

		resp, err := h.service.ProcessMutation(r.Context(), claims.AccountID, mut)
		if err != nil {
			switch err {
			case service.ErrDuplicateRequest:
				h.countAndRespondError(w, "POST", endpoint, http.StatusConflict, "Duplicate request")
			case service.ErrTargetNotFound:
				h.countAndRespondError(w, "POST", endpoint, http.StatusNotFound, "Target account not found")
			case service.ErrInvalidTarget:
				h.countAndRespondError(w, "POST", endpoint, http.StatusBadRequest, "Invalid target token")
			case service.ErrInsufficientCredits:
				h.countAndRespondError(w, "POST", endpoint, http.StatusBadRequest, "Insufficient credits")
			default:
				h.logger.Error().Err(err).Str("endpoint", endpoint).Msg("mutation failed")
				h.countAndRespondError(w, "POST", endpoint, http.StatusInternalServerError, "Internal Server Error")
			}
			return
		}

		httpRequestsTotal.WithLabelValues("POST", endpoint, "200").Inc()
		respondWithJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) GetMeHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.countAndRespondError(w, "GET", "/accounts/me", http.StatusUnauthorized, "Authentication required")
		return
	}

	acct, err := h.store.GetAccountByID(r.Context(), claims.AccountID)
	if err != nil {
		if err == store.ErrAccountNotFound {
			h.countAndRespondError(w, "GET", "/accounts/me", http.StatusNotFound, "Account not found")
			return
		}
		h.countAndRespondError(w, "GET", "/accounts/me", http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/accounts/me", "200").Inc()
	respondWithJSON(w, http.StatusOK, acct)
}

func (h *Handler) GetMyEntriesHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.countAndRespondError(w, "GET", "/accounts/me/entries", http.StatusUnauthorized, "Authentication required")
		return
	}

	entries, err := h.store.GetEntries(r.Context(), claims.AccountID)
	if err != nil {
		if err == store.ErrAccountNotFound {
			h.countAndRespondError(w, "GET", "/accounts/me/entries", http.StatusNotFound, "Account not found")
			return
		}
		h.countAndRespondError(w, "GET", "/accounts/me/entries", http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if entries == nil {
		entries = []models.RequestRecord{}
	}

	httpRequestsTotal.WithLabelValues("GET", "/accounts/me/entries", "200").Inc()
	respondWithJSON(w, http.StatusOK, entries)
}

// checkTimestamp enforces the ±skew staleness window on the required
// X-Request-Timestamp header.
func (h *Handler) checkTimestamp(raw string) error {
	if raw == "" {
		return errTimestampMissing
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return errTimestampMalformed
	}
	drift := time.Since(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > h.skew {
		return errTimestampStale
	}
	return nil
}

var (
	errTimestampMissing   = errors.New("Missing X-Request-Timestamp header")
	errTimestampMalformed = errors.New("X-Request-Timestamp must be RFC3339")
	errTimestampStale     = errors.New("Request timestamp outside allowed window")
)

// Helpers

func (h *Handler) countAndRespondError(w http.ResponseWriter, method, endpoint string, code int, message string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithError(w, code, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
