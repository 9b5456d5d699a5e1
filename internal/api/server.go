// Package api provides the HTTP server for Lynks.
// It exposes the settlement engine as a JSON API, a live event stream and
// the scheduler hook used by external cron.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lynks-network/lynks/internal/app/settlement"
	"github.com/lynks-network/lynks/internal/domain"
	"github.com/lynks-network/lynks/internal/infra/notify"
	"github.com/lynks-network/lynks/internal/infra/observability"
)

// Identity headers set by the trusted gateway in front of the API.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Server is the Lynks HTTP API server.
type Server struct {
	engine         *settlement.Engine
	hub            *notify.Hub
	tracer         *observability.Tracer
	metricsEnabled bool
	cronSecret     string
	requestTimeout time.Duration
}

// NewServer creates a new API server.
func NewServer(engine *settlement.Engine, hub *notify.Hub) *Server {
	return &Server{engine: engine, hub: hub, requestTimeout: 30 * time.Second}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetCronSecret enables POST /api/cron/auto-approve for callers presenting
// the secret as a bearer token.
func (s *Server) SetCronSecret(secret string) { s.cronSecret = secret }

// SetTracer exposes recent spans on /api/admin/traces.
func (s *Server) SetTracer(t *observability.Tracer) { s.tracer = t }

// SetRequestTimeout bounds non-streaming requests.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(traceMiddleware)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.With(middleware.Timeout(s.requestTimeout)).Post("/api/cron/auto-approve", s.handleCronSweep)

	r.Route("/api", func(r chi.Router) {
		r.Use(actorMiddleware)

		// Event stream runs without the request timeout.
		if s.hub != nil {
			r.Get("/events", s.handleEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Post("/me/register", s.handleRegister)
			r.Get("/me", s.handleMe)
			r.Put("/me/handle", s.handleSetHandle)
			r.Get("/me/pending-count", s.handlePendingCount)
			r.Get("/me/ledger", s.handleLedger)

			r.Get("/feed", s.handleFeed)
			r.Post("/posts", s.handleCreatePost)
			r.Delete("/posts/{id}", s.handleDeletePost)

			r.Post("/proofs", s.handleUploadProof)
			r.Post("/submissions", s.handleSubmit)
			r.Get("/submissions/sent", s.handleSent)
			r.Get("/submissions/received", s.handleReceived)
			r.Get("/submissions/{id}", s.handleGetSubmission)
			r.Get("/submissions/{id}/proof", s.handleGetProof)
			r.Post("/submissions/{id}/review", s.handleReview)
			r.Post("/submissions/{id}/dispute", s.handleDispute)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/disputes", s.handleDisputeQueue)
				r.Post("/disputes/{id}/resolve", s.handleResolveDispute)
				r.Get("/treasury", s.handleTreasury)
				r.Get("/traces", s.handleTraces)
			})
		})
	})

	return r
}

// ─── Identity ───────────────────────────────────────────────────────────────

type actorKey struct{}

// actorMiddleware turns the gateway identity headers into a typed
// ActorContext. A missing id or unknown role is rejected with 401.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, err := domain.ParseRole(r.Header.Get(HeaderActorRole))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		caller := domain.ActorContext{ID: strings.TrimSpace(r.Header.Get(HeaderActorID)), Role: role}
		if err := caller.Validate(); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) domain.ActorContext {
	caller, _ := r.Context().Value(actorKey{}).(domain.ActorContext)
	return caller
}

// traceMiddleware carries the chi request id into engine spans.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Cron ───────────────────────────────────────────────────────────────────

// handleCronSweep runs one auto-approval sweep for an external scheduler.
// POST /api/cron/auto-approve
func (s *Server) handleCronSweep(w http.ResponseWriter, r *http.Request) {
	if s.cronSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "cron trigger is disabled")
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	res, err := s.engine.SweepDue(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrSelfSubmission):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrActorExists),
		errors.Is(err, domain.ErrHandleTaken),
		errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrProofInUse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrProofTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrHandleRequired),
		errors.Is(err, domain.ErrInvalidHandle),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrReasonRequired),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrProofMissing):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError reports err with its mapped status. Internal errors are
// not echoed to the client.
func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observability.OperationErrors.WithLabelValues("http").Inc()
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderActorID+", "+HeaderActorRole)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
