// Package ops serves the operational HTTP surface: liveness, prometheus
// metrics and a small token-protected admin API.
package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/afriswift/settlement/internal/common"
	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/afriswift/settlement/internal/server/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AccountAdmin changes operator-controlled account state.
type AccountAdmin interface {
	SetKYCState(ctx context.Context, accountNumber string, state models.KYCState) error
	SetStatus(ctx context.Context, accountNumber string, status models.AccountStatus) error
}

// Reconciler runs one reconciliation pass on demand.
type Reconciler interface {
	Reconcile(ctx context.Context) settlement.ReconcileStats
}

type Server struct {
	address    string
	db         Pinger
	metrics    http.Handler
	accounts   AccountAdmin
	reconciler Reconciler
	adminToken string
	logger     logging.Logger
}

func NewServer(address string, db Pinger, metrics http.Handler, accounts AccountAdmin, reconciler Reconciler, adminToken string, logger logging.Logger) *Server {
	return &Server{
		address:    address,
		db:         db,
		metrics:    metrics,
		accounts:   accounts,
		reconciler: reconciler,
		adminToken: adminToken,
		logger:     logger.With("module", "ops_server"),
	}
}

// Router builds the chi routes. Admin routes are mounted only when an admin
// token is configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	if s.adminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/accounts/{number}/kyc", s.setKYC)
			r.Post("/accounts/{number}/status", s.setStatus)
			r.Post("/reconcile", s.reconcile)
		})
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down with a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping ops server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "ops server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting ops server", "address", listen.Addr().String())
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn(ctx, "health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type kycRequest struct {
	State string `json:"state"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type reconcileResponse struct {
	Scanned  int `json:"scanned"`
	Advanced int `json:"advanced"`
	Aborted  int `json:"aborted"`
	Errors   int `json:"errors"`
}

func (s *Server) setKYC(w http.ResponseWriter, r *http.Request) {
	var req kycRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	number := chi.URLParam(r, "number")
	err := s.accounts.SetKYCState(r.Context(), number, models.KYCState(req.State))
	s.finish(w, r, err, "kyc updated", "account_number", number, "state", req.State)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	number := chi.URLParam(r, "number")
	err := s.accounts.SetStatus(r.Context(), number, models.AccountStatus(req.Status))
	s.finish(w, r, err, "status updated", "account_number", number, "status", req.Status)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	stats := s.reconciler.Reconcile(r.Context())
	s.logger.Info(r.Context(), "manual reconcile pass", "scanned", stats.Scanned, "advanced", stats.Advanced)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reconcileResponse{
		Scanned:  stats.Scanned,
		Advanced: stats.Advanced,
		Aborted:  stats.Aborted,
		Errors:   stats.Errors,
	})
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request, err error, msg string, args ...any) {
	switch {
	case err == nil:
		s.logger.Info(r.Context(), msg, args...)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, common.ErrorValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, common.ErrorNotFound):
		http.Error(w, "account not found", http.StatusNotFound)
	default:
		s.logger.Error(r.Context(), "admin request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
