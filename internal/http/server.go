package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"plata/internal/core"
	"plata/internal/services"
)

// Store is the storage surface the API needs.
type Store interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	ListTransactionsByMonth(ctx context.Context, year, month int) ([]core.Transaction, error)
	ListTransactionsByYear(ctx context.Context, year int) ([]core.Transaction, error)
	CreateRecurring(ctx context.Context, rt core.RecurringTransaction) error
	GetRecurring(ctx context.Context, id uuid.UUID) (core.RecurringTransaction, error)
	ListRecurring(ctx context.Context, onlyActive bool) ([]core.RecurringTransaction, error)
	SetRecurringActive(ctx context.Context, id uuid.UUID, active bool) error
	CreateCategory(ctx context.Context, c core.Category) error
	ListCategories(ctx context.Context, t core.TransactionType) ([]core.Category, error)
}

// Expander materializes recurring templates into a month view.
type Expander interface {
	MaterializeMonth(ctx context.Context, year, month int) ([]services.Materialization, []uuid.UUID, error)
	UpdateAmount(ctx context.Context, templateID uuid.UUID, ars, usd decimal.Decimal) (int64, error)
}

// Aggregator folds transaction snapshots into summaries and breakdowns.
type Aggregator interface {
	MonthlySummary(ctx context.Context, txs []core.Transaction, year, month int) core.MonthlySummary
	YearlySummary(ctx context.Context, txs []core.Transaction, year int) core.YearlySummary
	CategoryBreakdown(txs []core.Transaction, categories []core.Category, typ core.TransactionType) []core.CategoryTotal
	MethodBreakdown(txs []core.Transaction, typ core.TransactionType) []core.MethodTotal
}

// Reconciler repairs legacy dual-amount rows.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (services.ReconcileReport, error)
}

type Server struct {
	http.Server
	store      Store
	expander   Expander
	aggregator Aggregator
	reconciler Reconciler
	rates      services.DateRateResolver
	publish    func(ctx context.Context, transactionID uuid.UUID)

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run http.Server.
// publish may be nil when AMQP is not configured.
func NewServer(addr string, store Store, exp Expander, agg Aggregator, rec Reconciler, rates services.DateRateResolver, publish func(ctx context.Context, transactionID uuid.UUID)) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		store:       store,
		expander:    exp,
		aggregator:  agg,
		reconciler:  rec,
		rates:       rates,
		publish:     publish,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("POST /transactions", s.withTrace(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions", s.withTrace(s.handleListTransactions))
	mux.HandleFunc("GET /transactions/{id}", s.withTrace(s.handleGetTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.withTrace(s.handleDeleteTransaction))

	mux.HandleFunc("POST /recurring", s.withTrace(s.handleCreateRecurring))
	mux.HandleFunc("GET /recurring", s.withTrace(s.handleListRecurring))
	mux.HandleFunc("PUT /recurring/{id}/amount", s.withTrace(s.handleUpdateRecurringAmount))
	mux.HandleFunc("PUT /recurring/{id}/active", s.withTrace(s.handleSetRecurringActive))

	mux.HandleFunc("GET /months/{year}/{month}", s.withTrace(s.handleMonthView))
	mux.HandleFunc("GET /summary/monthly", s.withTrace(s.handleMonthlySummary))
	mux.HandleFunc("GET /summary/yearly", s.withTrace(s.handleYearlySummary))
	mux.HandleFunc("GET /breakdown/categories", s.withTrace(s.handleCategoryBreakdown))
	mux.HandleFunc("GET /breakdown/methods", s.withTrace(s.handleMethodBreakdown))

	mux.HandleFunc("POST /categories", s.withTrace(s.handleCreateCategory))
	mux.HandleFunc("GET /categories", s.withTrace(s.handleListCategories))

	mux.HandleFunc("POST /admin/reconcile", s.withTrace(s.handleReconcile))

	return s
}

// withTrace adds security headers, rate limiting, and request logging.
func (s *Server) withTrace(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type ctxKeyRequestID struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the rate limiter cleanup goroutine and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
