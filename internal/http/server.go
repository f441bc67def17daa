// Package http exposes the budget engine to the desktop UI shell as a
// local JSON API. Routing, middleware and handlers are deliberately thin;
// every operation delegates to the services.Session.
package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server wires the engine's operations onto a local HTTP listener.
type Server struct {
	http.Server
	session  Engine
	storeErr func() error
}

// Engine is the slice of services.Session the handlers use. Declared here
// so handler tests can run against a fake without a real store.
type Engine interface {
	monthEngine
	entityEngine
	undoEngine
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. storeErr reports the storage writer's health for /readyz; nil
// means always ready.
func NewServer(addr string, session Engine, storeErr func() error) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		session:  session,
		storeErr: storeErr,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /months/{month}/generate", s.with(s.handleGenerateMonth))
	mux.HandleFunc("GET /months/{month}", s.with(s.handleGetMonth))
	mux.HandleFunc("GET /months/{month}/leftover", s.with(s.handleLeftover))
	mux.HandleFunc("PATCH /months/{month}/bill-instances/{id}", s.with(s.handleUpdateBillInstance))
	mux.HandleFunc("PATCH /months/{month}/income-instances/{id}", s.with(s.handleUpdateIncomeInstance))
	mux.HandleFunc("PUT /months/{month}/balances/{source}", s.with(s.handleUpdateBalance))
	mux.HandleFunc("POST /months/{month}/variable-expenses", s.with(s.handleAddVariableExpense))
	mux.HandleFunc("POST /months/{month}/free-expenses", s.with(s.handleAddFreeFlowingExpense))

	mux.HandleFunc("GET /templates/bills", s.with(s.handleListBills))
	mux.HandleFunc("POST /templates/bills", s.with(s.handleCreateBill))
	mux.HandleFunc("PUT /templates/bills/{id}", s.with(s.handleUpdateBill))
	mux.HandleFunc("GET /templates/incomes", s.with(s.handleListIncomes))
	mux.HandleFunc("POST /templates/incomes", s.with(s.handleCreateIncome))
	mux.HandleFunc("PUT /templates/incomes/{id}", s.with(s.handleUpdateIncome))

	mux.HandleFunc("GET /payment-sources", s.with(s.handleListSources))
	mux.HandleFunc("POST /payment-sources", s.with(s.handleCreateSource))
	mux.HandleFunc("PUT /payment-sources/{id}", s.with(s.handleUpdateSource))
	mux.HandleFunc("GET /categories", s.with(s.handleListCategories))

	mux.HandleFunc("POST /undo", s.with(s.handleUndo))
	mux.HandleFunc("GET /undo/depth", s.with(s.handleUndoDepth))

	return s
}

// with adds a request id, request logging and conservative response
// headers. The API only ever listens on loopback for the desktop shell,
// but the headers cost nothing.
func (s *Server) with(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := newRequestID()

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Request-ID", requestID)

		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		slog.InfoContext(r.Context(), "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(b)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.storeErr != nil {
		if err := s.storeErr(); err != nil {
			slog.Warn("Readiness check failed", "error", err)
			http.Error(w, "storage degraded", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
