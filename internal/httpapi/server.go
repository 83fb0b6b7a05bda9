// Package httpapi exposes a ledger service over a JSON HTTP API and
// provides the matching client.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
	"github.com/bft-labs/dcaledger/pkg/dcaledger"
	"github.com/bft-labs/dcaledger/pkg/log"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	maxBodyBytes      = 1 << 20
	shutdownTimeout   = 5 * time.Second
)

// Backend is the ledger service the API serves.
type Backend interface {
	Enter(ctx context.Context, owner domain.Address, amount domain.Amount, numExecutions uint64) (domain.EnterEvent, error)
	Execute(ctx context.Context) (domain.ExecuteEvent, error)
	Exit(ctx context.Context, caller domain.Address, id uint64) (domain.ExitEvent, error)
	Balances(id uint64) (dcaledger.Balances, error)
	Allocation(id uint64) (domain.Allocation, bool)
	Info(ctx context.Context) (dcaledger.Info, error)
	Holdings(ctx context.Context, owner domain.Address) (dcaledger.Holdings, error)
	Mint(ctx context.Context, symbol string, to domain.Address, amount domain.Amount) error
	Events(ctx context.Context, after int64, limit int) ([]ports.JournalEntry, error)
	Status() dcaledger.State
}

// EnterRequest is the body of POST /v1/enter. Amount is in base units.
type EnterRequest struct {
	Owner      domain.Address `json:"owner"`
	Amount     domain.Amount  `json:"amount"`
	Executions uint64         `json:"executions"`
}

// ExitRequest is the body of POST /v1/exit.
type ExitRequest struct {
	Caller domain.Address `json:"caller"`
	ID     uint64         `json:"id"`
}

// MintRequest is the body of POST /v1/mint. Amount is in base units.
type MintRequest struct {
	Symbol string         `json:"symbol"`
	To     domain.Address `json:"to"`
	Amount domain.Amount  `json:"amount"`
}

// AllocationResponse is returned by GET /v1/allocations/{id}.
type AllocationResponse struct {
	Allocation domain.Allocation `json:"allocation"`
	Bought     domain.Amount     `json:"bought"`
	Unsold     domain.Amount     `json:"unsold"`
}

// EventsResponse is returned by GET /v1/events. Next is the cursor to pass
// as "after" for the following page.
type EventsResponse struct {
	Events []ports.JournalEntry `json:"events"`
	Next   int64                `json:"next"`
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// Route is one API endpoint.
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Server serves the API.
type Server struct {
	backend Backend
	logger  ports.Logger
	router  *mux.Router
}

// NewServer creates a Server for backend.
func NewServer(backend Backend, logger ports.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	s := &Server{backend: backend, logger: logger}
	s.router = s.newRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	routes := []Route{
		{"Health", http.MethodGet, "/v1/health", s.health},
		{"Ledger", http.MethodGet, "/v1/ledger", s.ledgerInfo},
		{"Allocation", http.MethodGet, "/v1/allocations/{id:[0-9]+}", s.allocation},
		{"Enter", http.MethodPost, "/v1/enter", s.enter},
		{"Execute", http.MethodPost, "/v1/execute", s.execute},
		{"Exit", http.MethodPost, "/v1/exit", s.exit},
		{"Mint", http.MethodPost, "/v1/mint", s.mint},
		{"Balances", http.MethodGet, "/v1/balances/{owner}", s.balances},
		{"Events", http.MethodGet, "/v1/events", s.events},
	}

	for _, route := range routes {
		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(s.requestLogger(route.HandlerFunc, route.Name))
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, fmt.Errorf("%w: %s %s", errNotFound, r.Method, r.URL.Path))
	})
	return router
}

// requestLogger logs every request with its route name and duration.
func (s *Server) requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		s.logger.Debug("api request",
			log.String("method", r.Method),
			log.String("uri", r.RequestURI),
			log.String("route", name),
			log.Duration("duration", time.Since(start)),
		)
	})
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", log.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api: %w", err)
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", State: s.backend.Status().String()})
}

func (s *Server) ledgerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.backend.Info(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, info)
}

func (s *Server) allocation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: allocation id: %v", errBadRequest, err))
		return
	}
	a, ok := s.backend.Allocation(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: allocation %d", errNotFound, id))
		return
	}
	bal, err := s.backend.Balances(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, AllocationResponse{Allocation: a, Bought: bal.Bought, Unsold: bal.Unsold})
}

func (s *Server) enter(w http.ResponseWriter, r *http.Request) {
	var req EnterRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ev, err := s.backend.Enter(r.Context(), req.Owner, req.Amount, req.Executions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, ev)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	ev, err := s.backend.Execute(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, ev)
}

func (s *Server) exit(w http.ResponseWriter, r *http.Request) {
	var req ExitRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ev, err := s.backend.Exit(r.Context(), req.Caller, req.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, ev)
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.To.IsZero() {
		s.writeError(w, r, fmt.Errorf("%w: recipient is required", errBadRequest))
		return
	}
	if err := s.backend.Mint(r.Context(), req.Symbol, req.To, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.backend.Holdings(r.Context(), req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, h)
}

func (s *Server) balances(w http.ResponseWriter, r *http.Request) {
	h, err := s.backend.Holdings(r.Context(), domain.Address(mux.Vars(r)["owner"]))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, h)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: after must be a non-negative integer", errBadRequest))
			return
		}
		after = n
	}
	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxEventLimit {
			s.writeError(w, r, fmt.Errorf("%w: limit must be between 1 and %d", errBadRequest, maxEventLimit))
			return
		}
		limit = n
	}

	entries, err := s.backend.Events(r.Context(), after, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	next := after
	if len(entries) > 0 {
		next = entries[len(entries)-1].Cursor
	}
	s.writeJSON(w, r, http.StatusOK, EventsResponse{Events: entries, Next: next})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed",
			log.String("method", r.Method),
			log.String("uri", r.RequestURI),
			log.Err(err),
		)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed",
			log.String("uri", r.RequestURI),
			log.String("code", code),
			log.Err(err),
		)
	}
	s.writeJSON(w, r, status, ErrorResponse{Error: err.Error(), Code: code})
}
