// Package api exposes the ledger over HTTP: REST endpoints for trades,
// snapshots, mode, and reset, plus a WebSocket stream of portfolio
// snapshots.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"papertradingv1/internal/auth"
	"papertradingv1/internal/ledger"
	"papertradingv1/internal/model"
)

// Server is the REST + WebSocket front of the ledger.
type Server struct {
	led   *ledger.Ledger
	guard *auth.LiveArmGuard
	hub   *Hub
	srv   *http.Server

	// Hooks (optional, wired to metrics by the caller).
	OnExecute    func(model.PaperTrade) // every applied trade
	OnReject     func(error)            // every rejected trade
	OnReset      func()                 // every confirmed reset
	OnModeChange func(model.Mode)       // every accepted mode request
}

// NewServer builds the router. guard may be a disabled guard; hub must
// be running before traffic arrives.
func NewServer(addr string, led *ledger.Ledger, guard *auth.LiveArmGuard, hub *Hub) *Server {
	s := &Server{led: led, guard: guard, hub: hub}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/portfolio", s.handleGetPortfolio)
		r.Get("/positions", s.handleGetPositions)
		r.Get("/positions/{symbol}", s.handleGetPosition)
		r.Get("/trades", s.handleGetTrades)
		r.Get("/performance", s.handleGetPerformance)
		r.Get("/mode", s.handleGetMode)
		r.Post("/mode", s.handleSetMode)
		r.Post("/trades", s.handlePlaceTrade)
		r.Post("/prices", s.handlePushPrices)
		r.Post("/reset", s.handleReset)
		r.Get("/stream", hub.HandleWS)
	})

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[api] server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// --- Request/Response types ---

// TradeRequest is the JSON body for POST /api/v1/trades.
type TradeRequest struct {
	Symbol   string          `json:"symbol"`
	Side     model.TradeSide `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ModeRequest is the JSON body for POST /api/v1/mode. TOTPCode is
// required for the live transition when an arming secret is configured.
type ModeRequest struct {
	Mode     model.Mode `json:"mode"`
	TOTPCode string     `json:"totp_code,omitempty"`
}

// PricesRequest is the JSON body for POST /api/v1/prices, mirroring the
// price feed's wire frame.
type PricesRequest struct {
	Quotes map[string]decimal.Decimal `json:"quotes"`
}

// ResetRequest is the JSON body for POST /api/v1/reset. The reset only
// runs with an explicit confirmation.
type ResetRequest struct {
	Confirm bool `json:"confirm"`
}

// PortfolioResponse is the portfolio snapshot plus the derived fields.
type PortfolioResponse struct {
	model.PaperPortfolio
	Equity   decimal.Decimal `json:"equity"`
	TotalPnL decimal.Decimal `json:"total_pnl"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, _ *http.Request) {
	p := s.led.Portfolio()
	writeJSON(w, http.StatusOK, PortfolioResponse{
		PaperPortfolio: p,
		Equity:         p.Equity(),
		TotalPnL:       p.TotalPnL(),
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.led.Positions())
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := s.led.Position(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.led.TradeHistory())
}

func (s *Server) handleGetPerformance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.led.PerformanceMetrics())
}

func (s *Server) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]model.Mode{"mode": s.led.Mode()})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Mode {
	case model.ModeDemo:
		s.led.EnableDemoMode()
	case model.ModeLive:
		if err := s.guard.Verify(req.TOTPCode); err != nil {
			writeError(w, err.Error(), http.StatusForbidden)
			return
		}
		s.led.EnableLiveMode()
	default:
		writeError(w, "mode must be demo or live", http.StatusBadRequest)
		return
	}

	if s.OnModeChange != nil {
		s.OnModeChange(s.led.Mode())
	}
	writeJSON(w, http.StatusOK, map[string]model.Mode{"mode": s.led.Mode()})
}

func (s *Server) handlePlaceTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}

	trade, err := s.led.PlaceTrade(req.Symbol, req.Side, req.Quantity, req.Price)
	if err != nil {
		if s.OnReject != nil {
			s.OnReject(err)
		}
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if s.OnExecute != nil {
		s.OnExecute(trade)
	}
	writeJSON(w, http.StatusCreated, trade)
}

func (s *Server) handlePushPrices(w http.ResponseWriter, r *http.Request) {
	var req PricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Quotes) == 0 {
		writeError(w, "quotes must not be empty", http.StatusBadRequest)
		return
	}

	updated := s.led.ApplyPriceUpdates(req.Quotes)
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Confirm {
		writeError(w, "reset requires confirm=true", http.StatusBadRequest)
		return
	}

	s.led.Reset()
	if s.OnReset != nil {
		s.OnReset()
	}
	s.handleGetPortfolio(w, r)
}

// --- helpers ---

// statusFor maps the ledger error taxonomy to HTTP statuses. All of
// these are expected, recoverable outcomes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrModeMismatch):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidSide):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientPosition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUnknownSymbol):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
