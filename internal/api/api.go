// Package api serves the read-only status API: bot configs and their trade
// history, for dashboards and scripting. Listens on loopback by default.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"botdeck/internal/bot"
	"botdeck/internal/store"
)

// Server is the JSON status API.
type Server struct {
	bots   *bot.Registry
	trades *store.Store
	log    *slog.Logger
	router chi.Router
}

// NewServer wires the routes.
func NewServer(bots *bot.Registry, trades *store.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{bots: bots, trades: trades, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.health)
	r.Get("/api/bots", s.listBots)
	r.Get("/api/bots/{id}", s.getBot)
	r.Get("/api/bots/{id}/trades", s.listTrades)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// botStatus is a bot config plus live counters.
type botStatus struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Format    string   `json:"format"`
	Quote     string   `json:"quote"`
	Timeframe []string `json:"timeframes,omitempty"`
	DryRun    bool     `json:"dry_run"`
	Active    int      `json:"active_trades"`
	Today     int      `json:"trades_today"`
}

func (s *Server) botStatus(ctx context.Context, cfg bot.Config) botStatus {
	st := botStatus{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Format:    string(cfg.Format),
		Quote:     cfg.Quote,
		Timeframe: cfg.Timeframes,
		DryRun:    cfg.DryRun,
	}
	if n, err := s.trades.CountActive(ctx, cfg.ID); err == nil {
		st.Active = n
	}
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	if n, err := s.trades.CountSince(ctx, cfg.ID, dayStart); err == nil {
		st.Today = n
	}
	return st
}

func (s *Server) listBots(w http.ResponseWriter, r *http.Request) {
	out := make([]botStatus, 0, s.bots.Len())
	for _, cfg := range s.bots.All() {
		out = append(out, s.botStatus(r.Context(), cfg))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, ok := s.bots.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown bot: "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, s.botStatus(r.Context(), cfg))
}

// tradeJSON is the wire form of a stored trade.
type tradeJSON struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Entry     float64   `json:"entry"`
	TPs       []float64 `json:"tps,omitempty"`
	DCAs      []float64 `json:"dcas,omitempty"`
	SL        float64   `json:"sl,omitempty"`
	Leverage  int       `json:"leverage,omitempty"`
	Timeframe string    `json:"timeframe,omitempty"`
	Score     float64   `json:"score"`
	Status    string    `json:"status"`
	DryRun    bool      `json:"dry_run"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at,omitzero"`
}

func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.bots.Get(id); !ok {
		s.writeError(w, http.StatusNotFound, "unknown bot: "+id)
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	trades, err := s.trades.ByBot(r.Context(), id, limit)
	if err != nil {
		s.log.Error("list trades", "bot", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeJSON{
			ID: t.ID, Symbol: t.Symbol, Side: t.Side, Entry: t.Entry,
			TPs: t.TPs, DCAs: t.DCAs, SL: t.SL, Leverage: t.Leverage,
			Timeframe: t.Timeframe, Score: t.Score, Status: string(t.Status),
			DryRun: t.DryRun, CreatedAt: t.CreatedAt, ClosedAt: t.ClosedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}
