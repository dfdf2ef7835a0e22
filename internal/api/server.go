package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"folio-optimizer/internal/alpaca"
	"folio-optimizer/internal/config"
	"folio-optimizer/internal/engine"
	"folio-optimizer/internal/fred"
)

// Server is the HTTP API server that connects the market-data client, rate
// client, and allocation engine.
type Server struct {
	cfg     *config.Config
	version string

	mu    sync.RWMutex
	opt   *engine.Optimizer
	ready bool
}

// NewServer creates a Server. It starts not-ready: the optimizer arrives via
// SetOptimizer once the factor dataset finishes loading.
func NewServer(cfg *config.Config, version string) *Server {
	return &Server{cfg: cfg, version: version}
}

// SetOptimizer is called when the factor dataset finishes loading.
func (s *Server) SetOptimizer(opt *engine.Optimizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opt = opt
	s.ready = true
}

func (s *Server) optimizer() (*engine.Optimizer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opt, s.ready
}

// Handler returns the HTTP handler with all API routes and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/optimize", s.handleOptimize)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	opt, ready := s.optimizer()

	result := map[string]interface{}{
		"ready":   ready,
		"version": s.version,
	}
	if ready {
		horizons := make([]string, 0, len(opt.Lookbacks))
		for h := range opt.Lookbacks {
			horizons = append(horizons, h)
		}
		result["horizons"] = horizons
	}
	writeJSON(w, result)
}

// optimizeRequest uses pointers for the scalar fields so an absent field is
// distinguishable from a zero value.
type optimizeRequest struct {
	Capital       *float64 `json:"capital"`
	Horizon       *string  `json:"horizon"`
	Tickers       []string `json:"tickers"`
	DesiredReturn *float64 `json:"desired_return"`
}

func (s *Server) validateOptimize(req optimizeRequest, opt *engine.Optimizer) (engine.Request, error) {
	var out engine.Request

	if req.Capital == nil {
		return out, errors.New("capital is required")
	}
	if *req.Capital <= 0 {
		return out, errors.New("capital must be positive")
	}
	if req.Horizon == nil || *req.Horizon == "" {
		return out, errors.New("horizon is required")
	}
	if _, ok := opt.Lookbacks[*req.Horizon]; !ok {
		return out, errors.New("horizon must be one of: short, medium, long")
	}
	if len(req.Tickers) == 0 {
		return out, errors.New("tickers must not be empty")
	}
	for _, tk := range req.Tickers {
		if strings.TrimSpace(tk) == "" {
			return out, errors.New("tickers must not contain blank entries")
		}
	}
	if req.DesiredReturn == nil {
		return out, errors.New("desired_return is required")
	}

	out.Capital = *req.Capital
	out.Horizon = *req.Horizon
	out.Tickers = req.Tickers
	out.DesiredReturn = *req.DesiredReturn
	return out, nil
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}

	opt, ready := s.optimizer()
	if !ready {
		writeError(w, 503, "factor dataset not loaded yet")
		return
	}

	engineReq, err := s.validateOptimize(req, opt)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}

	alloc, err := opt.Run(r.Context(), engineReq)
	if err != nil {
		writeError(w, optimizeErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, alloc)
}

// optimizeErrorStatus distinguishes requests the caller can fix (422) from
// upstream provider failures (502).
func optimizeErrorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrInsufficientData),
		errors.Is(err, engine.ErrSingularCovariance),
		errors.Is(err, engine.ErrUnachievableReturn),
		errors.Is(err, alpaca.ErrNoData),
		errors.Is(err, fred.ErrUnknownHorizon):
		return 422
	default:
		return 502
	}
}
