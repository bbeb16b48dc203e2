package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/yieldkeep/tokestrat/internal/config"
	"github.com/yieldkeep/tokestrat/internal/logger"
	"github.com/yieldkeep/tokestrat/internal/metrics"
	"github.com/yieldkeep/tokestrat/internal/state"
	"github.com/yieldkeep/tokestrat/internal/strategy"
	"github.com/yieldkeep/tokestrat/internal/utils"
)

// Config holds the dependencies of the dashboard API. Metrics is optional.
type Config struct {
	Port     string
	Store    state.Store
	Factory  *strategy.Factory
	Metrics  *metrics.Collector
	CallCost math.Int // Default cost for the trigger endpoint
	Decimals int      // Want decimals, used to parse the cost query parameter
}

// WebServer serves strategy state, harvest history and metrics
type WebServer struct {
	logger   zerolog.Logger
	router   *mux.Router
	port     string
	store    state.Store
	factory  *strategy.Factory
	metrics  *metrics.Collector
	callCost math.Int
	decimals int
	started  time.Time

	mu     sync.Mutex
	server *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.CallCost.IsNil() {
		cfg.CallCost = math.ZeroInt()
	}

	server := &WebServer{
		logger:   logger.GetForComponent("web_server"),
		router:   mux.NewRouter(),
		port:     cfg.Port,
		store:    cfg.Store,
		factory:  cfg.Factory,
		metrics:  cfg.Metrics,
		callCost: cfg.CallCost,
		decimals: cfg.Decimals,
		started:  time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics.Handler()).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	api.HandleFunc("/strategies/{address}", ws.handleGetStrategy).Methods("GET")
	api.HandleFunc("/strategies/{address}/triggers", ws.handleGetTriggers).Methods("GET")
	api.HandleFunc("/reports", ws.handleGetReports).Methods("GET")
	api.HandleFunc("/reports/{id}", ws.handleGetReport).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformance).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Start starts the web server and blocks until it stops. It returns nil after Shutdown.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ws.mu.Lock()
	ws.server = server
	ws.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.mu.Lock()
	server := ws.server
	ws.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	storeHealthy := true
	cycle, err := ws.store.CurrentCycleNumber(r.Context())
	if err != nil {
		storeHealthy = false
		hasErrors = true
	}
	if p, ok := ws.store.(interface{ Ping() error }); ok && storeHealthy {
		if err := p.Ping(); err != nil {
			storeHealthy = false
			hasErrors = true
		}
	}

	instances := 0
	emergency := 0
	if ws.factory != nil {
		for _, s := range ws.factory.Instances() {
			instances++
			if s.EmergencyExit() {
				emergency++
			}
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "tokestrat-strategy-keeper",
			"version": "1.0.0",
		},
		"keeper_status": map[string]interface{}{
			"store_healthy":        storeHealthy,
			"current_cycle":        cycle,
			"instances":            instances,
			"emergency_exit_count": emergency,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetStrategies returns a snapshot of every instance
func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	if ws.factory == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "No strategy factory configured")
		return
	}

	instances := ws.factory.Instances()
	snapshots := make([]interface{}, 0, len(instances))
	for _, s := range instances {
		snap, err := ws.factory.Snapshot(r.Context(), s.Address())
		if err != nil {
			ws.logger.Error().Err(err).Str("strategy", s.Address().Hex()).Msg("Failed to snapshot strategy")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to snapshot strategies")
			return
		}
		snapshots = append(snapshots, snap)
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"strategies": snapshots,
		"count":      len(snapshots),
	})
}

// handleGetStrategy returns one instance
func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	addr, ok := ws.strategyAddress(w, r)
	if !ok {
		return
	}
	snap, err := ws.factory.Snapshot(r.Context(), addr)
	if err != nil {
		if errors.Is(err, strategy.ErrUnknownInstance) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found")
			return
		}
		ws.logger.Error().Err(err).Str("strategy", addr.Hex()).Msg("Failed to snapshot strategy")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to snapshot strategy")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, snap)
}

// handleGetTriggers evaluates the harvest and tend triggers, optionally at ?cost= (whole want units)
func (ws *WebServer) handleGetTriggers(w http.ResponseWriter, r *http.Request) {
	addr, ok := ws.strategyAddress(w, r)
	if !ok {
		return
	}
	s, found := ws.factory.Get(addr)
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found")
		return
	}

	cost := ws.callCost
	if costStr := r.URL.Query().Get("cost"); costStr != "" {
		parsed, err := utils.ParseUnits(costStr, ws.decimals)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cost")
			return
		}
		cost = parsed
	}

	harvest, err := s.HarvestTrigger(r.Context(), cost)
	if err != nil {
		ws.triggerError(w, addr, err)
		return
	}
	tend, err := s.TendTrigger(r.Context(), cost)
	if err != nil {
		ws.triggerError(w, addr, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"strategy":        addr.Hex(),
		"call_cost":       cost.String(),
		"harvest_trigger": harvest,
		"tend_trigger":    tend,
	})
}

func (ws *WebServer) triggerError(w http.ResponseWriter, addr common.Address, err error) {
	if errors.Is(err, strategy.ErrNotInitialized) {
		ws.writeErrorResponse(w, http.StatusConflict, "Strategy is not initialized")
		return
	}
	ws.logger.Error().Err(err).Str("strategy", addr.Hex()).Msg("Failed to evaluate triggers")
	ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to evaluate triggers")
}

// handleGetReports returns recent harvest reports, optionally for one ?strategy=
func (ws *WebServer) handleGetReports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	var filter common.Address
	if s := r.URL.Query().Get("strategy"); s != "" {
		if !common.IsHexAddress(s) {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid strategy address")
			return
		}
		filter = common.HexToAddress(s)
	}

	reports, err := ws.store.RecentReports(r.Context(), filter, limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent reports")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve reports")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
		"limit":   limit,
	})
}

// handleGetReport returns a specific report by ID
func (ws *WebServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid report ID")
		return
	}

	report, err := ws.store.ReportByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Report not found")
			return
		}
		ws.logger.Error().Err(err).Int64("reportId", id).Msg("Failed to get report")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve report")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, report)
}

// handleGetPerformance returns aggregated harvest results, optionally for one ?strategy=
func (ws *WebServer) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	var filter common.Address
	if s := r.URL.Query().Get("strategy"); s != "" {
		if !common.IsHexAddress(s) {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid strategy address")
			return
		}
		filter = common.HexToAddress(s)
	}

	perf, err := ws.store.Performance(r.Context(), filter)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get performance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"performance": perf,
		"net_profit":  perf.NetProfit().String(),
	})
}

// handleGetParameters returns the active persisted trigger parameters, or the defaults
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	source := "store"
	params, err := ws.store.LoadActiveStrategyParameters(r.Context(), config.DEFAULT_PARAMETERS_CONFIG_NAME)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			ws.logger.Error().Err(err).Msg("Failed to get strategy parameters")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve strategy parameters")
			return
		}
		defaults := config.DefaultStrategyParameters()
		params = &defaults
		source = "default"
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"parameters": params,
		"source":     source,
		"timestamp":  time.Now().UTC(),
	})
}

func (ws *WebServer) strategyAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	if ws.factory == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "No strategy factory configured")
		return common.Address{}, false
	}
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid strategy address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
