package web

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/sponsor"
	"github.com/harvest-move/harvest/internal/state"
	"github.com/harvest-move/harvest/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer serves the claim history, leaderboard and sponsorship relay API.
type WebServer struct {
	router  *mux.Router
	port    string
	station *sponsor.GasStation
	limiter *sponsor.RateLimiter
	network string
}

// NewWebServer creates a new web server instance. A nil gas station disables
// the sponsorship routes' functionality but keeps them answering.
func NewWebServer(port string, station *sponsor.GasStation, network string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		station: station,
		limiter: sponsor.NewRateLimiter(5, time.Minute),
		network: network,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/claims", ws.handleRecordClaim).Methods("POST")
	api.HandleFunc("/claims/{address}", ws.handleGetClaims).Methods("GET")
	api.HandleFunc("/leaderboard", ws.handleLeaderboard).Methods("GET")
	api.HandleFunc("/leaderboard/{address}", ws.handleStanding).Methods("GET")
	api.HandleFunc("/sponsor", ws.handleSponsor).Methods("POST")
	api.HandleFunc("/sponsor/status", ws.handleSponsorStatus).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := state.DB != nil && state.DB.PingContext(r.Context()) == nil

	status := "healthy"
	statusCode := http.StatusOK
	if !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    status,
		"network":   ws.network,
		"database":  dbHealthy,
		"sponsor":   ws.station.Status(r.Context()),
		"timestamp": time.Now().UTC(),
	})
}

// handleRecordClaim persists one claimed reward reported by a client.
func (ws *WebServer) handleRecordClaim(w http.ResponseWriter, r *http.Request) {
	var record types.ClaimRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid claim record")
		return
	}
	if record.Address == "" || record.TxHash == "" || record.Protocol == "" {
		ws.writeError(w, http.StatusBadRequest, "address, protocol and tx_hash are required")
		return
	}
	if record.ClaimedAt.IsZero() {
		record.ClaimedAt = time.Now().UTC()
	}

	if err := state.InsertClaim(r.Context(), record); err != nil {
		webLogger.Error().Err(err).Str("tx_hash", record.TxHash).Msg("Failed to persist claim")
		ws.writeError(w, http.StatusInternalServerError, "failed to persist claim")
		return
	}

	ws.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{"recorded": true})
}

func (ws *WebServer) handleGetClaims(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := state.ClaimsForAddress(r.Context(), address, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("address", address).Msg("Failed to fetch claims")
		ws.writeError(w, http.StatusInternalServerError, "failed to fetch claims")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, records)
}

func (ws *WebServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	period := leaderboardPeriod(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := state.Leaderboard(r.Context(), period, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("period", string(period)).Msg("Failed to fetch leaderboard")
		ws.writeError(w, http.StatusInternalServerError, "failed to fetch leaderboard")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, entries)
}

func (ws *WebServer) handleStanding(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	period := leaderboardPeriod(r)

	entry, err := state.Standing(r.Context(), address, period)
	if err != nil {
		webLogger.Error().Err(err).Str("address", address).Msg("Failed to fetch standing")
		ws.writeError(w, http.StatusInternalServerError, "failed to fetch standing")
		return
	}
	if entry == nil {
		entry = &types.LeaderboardEntry{Address: address}
	}

	ws.writeJSONResponse(w, http.StatusOK, entry)
}

// handleSponsor countersigns and submits a sender-signed fee-payer
// transaction. Error responses carry fallback=true so clients know the signed
// payload is still valid for user-paid submission.
func (ws *WebServer) handleSponsor(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RawTransaction  string `json:"rawTransaction"`
		SenderSignature string `json:"senderSignature"`
		Sender          string `json:"sender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		ws.writeSponsorError(w, http.StatusBadRequest, "invalid sponsorship request")
		return
	}

	if payload.Sender != "" && !ws.limiter.Allow(payload.Sender) {
		ws.writeSponsorError(w, http.StatusTooManyRequests, "sponsorship rate limit exceeded")
		return
	}

	rawBytes, err := decodeHex(payload.RawTransaction)
	if err != nil {
		ws.writeSponsorError(w, http.StatusBadRequest, "rawTransaction is not valid hex")
		return
	}
	authBytes, err := decodeHex(payload.SenderSignature)
	if err != nil {
		ws.writeSponsorError(w, http.StatusBadRequest, "senderSignature is not valid hex")
		return
	}

	txHash, err := ws.station.Sponsor(r.Context(), &types.SignedTransactionData{
		RawTransaction:      rawBytes,
		SenderAuthenticator: authBytes,
		Sender:              payload.Sender,
	})
	if err != nil {
		webLogger.Warn().Err(err).Str("sender", payload.Sender).Msg("Sponsorship rejected")
		ws.writeSponsorError(w, sponsorErrorStatus(err), err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"txHash":    txHash,
		"sponsored": true,
	})
}

func (ws *WebServer) handleSponsorStatus(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.station.Status(r.Context()))
}

// sponsorErrorStatus maps gas station failures to the status codes clients
// use to distinguish rate limiting from fund depletion. The station wraps
// its sentinels with decode detail, so matching goes through the chain.
func sponsorErrorStatus(err error) int {
	switch {
	case errors.Is(err, sponsor.ErrStationDepleted):
		return http.StatusServiceUnavailable
	case errors.Is(err, sponsor.ErrStationDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, sponsor.ErrMalformedEnvelope):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func leaderboardPeriod(r *http.Request) types.LeaderboardPeriod {
	switch types.LeaderboardPeriod(r.URL.Query().Get("period")) {
	case types.PeriodDaily:
		return types.PeriodDaily
	case types.PeriodWeekly:
		return types.PeriodWeekly
	case types.PeriodMonthly:
		return types.PeriodMonthly
	default:
		return types.PeriodAllTime
	}
}

func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{"error": message})
}

// writeSponsorError answers in the relay error shape, always with the
// fallback hint set.
func (ws *WebServer) writeSponsorError(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":    message,
		"fallback": true,
	})
}

func decodeHex(value string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(value, "0x"))
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
