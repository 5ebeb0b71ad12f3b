package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/wricardo/mcp-training/watchparty/transport/websocket"
	"github.com/wricardo/mcp-training/watchparty/watch/config"
	"github.com/wricardo/mcp-training/watchparty/watch/metrics"
	"github.com/wricardo/mcp-training/watchparty/watch/party"
)

// Largest player-state body accepted over HTTP
const maxBodyBytes = 64 * 1024

// Hub is the part of the websocket hub the API needs
type Hub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Participants() []party.Participant
	Stats() websocket.Stats
	PublishPlayerState(ctx context.Context, payload []byte) (party.PlayerState, int, error)
}

// Server represents the REST API server
type Server struct {
	hub     Hub
	log     *slog.Logger
	metrics *metrics.Metrics
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server. allowedOrigins configures CORS.
func NewServer(hub Hub, log *slog.Logger, m *metrics.Metrics, allowedOrigins []string) *Server {
	if log == nil {
		log = config.Discard()
	}
	s := &Server{
		hub:     hub,
		log:     log,
		metrics: m,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.hub.ServeWS)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/participants", s.handleListParticipants).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/player-state", s.handlePublishPlayerState).Methods("POST")
}

// Router exposes the route table so callers can mount extra endpoints
func (s *Server) Router() *mux.Router { return s.router }

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	participants := s.hub.Participants()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(participants),
		"participants": participants,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.hub.Stats())
}

func (s *Server) handlePublishPlayerState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request")
		return
	}
	if len(body) > maxBodyBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	state, delivered, err := s.hub.PublishPlayerState(r.Context(), body)
	if err != nil {
		if errors.Is(err, party.ErrMalformedPayload) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("api.player_state", "event_kind", state.EventKind, "delivered", delivered, "remote", r.RemoteAddr)

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"delivered": delivered,
		"state":     state,
	})
}
