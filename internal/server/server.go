package server

import (
	"context"
	"encoding/json"
	"errors"
	log "log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"sahyatri/internal/answer"
	"sahyatri/internal/dialogue"
	"sahyatri/internal/rail"
	"sahyatri/internal/speech"
	"sahyatri/pkg/intent"
	"sahyatri/pkg/protocol"
)

// Transcriber turns uploaded 16 kHz mono clips into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32, locale string) (string, error)
}

type Deps struct {
	Matcher *intent.Matcher
	// Assistant and Transcriber are optional.
	Assistant   *answer.Assistant
	Transcriber Transcriber
	Rail        *rail.Client

	Session      dialogue.Config
	Speech       speech.Config
	WriteTimeout time.Duration
}

type Server struct {
	deps Deps
	mux  *http.ServeMux

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func New(deps Deps) *Server {
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		clients: make(map[*client]struct{}),
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/pnr/{pnr}", s.handlePNR)
	s.mux.HandleFunc("GET /api/trains/{number}/live", s.handleLiveStatus)
	s.mux.HandleFunc("GET /api/stations/{name}/info", s.handleStationInfo)
	s.mux.HandleFunc("GET /api/directions", s.handleDirections)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Close drops every live connection and waits for their sessions to wind
// down.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"sessions":  n,
		"assistant": s.deps.Assistant != nil,
	})
}

func (s *Server) handlePNR(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rail == nil {
		writeError(w, http.StatusServiceUnavailable, "rail lookups are not configured")
		return
	}

	data, err := s.deps.Rail.PNRStatus(r.Context(), r.PathValue("pnr"))
	if err != nil {
		writeRailError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rail == nil {
		writeError(w, http.StatusServiceUnavailable, "rail lookups are not configured")
		return
	}

	date := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse("20060102", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYYMMDD")
			return
		}
		date = d
	}

	status, err := s.deps.Rail.LiveStatus(r.Context(), r.PathValue("number"), date)
	if err != nil {
		writeRailError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStationInfo(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	s.askAssistant(w, r, func(ctx context.Context, a *answer.Assistant) (string, error) {
		return a.StationInfo(ctx, name)
	})
}

func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	s.askAssistant(w, r, func(ctx context.Context, a *answer.Assistant) (string, error) {
		return a.Directions(ctx, from, to)
	})
}

func (s *Server) askAssistant(w http.ResponseWriter, r *http.Request, ask func(context.Context, *answer.Assistant) (string, error)) {
	if s.deps.Assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "no answer provider configured")
		return
	}

	text, err := ask(r.Context(), s.deps.Assistant)
	if err != nil {
		log.Error("Failed to ask assistant", "err", err)
		writeError(w, http.StatusBadGateway, dialogue.ProviderFailureText)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := protocol.Accept(w, r, s.deps.WriteTimeout)
	if err != nil {
		log.Warn("Failed to upgrade websocket", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(s, conn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.teardown()
		return
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		c.run()

		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()
}

func writeRailError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rail.ErrInvalidPNR), errors.Is(err, rail.ErrInvalidTrain):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error("Failed rail lookup", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
