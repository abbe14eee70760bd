// Package gateway is the HTTP shell around the conversational runtime: CSV
// upload, text turns, live transcript and enrichment websocket streams, and
// the session lifecycle including the post-disconnect report pipeline.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxquery/voxquery/internal/broadcast"
	"github.com/voxquery/voxquery/internal/config"
	"github.com/voxquery/voxquery/internal/dataset"
	"github.com/voxquery/voxquery/internal/mail"
	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/internal/report"
	"github.com/voxquery/voxquery/internal/sessions"
	"github.com/voxquery/voxquery/internal/tts"
	"github.com/voxquery/voxquery/pkg/models"
)

// TurnProcessor drives one conversational turn.
type TurnProcessor interface {
	Process(ctx context.Context, sessionID, text string) (string, error)
}

// Deps collects the collaborators the server wires together.
type Deps struct {
	Config     *config.Config
	Sessions   *sessions.Registry
	Turns      TurnProcessor
	Transcript *broadcast.Hub[models.TranscriptEvent]
	Enrichment *broadcast.Hub[models.EnrichmentEvent]
	Uploads    *UploadsManager
	Resolver   *dataset.Resolver
	Summarizer *report.Summarizer
	Renderer   report.Renderer
	Mailer     mail.Sender
	Gatherer   prometheus.Gatherer
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Server is the HTTP gateway.
type Server struct {
	deps       Deps
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates the gateway over its collaborators.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if deps.Sessions == nil || deps.Turns == nil {
		return nil, errors.New("gateway: sessions and turn processor are required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Server{deps: deps}, nil
}

// Routes returns the gateway handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/ws/transcript", s.handleTranscriptWS)
	mux.HandleFunc("/ws/enrichment", s.handleEnrichmentWS)

	return mux
}

// Start begins serving on the configured address.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.deps.Config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error(ctx, "http server error", "error", err)
		}
	}()

	s.deps.Logger.Info(ctx, "http server started", "addr", addr)
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Addr returns the bound listen address, for tests that use port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID   string `json:"session_id"`
	Text        string `json:"text"`
	Audio       string `json:"audio,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httpError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	sessionID, err := s.ensureSession(ctx, req.SessionID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ctx = observability.WithSessionID(ctx, sessionID)

	s.publishTranscript(sessionID, models.EventUser, req.Message)

	text, err := s.deps.Turns.Process(ctx, sessionID, req.Message)
	if err != nil {
		s.deps.Logger.Error(ctx, "turn failed", "error", err)
		httpError(w, http.StatusBadGateway, "turn failed")
		return
	}

	s.publishTranscript(sessionID, models.EventAssistant, text)

	resp := chatResponse{SessionID: sessionID, Text: text}
	if s.deps.Config.TTS.Enabled {
		if audio, ttsErr := tts.TextToSpeech(ctx, &s.deps.Config.TTS, text); ttsErr == nil {
			resp.Audio = base64.StdEncoding.EncodeToString(audio.Audio)
			resp.AudioFormat = audio.Format
		} else {
			// Speech failure degrades to text-only.
			s.deps.Logger.Warn(ctx, "tts failed", "error", ttsErr)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.deps.Uploads == nil {
		httpError(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		httpError(w, http.StatusBadRequest, "session query parameter is required")
		return
	}

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, fmt.Sprintf("missing file field: %v", err))
			return
		}
		defer file.Close()
		body = file
	}

	ctx := observability.WithSessionID(r.Context(), sessionID)
	if err := s.deps.Uploads.Save(ctx, sessionID, body); err != nil {
		s.deps.Logger.Warn(ctx, "upload rejected", "error", err)
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "session_id": sessionID})
}

// ensureSession binds the request to a live session, creating one on first
// contact. An empty id mints a fresh session.
func (s *Server) ensureSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID != "" {
		if _, err := s.deps.Sessions.Get(ctx, sessionID); err == nil {
			return sessionID, nil
		}
	}
	session, err := s.deps.Sessions.Create(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return session.ID, nil
}

func (s *Server) publishTranscript(sessionID string, kind models.EventKind, payload string) {
	if s.deps.Transcript == nil {
		return
	}
	s.deps.Transcript.Publish(models.TranscriptEvent{
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Time:      time.Now(),
	})
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
