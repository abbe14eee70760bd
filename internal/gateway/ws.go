package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/pkg/models"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// handleTranscriptWS streams transcript events as tagged text lines. The
// websocket connection doubles as the session lifecycle: opening it binds a
// live session, and closing it disposes the session after the post-hoc
// report pipeline has run.
func (s *Server) handleTranscriptWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcript == nil {
		httpError(w, http.StatusServiceUnavailable, "transcript stream is not configured")
		return
	}

	ctx := r.Context()
	sessionID, err := s.ensureSession(ctx, strings.TrimSpace(r.URL.Query().Get("session")))
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ctx = observability.WithSessionID(ctx, sessionID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}

	sub := s.deps.Transcript.Subscribe(func(e models.TranscriptEvent) bool {
		return e.SessionID == sessionID
	})

	s.deps.Logger.Info(ctx, "transcript listener connected")

	// Reader: drains client frames and signals close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Tell the connected client which session it is bound to.
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.TextMessage, []byte("session:"+sessionID))

	for {
		select {
		case event := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(event.Line())); err != nil {
				s.closeTranscript(ctx, conn, sub.Close, sessionID)
				<-done
				return
			}
		case <-done:
			s.closeTranscript(ctx, conn, sub.Close, sessionID)
			return
		case <-ctx.Done():
			s.closeTranscript(ctx, conn, sub.Close, sessionID)
			<-done
			return
		}
	}
}

func (s *Server) closeTranscript(ctx context.Context, conn *websocket.Conn, closeSub func(), sessionID string) {
	closeSub()
	_ = conn.Close()
	s.deps.Logger.Info(ctx, "transcript listener disconnected")
	s.disconnect(sessionID)
}

// handleEnrichmentWS streams enrichment progress lines, optionally filtered
// to one session. Listeners here are passive; connecting does not create a
// session and disconnecting tears nothing down.
func (s *Server) handleEnrichmentWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Enrichment == nil {
		httpError(w, http.StatusServiceUnavailable, "enrichment stream is not configured")
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	var filter func(models.EnrichmentEvent) bool
	if sessionID != "" {
		filter = func(e models.EnrichmentEvent) bool {
			return e.SessionID == sessionID
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	sub := s.deps.Enrichment.Subscribe(filter)
	defer sub.Close()
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(event.Line())); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
