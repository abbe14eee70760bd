package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/voxquery/voxquery/internal/dataset"
	"github.com/voxquery/voxquery/internal/observability"
)

// pipelineTimeout bounds the post-disconnect summary, render, and mail work.
const pipelineTimeout = 2 * time.Minute

// disconnect disposes the session and runs the post-hoc report pipeline in
// the background. The pipeline is best-effort: a failure in any stage logs
// and the session stays disposed.
func (s *Server) disconnect(sessionID string) {
	history, err := s.deps.Sessions.Destroy(context.Background(), sessionID)
	if err != nil {
		// Concurrent disconnects race here; only the first wins the history.
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()
		ctx = observability.WithSessionID(ctx, sessionID)

		if s.deps.Summarizer == nil || s.deps.Mailer == nil || s.deps.Renderer == nil {
			s.deps.Logger.Debug(ctx, "report pipeline not configured, skipping")
			return
		}

		summary, err := s.deps.Summarizer.Summarize(ctx, history)
		if err != nil {
			s.deps.Logger.Warn(ctx, "session summary failed", "error", err)
			return
		}

		var frame *dataset.Frame
		datasetName := "default dataset"
		if s.deps.Resolver != nil {
			frame = s.deps.Resolver.Resolve(ctx, sessionID)
			datasetName = sessionID + ".csv"
		}

		doc, err := s.deps.Renderer.Render(datasetName, summary, frame)
		if err != nil {
			s.deps.Logger.Warn(ctx, "report render failed", "error", err)
			return
		}

		subject := fmt.Sprintf("Session Report %s", sessionID)
		if err := s.deps.Mailer.SendReport(ctx, subject, summary, doc); err != nil {
			s.deps.Logger.Warn(ctx, "report delivery failed", "error", err)
			return
		}
		s.deps.Logger.Info(ctx, "session report delivered", "messages", len(history))
	}()
}
