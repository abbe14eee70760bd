package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/voxquery/voxquery/internal/broadcast"
	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/internal/sandbox"
	"github.com/voxquery/voxquery/internal/sessions"
	"github.com/voxquery/voxquery/internal/sheets"
	"github.com/voxquery/voxquery/pkg/models"
)

// RouteOptions carry the caller's per-invocation export request.
type RouteOptions struct {
	// Upload requests that the execution's candidate table, if any, be
	// handed to the spreadsheet collaborator.
	Upload bool

	// Title names the spreadsheet when Upload is set. Empty falls back
	// to a generated name.
	Title string
}

// Router turns a sandbox execution outcome into the single text string a
// conversational turn needs, dispatching artifacts along the way: chart
// images go to the transcript broadcast channel, candidate tables go to the
// spreadsheet collaborator when requested, and the final text lands in the
// session history. Artifact dispatch is best-effort; nothing here can fail
// the turn.
type Router struct {
	transcript *broadcast.Hub[models.TranscriptEvent]
	sheets     sheets.Service
	registry   *sessions.Registry
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewRouter builds a router. The sheets service may be nil, in which case
// export requests degrade to a failure note on the text result.
func NewRouter(transcript *broadcast.Hub[models.TranscriptEvent], svc sheets.Service, registry *sessions.Registry, logger *observability.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Router{
		transcript: transcript,
		sheets:     svc,
		registry:   registry,
		logger:     logger,
		metrics:    metrics,
	}
}

// Route classifies the outcome and dispatches its artifacts. It returns the
// final text, which has also been appended to the session history as an
// assistant entry.
func (r *Router) Route(ctx context.Context, sessionID string, out *sandbox.Outcome, opts RouteOptions) string {
	text := out.Text

	if out.Chart != "" {
		r.publishChart(ctx, sessionID, out.Chart)
	}

	if opts.Upload && out.Kind != sandbox.Failed {
		text += r.export(ctx, sessionID, out, opts.Title)
	}

	if r.registry != nil {
		if err := r.registry.Append(ctx, sessionID, models.RoleAssistant, text); err != nil {
			r.logger.Warn(ctx, "history append failed", "session_id", sessionID, "error", err)
		}
	}
	return text
}

// PublishCode announces the snippet about to run on the transcript channel,
// so passive listeners see the analysis code alongside its result.
func (r *Router) PublishCode(ctx context.Context, sessionID, code string) {
	if r.transcript == nil {
		return
	}
	r.transcript.Publish(models.TranscriptEvent{
		SessionID: sessionID,
		Kind:      models.EventCode,
		Payload:   code,
		Time:      time.Now(),
	})
	r.logger.Debug(ctx, "code published", "session_id", sessionID, "listeners", r.transcript.Listeners())
}

func (r *Router) publishChart(ctx context.Context, sessionID, chart string) {
	if r.transcript == nil {
		return
	}
	r.transcript.Publish(models.TranscriptEvent{
		SessionID: sessionID,
		Kind:      models.EventImage,
		Payload:   chart,
		Time:      time.Now(),
	})
	r.logger.Debug(ctx, "chart published", "session_id", sessionID, "listeners", r.transcript.Listeners())
}

// export uploads the candidate table and returns the suffix to append to the
// text result. Upload failure is reported in the suffix, never as an error.
func (r *Router) export(ctx context.Context, sessionID string, out *sandbox.Outcome, title string) string {
	if out.Export == nil {
		return "\n\nNo table was produced by this analysis, so nothing was exported."
	}
	if r.sheets == nil {
		r.countExport("error")
		return "\n\nSpreadsheet export is not configured."
	}
	if title == "" {
		title = fmt.Sprintf("Analysis %s", time.Now().Format("2006-01-02 15:04"))
	}

	ref, err := sheets.Upload(ctx, r.sheets, title, out.Export)
	if err != nil {
		r.countExport("error")
		r.logger.Warn(ctx, "spreadsheet export failed", "session_id", sessionID, "title", title, "error", err)
		return fmt.Sprintf("\n\nExporting the result to a spreadsheet failed: %v", err)
	}
	r.countExport("success")
	r.logger.Info(ctx, "spreadsheet export complete", "session_id", sessionID, "sheet_id", ref.ID)
	if ref.URL != "" {
		return fmt.Sprintf("\n\nThe result was exported to a spreadsheet: %s", ref.URL)
	}
	return "\n\nThe result was exported to a spreadsheet."
}

func (r *Router) countExport(status string) {
	if r.metrics != nil {
		r.metrics.ExportCounter.WithLabelValues(status).Inc()
	}
}
