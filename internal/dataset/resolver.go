package dataset

import (
	"bytes"
	"context"
	_ "embed"
	"path/filepath"

	"github.com/voxquery/voxquery/internal/observability"
)

//go:embed default.csv
var defaultCSV []byte

// Resolver maps a session ID to its dataset. Resolution is attempted in a
// fixed order, each step caught independently: the managed uploads area, the
// working directory, and finally the embedded default dataset. Resolve never
// fails; a session without an upload silently degrades to the default, and
// the degradation is logged so it stays debuggable.
//
// Datasets are loaded fresh on every call. There is deliberately no cache:
// the analysis must always see the latest upload, and conversation-scale
// datasets make the redundant IO cheap.
type Resolver struct {
	uploadsDir string
	workDir    string
	logger     *observability.Logger
}

// NewResolver creates a resolver over the managed uploads directory.
// workDir is the current-directory fallback; empty means ".".
func NewResolver(uploadsDir, workDir string, logger *observability.Logger) *Resolver {
	if workDir == "" {
		workDir = "."
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Resolver{uploadsDir: uploadsDir, workDir: workDir, logger: logger}
}

// UploadPath returns the managed uploads location for a session's dataset.
func (r *Resolver) UploadPath(sessionID string) string {
	return filepath.Join(r.uploadsDir, sessionID+".csv")
}

// Resolve loads the dataset bound to the session. It never returns an error:
// every failed attempt falls through to the next source, ending at the
// embedded default dataset.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) *Frame {
	if sessionID != "" {
		if frame, err := LoadFile(r.UploadPath(sessionID)); err == nil {
			return frame
		}
		if frame, err := LoadFile(filepath.Join(r.workDir, sessionID+".csv")); err == nil {
			r.logger.Debug(ctx, "dataset resolved from working directory", "session_id", sessionID)
			return frame
		}
	}

	r.logger.Info(ctx, "no uploaded dataset for session, using default", "session_id", sessionID)
	frame, err := Load(bytes.NewReader(defaultCSV))
	if err != nil {
		// The embedded dataset is validated by tests; an empty frame keeps
		// the invariant that Resolve never fails.
		r.logger.Error(ctx, "embedded default dataset failed to parse", "error", err.Error())
		return New([]string{"value"}, nil)
	}
	return frame
}
