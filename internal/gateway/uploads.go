package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/voxquery/voxquery/internal/broadcast"
	"github.com/voxquery/voxquery/internal/config"
	"github.com/voxquery/voxquery/internal/dataset"
	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/pkg/models"
)

// UploadsManager owns the managed uploads directory: it stores per-session
// CSVs, announces dataset changes on the transcript channel, and purges
// stale files on a cron schedule.
type UploadsManager struct {
	config     config.UploadsConfig
	transcript *broadcast.Hub[models.TranscriptEvent]
	logger     *observability.Logger

	watcher   *fsnotify.Watcher
	scheduler *cron.Cron
}

// NewUploadsManager creates the manager and its directory.
func NewUploadsManager(cfg config.UploadsConfig, transcript *broadcast.Hub[models.TranscriptEvent], logger *observability.Logger) (*UploadsManager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("uploads: directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: create directory: %w", err)
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &UploadsManager{
		config:     cfg,
		transcript: transcript,
		logger:     logger,
	}, nil
}

// Dir returns the managed directory.
func (m *UploadsManager) Dir() string {
	return m.config.Dir
}

// Save validates and stores one session's CSV. The write is atomic so the
// resolver never observes a half-written file.
func (m *UploadsManager) Save(ctx context.Context, sessionID string, r io.Reader) error {
	if strings.ContainsAny(sessionID, `/\`) || sessionID == "" {
		return fmt.Errorf("uploads: invalid session id")
	}

	limited := io.LimitReader(r, m.config.MaxUploadBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("uploads: read body: %w", err)
	}
	if int64(len(data)) > m.config.MaxUploadBytes {
		return fmt.Errorf("uploads: file exceeds %d bytes", m.config.MaxUploadBytes)
	}

	// Reject files the dataset layer cannot load.
	if _, err := dataset.Load(strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("uploads: not a loadable CSV: %w", err)
	}

	final := filepath.Join(m.config.Dir, sessionID+".csv")
	tmp, err := os.CreateTemp(m.config.Dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("uploads: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("uploads: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("uploads: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("uploads: store: %w", err)
	}

	m.logger.Info(ctx, "dataset uploaded", "session_id", sessionID, "bytes", len(data))
	return nil
}

// Start begins the directory watcher and the retention janitor. Both stop
// when the context is cancelled.
func (m *UploadsManager) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("uploads: watcher: %w", err)
	}
	if err := watcher.Add(m.config.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("uploads: watch %s: %w", m.config.Dir, err)
	}
	m.watcher = watcher

	go m.watchLoop(ctx)

	if m.config.RetentionHours > 0 {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(m.config.JanitorSchedule, func() {
			m.sweep(ctx)
		}); err != nil {
			watcher.Close()
			return fmt.Errorf("uploads: janitor schedule %q: %w", m.config.JanitorSchedule, err)
		}
		scheduler.Start()
		m.scheduler = scheduler
	}

	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return nil
}

// Stop halts the watcher and janitor.
func (m *UploadsManager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
}

// watchLoop announces dataset changes so passive listeners see upload
// activity inline with the conversation.
func (m *UploadsManager) watchLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if filepath.Ext(name) != ".csv" || strings.HasPrefix(name, ".") {
				continue
			}
			sessionID := strings.TrimSuffix(name, ".csv")
			m.logger.Debug(ctx, "upload observed", "session_id", sessionID, "op", event.Op.String())
			if m.transcript != nil {
				m.transcript.Publish(models.TranscriptEvent{
					SessionID: sessionID,
					Kind:      models.EventData,
					Payload:   fmt.Sprintf("Dataset for session %s was updated.", sessionID),
					Time:      time.Now(),
				})
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn(ctx, "uploads watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// sweep removes session CSVs older than the retention window.
func (m *UploadsManager) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(m.config.RetentionHours) * time.Hour)

	entries, err := os.ReadDir(m.config.Dir)
	if err != nil {
		m.logger.Warn(ctx, "uploads sweep failed", "error", err)
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.config.Dir, entry.Name())); err != nil {
			m.logger.Warn(ctx, "uploads sweep remove failed", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info(ctx, "uploads sweep complete", "removed", removed)
	}
}
