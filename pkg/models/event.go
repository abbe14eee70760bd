package models

import (
	"fmt"
	"time"
)

// EventKind tags a transcript event so passive listeners can tell spoken text
// apart from code, data notices, and inline chart images.
type EventKind string

const (
	EventUser      EventKind = "user"
	EventAssistant EventKind = "assistant"
	EventCode      EventKind = "code"
	EventData      EventKind = "data"
	EventImage     EventKind = "image"
)

// TranscriptEvent is one line on the live transcript stream. The wire form is
// "<kind>:<payload>"; for EventImage the payload is base64-encoded PNG data.
type TranscriptEvent struct {
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Payload   string    `json:"payload"`
	Time      time.Time `json:"time"`
}

// Line renders the event in its tagged wire form.
func (e TranscriptEvent) Line() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.Payload)
}

// EnrichmentEvent reports progress of a background enrichment job. Indices are
// 1-based and strictly increasing within a job; consumers infer completion
// from Index == Total.
type EnrichmentEvent struct {
	SessionID string    `json:"session_id"`
	JobID     string    `json:"job_id"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	SheetURL  string    `json:"sheet_url,omitempty"`
	Time      time.Time `json:"time"`
}

// Line renders the progress event as a human-readable transcript line.
func (e EnrichmentEvent) Line() string {
	if e.SheetURL == "" {
		return fmt.Sprintf("Enriched row %d/%d.", e.Index, e.Total)
	}
	return fmt.Sprintf("Enriched row %d/%d. View: %s", e.Index, e.Total, e.SheetURL)
}
