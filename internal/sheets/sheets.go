// Package sheets is the spreadsheet-upload collaborator: create a destination
// document, append rows to it, hand back a reference. Implementations are
// external services; the in-memory implementation backs tests and offline
// runs.
package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/voxquery/voxquery/internal/dataset"
)

// Ref identifies a created spreadsheet.
type Ref struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Service creates spreadsheets and appends rows to them.
type Service interface {
	// Create makes a new spreadsheet containing only the header row.
	Create(ctx context.Context, title string, header []string) (*Ref, error)

	// AppendRow appends one data row to an existing spreadsheet.
	AppendRow(ctx context.Context, ref *Ref, row []string) error
}

// Upload creates a spreadsheet from a whole frame in one pass: header first,
// then every row in order.
func Upload(ctx context.Context, svc Service, title string, frame *dataset.Frame) (*Ref, error) {
	ref, err := svc.Create(ctx, title, frame.Columns())
	if err != nil {
		return nil, fmt.Errorf("create spreadsheet: %w", err)
	}
	for i, row := range frame.StringRows() {
		if err := svc.AppendRow(ctx, ref, row); err != nil {
			return nil, fmt.Errorf("append row %d: %w", i+1, err)
		}
	}
	return ref, nil
}

// Memory is an in-process Service keeping sheets in a map. It is used by
// tests and as the fallback when no Google credentials are configured.
type Memory struct {
	mu     sync.Mutex
	sheets map[string]*memSheet
}

type memSheet struct {
	title  string
	header []string
	rows   [][]string
}

// NewMemory creates an empty in-memory sheet service.
func NewMemory() *Memory {
	return &Memory{sheets: map[string]*memSheet{}}
}

func (m *Memory) Create(ctx context.Context, title string, header []string) (*Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.sheets[id] = &memSheet{title: title, header: append([]string(nil), header...)}
	return &Ref{ID: id, URL: "memory://" + id}, nil
}

func (m *Memory) AppendRow(ctx context.Context, ref *Ref, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet, ok := m.sheets[ref.ID]
	if !ok {
		return fmt.Errorf("unknown spreadsheet %s", ref.ID)
	}
	sheet.rows = append(sheet.rows, append([]string(nil), row...))
	return nil
}

// Rows returns the data rows of a sheet (excluding the header).
func (m *Memory) Rows(id string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet, ok := m.sheets[id]
	if !ok {
		return nil
	}
	return append([][]string(nil), sheet.rows...)
}

// Header returns the header row of a sheet.
func (m *Memory) Header(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet, ok := m.sheets[id]
	if !ok {
		return nil
	}
	return append([]string(nil), sheet.header...)
}
