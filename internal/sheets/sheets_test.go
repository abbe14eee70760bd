package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxquery/voxquery/internal/dataset"
)

func TestMemoryCreateAndAppend(t *testing.T) {
	svc := NewMemory()
	ctx := context.Background()

	ref, err := svc.Create(ctx, "Results", []string{"name", "age"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(ref.URL, "memory://") {
		t.Fatalf("unexpected url %q", ref.URL)
	}

	if err := svc.AppendRow(ctx, ref, []string{"Alice", "25"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	rows := svc.Rows(ref.ID)
	if len(rows) != 1 || rows[0][0] != "Alice" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestUploadWholeFrame(t *testing.T) {
	svc := NewMemory()
	frame, err := dataset.Load(strings.NewReader("name,age\nAlice,25\nBob,30\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ref, err := Upload(context.Background(), svc, "Analysis Result", frame)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got := svc.Header(ref.ID); len(got) != 2 || got[0] != "name" {
		t.Fatalf("unexpected header %v", got)
	}
	if rows := svc.Rows(ref.ID); len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestGoogleClientAgainstStub(t *testing.T) {
	var created bool
	var appended int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ":append") || strings.Contains(r.URL.RawPath, ":append") {
			appended++
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
			return
		}
		created = true
		_ = json.NewEncoder(w).Encode(map[string]string{
			"spreadsheetId":  "abc123",
			"spreadsheetUrl": "https://example.test/abc123",
		})
	}))
	defer server.Close()

	g := NewGoogleWithClient(server.Client(), server.URL)
	ref, err := g.Create(context.Background(), "Enriched", []string{"text", "color"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || ref.ID != "abc123" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	// Create writes the header via one append call.
	if appended != 1 {
		t.Fatalf("expected header append, got %d", appended)
	}

	if err := g.AppendRow(context.Background(), ref, []string{"the sky", "blue"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if appended != 2 {
		t.Fatalf("expected 2 appends, got %d", appended)
	}
}

func TestGoogleClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := NewGoogleWithClient(server.Client(), server.URL)
	if _, err := g.Create(context.Background(), "X", nil); err == nil {
		t.Fatal("expected error from API failure")
	}
}
