package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voxquery/voxquery/internal/broadcast"
	"github.com/voxquery/voxquery/internal/dataset"
	"github.com/voxquery/voxquery/internal/sandbox"
	"github.com/voxquery/voxquery/internal/sessions"
	"github.com/voxquery/voxquery/internal/sheets"
	"github.com/voxquery/voxquery/pkg/models"
)

type failingSheets struct{}

func (failingSheets) Create(ctx context.Context, title string, header []string) (*sheets.Ref, error) {
	return nil, errors.New("quota exceeded")
}

func (failingSheets) AppendRow(ctx context.Context, ref *sheets.Ref, row []string) error {
	return errors.New("quota exceeded")
}

func routerFixture(t *testing.T) (*Router, *broadcast.Hub[models.TranscriptEvent], *sheets.Memory, *sessions.Registry) {
	t.Helper()
	hub := broadcast.NewHub[models.TranscriptEvent](16)
	svc := sheets.NewMemory()
	store := sessions.NewRegistry()
	if _, err := store.Create(context.Background(), "sess-1"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return NewRouter(hub, svc, store, nil, nil), hub, svc, store
}

func sampleFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	frame, err := dataset.Load(strings.NewReader("name,age\nAda,36\nGrace,45\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return frame
}

func TestRouteTextAppendsHistory(t *testing.T) {
	router, _, _, store := routerFixture(t)
	ctx := context.Background()

	text := router.Route(ctx, "sess-1", &sandbox.Outcome{Kind: sandbox.Evaluated, Text: "27.5"}, RouteOptions{})
	if text != "27.5" {
		t.Fatalf("unexpected text %q", text)
	}

	history, err := store.History(ctx, "sess-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Role != models.RoleAssistant || history[0].Content != "27.5" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestRoutePublishesChart(t *testing.T) {
	router, hub, _, _ := routerFixture(t)
	sub := hub.Subscribe(nil)
	defer sub.Close()

	router.Route(context.Background(), "sess-1",
		&sandbox.Outcome{Kind: sandbox.Executed, Text: "done", Chart: "aWNvbg=="}, RouteOptions{})

	event := <-sub.C
	if event.Kind != models.EventImage || event.Payload != "aWNvbg==" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Line() != "image:aWNvbg==" {
		t.Fatalf("unexpected wire form %q", event.Line())
	}
}

func TestPublishCodeReachesListeners(t *testing.T) {
	router, hub, _, _ := routerFixture(t)
	sub := hub.Subscribe(nil)
	defer sub.Close()

	router.PublishCode(context.Background(), "sess-1", `df.Mean("age")`)

	event := <-sub.C
	if event.Kind != models.EventCode || event.Payload != `df.Mean("age")` {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Line() != `code:df.Mean("age")` {
		t.Fatalf("unexpected wire form %q", event.Line())
	}
}

func TestRouteExportSuccessSuffix(t *testing.T) {
	router, _, svc, _ := routerFixture(t)
	frame := sampleFrame(t)

	text := router.Route(context.Background(), "sess-1",
		&sandbox.Outcome{Kind: sandbox.Executed, Text: "filtered", Export: frame},
		RouteOptions{Upload: true, Title: "Adults"})

	if !strings.Contains(text, "exported to a spreadsheet") {
		t.Fatalf("expected export confirmation, got %q", text)
	}
	if !strings.HasPrefix(text, "filtered") {
		t.Fatalf("suffix must follow the result text, got %q", text)
	}
	// One sheet exists with the frame's rows.
	url := text[strings.LastIndex(text, "memory://"):]
	id := strings.TrimPrefix(url, "memory://")
	if rows := svc.Rows(id); len(rows) != 2 {
		t.Fatalf("expected 2 exported rows, got %d", len(rows))
	}
}

func TestRouteExportFailureIsNotFatal(t *testing.T) {
	hub := broadcast.NewHub[models.TranscriptEvent](16)
	store := sessions.NewRegistry()
	if _, err := store.Create(context.Background(), "sess-1"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	router := NewRouter(hub, failingSheets{}, store, nil, nil)

	text := router.Route(context.Background(), "sess-1",
		&sandbox.Outcome{Kind: sandbox.Executed, Text: "filtered", Export: sampleFrame(t)},
		RouteOptions{Upload: true, Title: "Adults"})

	if !strings.HasPrefix(text, "filtered") {
		t.Fatalf("result text must survive export failure, got %q", text)
	}
	if !strings.Contains(text, "failed") {
		t.Fatalf("expected failure note, got %q", text)
	}
}

func TestRouteExportWithoutCandidate(t *testing.T) {
	router, _, _, _ := routerFixture(t)

	text := router.Route(context.Background(), "sess-1",
		&sandbox.Outcome{Kind: sandbox.Executed, Text: "ok"},
		RouteOptions{Upload: true})

	if !strings.Contains(text, "nothing was exported") {
		t.Fatalf("expected no-candidate note, got %q", text)
	}
}

func TestRouteFailedOutcomeSkipsExport(t *testing.T) {
	router, _, svc, _ := routerFixture(t)

	text := router.Route(context.Background(), "sess-1",
		&sandbox.Outcome{Kind: sandbox.Failed, Text: "boom", Export: sampleFrame(t)},
		RouteOptions{Upload: true})

	if text != "boom" {
		t.Fatalf("unexpected text %q", text)
	}
	_ = svc
}
