package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxquery/voxquery/internal/dataset"
)

func testExecutor(t *testing.T) *Executor {
	t.Helper()
	uploads := t.TempDir()
	csv := "name,age\nAlice,25\nBob,30\n"
	if err := os.WriteFile(filepath.Join(uploads, "sess.csv"), []byte(csv), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	resolver := dataset.NewResolver(uploads, t.TempDir(), nil)
	return NewExecutor(resolver, t.TempDir(), 20*time.Second, nil, nil)
}

func TestExecuteExpression(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `df.Mean("age")`)
	if out.Kind != Evaluated {
		t.Fatalf("expected evaluated, got %s (%s)", out.Kind, out.Text)
	}
	if out.Text != "27.5" {
		t.Fatalf("expected textual form 27.5, got %q", out.Text)
	}
}

func TestExecuteLenExpression(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `df.Len()`)
	if out.Kind != Evaluated || out.Text != "2" {
		t.Fatalf("expected evaluated \"2\", got %s %q", out.Kind, out.Text)
	}
}

func TestExecutePrintedExpressionIsCaptured(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `fmt.Println(df.Shape())`)
	if out.Kind != Executed {
		t.Fatalf("expected executed, got %s (%s)", out.Kind, out.Text)
	}
	if out.Text != "(2, 2)\n" {
		t.Fatalf("expected captured shape, got %q", out.Text)
	}
}

func TestExecuteStatements(t *testing.T) {
	e := testExecutor(t)

	code := `n := df.Len()
fmt.Println("rows:", n)`
	out := e.Execute(context.Background(), "sess", code)
	if out.Kind != Executed {
		t.Fatalf("expected executed, got %s (%s)", out.Kind, out.Text)
	}
	if out.Text != "rows: 2\n" {
		t.Fatalf("unexpected captured output %q", out.Text)
	}
}

func TestExecuteSilentStatementsReturnSentinel(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `n := df.Len()
_ = n`)
	if out.Kind != Executed {
		t.Fatalf("expected executed, got %s (%s)", out.Kind, out.Text)
	}
	if out.Text != NoOutputSentinel {
		t.Fatalf("expected sentinel, got %q", out.Text)
	}
}

func TestExecuteMissingColumnFails(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `df.Col("non_existent_col")`)
	if out.Kind != Failed {
		t.Fatalf("expected failed, got %s (%s)", out.Kind, out.Text)
	}
	if out.Text == "" || !strings.Contains(out.Text, "non_existent_col") {
		t.Fatalf("failure message should mention the column, got %q", out.Text)
	}
}

func TestExecuteSyntaxErrorFails(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `df.Filter(`)
	if out.Kind != Failed || out.Text == "" {
		t.Fatalf("expected failure with message, got %s %q", out.Kind, out.Text)
	}
}

func TestExportCandidateFromNewFrame(t *testing.T) {
	e := testExecutor(t)

	code := `adults := df.Filter("age", ">", 26.0)
_ = adults`
	out := e.Execute(context.Background(), "sess", code)
	if out.Kind != Executed {
		t.Fatalf("expected executed, got %s (%s)", out.Kind, out.Text)
	}
	if out.Export == nil {
		t.Fatal("expected export candidate")
	}
	if out.Export.Len() != 1 {
		t.Fatalf("candidate should be the filtered frame, got %s", out.Export.Shape())
	}
}

func TestNoExportCandidateWithoutNewFrame(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `fmt.Println(df.Len())`)
	if out.Export != nil {
		t.Fatalf("expected no candidate, got %s", out.Export.Shape())
	}
}

func TestEvaluatedFrameIsExportCandidate(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `df.Select("name")`)
	if out.Kind != Evaluated {
		t.Fatalf("expected evaluated, got %s (%s)", out.Kind, out.Text)
	}
	if out.Export == nil || len(out.Export.Columns()) != 1 {
		t.Fatal("expected the selected frame as export candidate")
	}
}

func TestChartArtifactCollected(t *testing.T) {
	e := testExecutor(t)

	code := `charts.Bar("ages", df.Col("name"), df.Col("age"))`
	out := e.Execute(context.Background(), "sess", code)
	if out.Kind != Evaluated {
		t.Fatalf("expected evaluated, got %s (%s)", out.Kind, out.Text)
	}
	if out.Chart == "" {
		t.Fatal("expected chart artifact")
	}
	if _, err := base64.StdEncoding.DecodeString(out.Chart); err != nil {
		t.Fatalf("chart is not valid base64: %v", err)
	}

	// The slot is single-use: the artifacts dir must be empty again.
	entries, err := os.ReadDir(e.artifactsDir)
	if err != nil {
		t.Fatalf("read artifacts dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected chart slot to be deleted, found %d files", len(entries))
	}
}

func TestAllowListedPackagesAvailable(t *testing.T) {
	e := testExecutor(t)

	code := `names := []string{}
for _, v := range df.Col("name") {
	names = append(names, strings.ToUpper(v.(string)))
}
sort.Strings(names)
fmt.Println(strings.Join(names, ","), strconv.Itoa(int(math.Max(1, 2))))`
	out := e.Execute(context.Background(), "sess", code)
	if out.Kind != Executed {
		t.Fatalf("expected executed, got %s (%s)", out.Kind, out.Text)
	}
	if out.Text != "ALICE,BOB 2\n" {
		t.Fatalf("unexpected captured output %q", out.Text)
	}
}

func TestSandboxBlocksFilesystemPackages(t *testing.T) {
	e := testExecutor(t)

	out := e.Execute(context.Background(), "sess", `import "os"
os.Getenv("HOME")`)
	if out.Kind != Failed {
		t.Fatalf("expected os import to fail, got %s (%s)", out.Kind, out.Text)
	}
}

func TestWrappedTimeoutBecomesTimedOutFailure(t *testing.T) {
	out := failedOutcome(fmt.Errorf("eval: %w", context.DeadlineExceeded))
	if out.Kind != Failed || out.Text != "analysis timed out" {
		t.Fatalf("expected timed-out failure, got %s %q", out.Kind, out.Text)
	}
}

func TestExecuteNeverPanics(t *testing.T) {
	e := testExecutor(t)

	for _, code := range []string{
		`panic("boom")`,
		`df.Row(99)`,
		``,
		`}{`,
	} {
		out := e.Execute(context.Background(), "sess", code)
		if out == nil {
			t.Fatalf("nil outcome for %q", code)
		}
	}
}
