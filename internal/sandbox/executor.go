package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"go/parser"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/traefik/yaegi/interp"

	"github.com/voxquery/voxquery/internal/dataset"
	"github.com/voxquery/voxquery/internal/observability"
)

// DefaultTimeout bounds one sandboxed invocation. A hung analysis must stall
// its own turn, not the process.
const DefaultTimeout = 30 * time.Second

// Executor runs untrusted, model-generated analysis code against the dataset
// resolved for a session. Every invocation gets a fresh interpreter, a fresh
// dataset load, and a private chart slot; nothing is shared between calls.
type Executor struct {
	resolver     *dataset.Resolver
	artifactsDir string
	timeout      time.Duration
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewExecutor creates an executor. artifactsDir receives per-invocation chart
// slots and is created if missing. A zero timeout means DefaultTimeout.
func NewExecutor(resolver *dataset.Resolver, artifactsDir string, timeout time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if artifactsDir == "" {
		artifactsDir = filepath.Join(os.TempDir(), "voxquery-artifacts")
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Executor{
		resolver:     resolver,
		artifactsDir: artifactsDir,
		timeout:      timeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// Execute runs the code against the session's dataset and classifies the
// result. It never returns an error for user-code failure: malformed or
// raising code degrades to a Failed outcome whose text re-enters the
// conversation so the model can explain or retry.
func (e *Executor) Execute(ctx context.Context, sessionID, code string) *Outcome {
	start := time.Now()
	outcome := e.run(ctx, sessionID, code)
	if e.metrics != nil {
		e.metrics.ExecutionCounter.WithLabelValues(string(outcome.Kind)).Inc()
		e.metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.Debug(ctx, "sandbox execution finished",
		"session_id", sessionID,
		"outcome", string(outcome.Kind),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcome
}

func (e *Executor) run(ctx context.Context, sessionID, code string) *Outcome {
	frame := e.resolver.Resolve(ctx, sessionID)
	tracker := dataset.NewTracker()
	tracker.Track(frame)

	slot := filepath.Join(e.artifactsDir, "chart-"+uuid.NewString()+".png")
	if err := os.MkdirAll(e.artifactsDir, 0o755); err != nil {
		return &Outcome{Kind: Failed, Text: fmt.Sprintf("artifact area unavailable: %v", err)}
	}

	var stdout bytes.Buffer
	i := interp.New(interp.Options{Stdout: &stdout, Stderr: &stdout})
	if err := bindEnvironment(i, frame, slot); err != nil {
		return &Outcome{Kind: Failed, Text: fmt.Sprintf("sandbox setup failed: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var outcome *Outcome
	if _, err := parser.ParseExpr(code); err == nil {
		outcome = e.evaluate(ctx, i, code)
		// A print call parses as an expression but its useful result is the
		// captured output, so it follows the statement contract.
		if outcome.Kind == Evaluated && stdout.Len() > 0 {
			outcome = &Outcome{Kind: Executed, Text: stdout.String()}
		}
	} else {
		outcome = e.runStatements(ctx, i, code, &stdout)
	}

	if outcome.Kind == Executed {
		outcome.Export = tracker.Candidate()
	}
	e.collectChart(ctx, slot, outcome)
	return outcome
}

// evaluate handles expression mode: the code compiles as a single expression
// and the outcome carries its runtime value and textual form.
func (e *Executor) evaluate(ctx context.Context, i *interp.Interpreter, code string) (outcome *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = failedOutcome(r)
		}
	}()

	res, err := i.EvalWithContext(ctx, code)
	if err != nil {
		return failedOutcome(err)
	}
	if !res.IsValid() {
		return &Outcome{Kind: Evaluated, Text: NoOutputSentinel}
	}

	value := res.Interface()
	out := &Outcome{Kind: Evaluated, Value: value, Text: renderValue(value)}
	if frame, ok := value.(*dataset.Frame); ok {
		out.Export = frame
	}
	return out
}

// runStatements handles statement mode: the code runs as a sequence with
// stdout redirected into the capture buffer.
func (e *Executor) runStatements(ctx context.Context, i *interp.Interpreter, code string, stdout *bytes.Buffer) (outcome *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = failedOutcome(r)
		}
	}()

	if _, err := i.EvalWithContext(ctx, code); err != nil {
		return failedOutcome(err)
	}
	text := stdout.String()
	if text == "" {
		text = NoOutputSentinel
	}
	return &Outcome{Kind: Executed, Text: text}
}

// collectChart drains the invocation's chart slot: read, base64-encode,
// delete. The slot is single-use and turn-scoped.
func (e *Executor) collectChart(ctx context.Context, slot string, outcome *Outcome) {
	data, err := os.ReadFile(slot)
	if err != nil {
		return
	}
	if err := os.Remove(slot); err != nil {
		e.logger.Warn(ctx, "chart slot cleanup failed", "path", slot, "error", err.Error())
	}
	outcome.Chart = base64.StdEncoding.EncodeToString(data)
}

func failedOutcome(cause any) *Outcome {
	if p, ok := cause.(interp.Panic); ok {
		cause = p.Value
	}
	if err, ok := cause.(error); ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Outcome{Kind: Failed, Text: "analysis timed out"}
		}
		return &Outcome{Kind: Failed, Text: fmt.Sprintf("analysis failed: %v", err)}
	}
	return &Outcome{Kind: Failed, Text: fmt.Sprintf("analysis failed: %v", cause)}
}

// renderValue produces the textual form of an evaluated expression.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return NoOutputSentinel
	case *dataset.Frame:
		return v.String()
	case string:
		return v
	case float64, float32, int, int64, bool:
		return dataset.CellString(normalizeScalar(v))
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice {
			parts := make([]string, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				parts[i] = fmt.Sprintf("%v", rv.Index(i).Interface())
			}
			return fmt.Sprintf("[%s]", joinLimited(parts, 50))
		}
		return fmt.Sprintf("%v", value)
	}
}

func normalizeScalar(v any) any {
	switch t := v.(type) {
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return t
	}
}

func joinLimited(parts []string, limit int) string {
	if len(parts) > limit {
		parts = append(parts[:limit:limit], "...")
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
