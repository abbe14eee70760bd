// Package sandbox executes model-generated analysis code against a session's
// dataset inside a restricted yaegi interpreter. One calling convention
// covers both "give me a value" and "run code that prints or plots":
// code that parses as a single expression is evaluated for its value, and
// anything else runs as a statement sequence with captured stdout.
package sandbox

import "github.com/voxquery/voxquery/internal/dataset"

// OutcomeKind tags how an execution concluded.
type OutcomeKind string

const (
	// Evaluated means the code was a single expression and produced a value.
	Evaluated OutcomeKind = "evaluated"

	// Executed means the code ran as a statement sequence; Text holds the
	// captured stdout.
	Executed OutcomeKind = "executed"

	// Failed means compilation, evaluation, or execution raised; Text holds
	// a human-readable message. Failures never propagate out of Execute.
	Failed OutcomeKind = "failed"
)

// NoOutputSentinel is returned as the text of a statement run that wrote
// nothing to stdout.
const NoOutputSentinel = "Code executed, but did not return or print anything."

// Outcome is the single structured result of one sandboxed invocation. The
// outcome and its artifacts are owned by the invocation that produced them
// and must not outlive the tool-call turn except where explicitly exported.
type Outcome struct {
	Kind OutcomeKind

	// Text is the spoken/tool-result payload: the expression's textual form,
	// the captured stdout, or the failure message.
	Text string

	// Value is the expression's runtime value in Evaluated outcomes.
	Value any

	// Export is the candidate table selected for optional spreadsheet
	// upload, or nil when the invocation produced none.
	Export *dataset.Frame

	// Chart is the base64-encoded PNG produced as a side effect of this
	// invocation, or empty. The backing file is single-use and already
	// deleted by the time the outcome is returned.
	Chart string
}
