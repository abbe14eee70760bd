package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/voxquery/voxquery/internal/dataset"
)

// maxSampleRows bounds the sample-data section.
const maxSampleRows = 5

// Document is a rendered report ready for delivery.
type Document struct {
	Body        []byte
	ContentType string
	Filename    string
}

// Renderer turns a dataset plus summary prose into a deliverable document.
// PDF rendering is an external collaborator's job; the built-in renderer
// produces Markdown, which mail clients display acceptably and which keeps
// the pipeline dependency-free.
type Renderer interface {
	Render(datasetName, summary string, frame *dataset.Frame) (*Document, error)
}

// MarkdownRenderer renders the report as a Markdown document with the same
// sections the emailed report always had: summary, shape, per-column
// statistics, and a short data sample.
type MarkdownRenderer struct{}

// NewMarkdownRenderer creates a Markdown renderer.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

func (r *MarkdownRenderer) Render(datasetName, summary string, frame *dataset.Frame) (*Document, error) {
	var b strings.Builder

	b.WriteString("# Data Analysis Report\n\n")
	fmt.Fprintf(&b, "Dataset: **%s**\n\n", datasetName)

	b.WriteString("## Summary\n\n")
	if strings.TrimSpace(summary) == "" {
		summary = "No summary available."
	}
	b.WriteString(summary)
	b.WriteString("\n\n")

	if frame != nil {
		fmt.Fprintf(&b, "Rows: **%d**, Columns: **%d**\n\n", frame.Len(), len(frame.Columns()))
		r.writeStatistics(&b, frame)
		r.writeSample(&b, frame)
	}

	return &Document{
		Body:        []byte(b.String()),
		ContentType: "text/markdown",
		Filename:    "report.md",
	}, nil
}

func (r *MarkdownRenderer) writeStatistics(b *strings.Builder, frame *dataset.Frame) {
	numeric := make([]string, 0)
	for i, col := range frame.Columns() {
		if frame.Types()[i] == dataset.TypeNumeric {
			numeric = append(numeric, col)
		}
	}
	if len(numeric) == 0 {
		b.WriteString("## Statistical Summary\n\nNo numerical columns available.\n\n")
		return
	}

	b.WriteString("## Statistical Summary\n\n")
	b.WriteString("| Column | Count | Mean | Min | Max |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, col := range numeric {
		fmt.Fprintf(b, "| %s | %d | %s | %s | %s |\n",
			col,
			frame.Count(col),
			formatStat(frame.Mean(col)),
			formatStat(frame.Min(col)),
			formatStat(frame.Max(col)))
	}
	b.WriteString("\n")
}

func (r *MarkdownRenderer) writeSample(b *strings.Builder, frame *dataset.Frame) {
	head := frame.Head(maxSampleRows)
	if head.Len() == 0 {
		return
	}

	b.WriteString("## Sample Data\n\n")
	cols := head.Columns()
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(cols)) + "\n")
	for _, row := range head.StringRows() {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	b.WriteString("\n")
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
