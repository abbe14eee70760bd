package sandbox

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/voxquery/voxquery/internal/charts"
	"github.com/voxquery/voxquery/internal/dataset"
)

// allowedPackages is the stdlib allow-list visible to analysis code. Anything
// with filesystem, network, or process reach stays out; the only IO the code
// can perform is through the bound chart slot.
var allowedPackages = map[string]bool{
	"fmt":     true,
	"strings": true,
	"strconv": true,
	"math":    true,
	"sort":    true,
	"time":    true,
}

// restrictedSymbols returns the subset of yaegi's stdlib symbol table covered
// by the allow-list.
func restrictedSymbols() interp.Exports {
	out := interp.Exports{}
	for key, symbols := range stdlib.Symbols {
		path := key
		if idx := strings.LastIndex(key, "/"); idx >= 0 {
			path = key[:idx]
		}
		if allowedPackages[path] {
			out[key] = symbols
		}
	}
	return out
}

// Charts is the plotting handle bound into the sandbox as `charts`. Each
// invocation gets its own slot path, so concurrent sessions cannot race on a
// shared artifact file. Writing a second chart in one invocation overwrites
// the first: the slot holds at most one image.
type Charts struct {
	slot string
}

// Bar renders a bar chart into the invocation's chart slot.
func (c *Charts) Bar(title string, labels []any, values []any) string {
	data, err := charts.Bar(title, toStrings(labels), toFloats(values))
	if err != nil {
		panic(fmt.Sprintf("bar chart: %v", err))
	}
	c.write(data)
	return "chart rendered"
}

// Line renders a line chart into the invocation's chart slot.
func (c *Charts) Line(title string, values []any) string {
	data, err := charts.Line(title, toFloats(values))
	if err != nil {
		panic(fmt.Sprintf("line chart: %v", err))
	}
	c.write(data)
	return "chart rendered"
}

func (c *Charts) write(data []byte) {
	if err := os.WriteFile(c.slot, data, 0o644); err != nil {
		panic(fmt.Sprintf("write chart: %v", err))
	}
}

func toFloats(values []any) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case float64:
			out[i] = t
		case int:
			out[i] = float64(t)
		case bool:
			if t {
				out[i] = 1
			}
		default:
			panic(fmt.Sprintf("value %v is not numeric", v))
		}
	}
	return out
}

func toStrings(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = dataset.CellString(v)
	}
	return out
}

// bindEnvironment exposes the resolved frame and the chart handle to the
// interpreter and declares the `df` and `charts` identifiers. These two names
// plus the stdlib allow-list are the entire sandbox surface.
func bindEnvironment(i *interp.Interpreter, frame *dataset.Frame, chartSlot string) error {
	exports := interp.Exports{
		"analysis/analysis": {
			"Dataset": reflect.ValueOf(frame),
			"Charts":  reflect.ValueOf(&Charts{slot: chartSlot}),
		},
	}
	if err := i.Use(exports); err != nil {
		return fmt.Errorf("bind analysis symbols: %w", err)
	}
	if err := i.Use(restrictedSymbols()); err != nil {
		return fmt.Errorf("bind stdlib subset: %w", err)
	}

	// Import declarations compile as a file, bindings as statements, so the
	// two halves go through separate Eval calls. The allow-listed packages
	// are imported here so analysis code can use them directly.
	imports := `import (
	"analysis"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)
`
	if _, err := i.Eval(imports); err != nil {
		return fmt.Errorf("bind imports: %w", err)
	}

	prelude := `df := analysis.Dataset
charts := analysis.Charts
_, _ = df, charts
`
	if _, err := i.Eval(prelude); err != nil {
		return fmt.Errorf("bind prelude: %w", err)
	}
	return nil
}
