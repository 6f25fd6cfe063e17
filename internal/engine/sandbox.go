package engine

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/vitalstat/vitalstat/internal/frame"
	"github.com/vitalstat/vitalstat/internal/stats"
)

// allowedStdlib is the standard-library surface available to generated
// code. Everything else is absent from the interpreter's symbol table, so a
// denied import fails at lookup time instead of being silently rewritten.
var allowedStdlib = map[string]bool{
	"errors":       true,
	"fmt":          true,
	"math":         true,
	"math/rand":    true,
	"regexp":       true,
	"sort":         true,
	"strconv":      true,
	"strings":      true,
	"time":         true,
	"unicode":      true,
	"unicode/utf8": true,
}

// deniedCapabilities names the capability behind each blocked package, used
// to report denials in terms a caller can act on.
var deniedCapabilities = map[string]string{
	"os":            "filesystem access",
	"os/exec":       "process execution",
	"io":            "raw I/O",
	"io/ioutil":     "filesystem access",
	"path/filepath": "filesystem access",
	"net":           "network access",
	"net/http":      "network access",
	"syscall":       "system calls",
	"plugin":        "module loading",
	"unsafe":        "unsafe memory access",
	"reflect":       "reflection",
	"runtime":       "runtime control",
}

// analysisPackages are the injected bindings generated code analyzes data
// with: the bound dataset, the frame type surface, and the statistics
// routines.
var analysisPackages = []string{"dataset", "frame", "stats"}

// The prelude runs in the interpreter before user code, binding the dataset
// under the conventional name `df` plus the common alias `data` so code
// written against either works without edits. Imports and bindings are two
// separate evals: yaegi parses a source starting with an import clause in
// declaration mode, where a following statement is a parse error.
const preludeImports = `import (
	"fmt"

	"dataset"
	"frame"
	"stats"
)`

const preludeBindings = `df := dataset.DF
data := df
_ = data
_ = fmt.Sprint
_ = frame.Numeric
_ = stats.Mean
`

// newSandbox builds a capability-scoped interpreter with fr bound as the
// active dataset and all printed output routed to out.
func newSandbox(fr *frame.Frame, out io.Writer) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{Stdout: out, Stderr: out})

	if err := i.Use(restrictedSymbols()); err != nil {
		return nil, fmt.Errorf("failed to load sandbox stdlib: %w", err)
	}
	if err := i.Use(analysisExports(fr)); err != nil {
		return nil, fmt.Errorf("failed to bind analysis packages: %w", err)
	}
	// fmt's print family is rebound to the capture buffer so stdout is
	// recorded in full regardless of how the snippet prints.
	if err := i.Use(printExports(out)); err != nil {
		return nil, fmt.Errorf("failed to bind output capture: %w", err)
	}
	if _, err := i.Eval(preludeImports); err != nil {
		return nil, fmt.Errorf("failed to evaluate sandbox prelude: %w", err)
	}
	if _, err := i.Eval(preludeBindings); err != nil {
		return nil, fmt.Errorf("failed to evaluate sandbox prelude: %w", err)
	}
	return i, nil
}

// splitLeadingImports separates the import declarations at the top of a
// snippet from the statements that follow, so each part can be evaluated in
// the parse mode yaegi expects. Returns empty imports when the snippet has
// none.
func splitLeadingImports(code string) (imports, body string) {
	lines := strings.Split(code, "\n")
	i := 0
	var importLines []string
	for i < len(lines) {
		t := strings.TrimSpace(lines[i])
		switch {
		case t == "":
			i++
		case strings.HasPrefix(t, "import ("):
			for i < len(lines) {
				importLines = append(importLines, lines[i])
				if strings.HasPrefix(strings.TrimSpace(lines[i]), ")") {
					i++
					break
				}
				i++
			}
		case strings.HasPrefix(t, "import ") || strings.HasPrefix(t, "import\t"):
			importLines = append(importLines, lines[i])
			i++
		default:
			return strings.Join(importLines, "\n"), strings.Join(lines[i:], "\n")
		}
	}
	return strings.Join(importLines, "\n"), ""
}

// restrictedSymbols filters yaegi's stdlib symbol set down to the allow-list.
func restrictedSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, symbols := range stdlib.Symbols {
		// The symbol table carries non-path keys such as ".".
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if allowedStdlib[key[:idx]] {
			out[key] = symbols
		}
	}
	return out
}

func analysisExports(fr *frame.Frame) interp.Exports {
	return interp.Exports{
		"dataset/dataset": {
			"DF": reflect.ValueOf(fr),
		},
		"frame/frame": {
			"Frame":       reflect.ValueOf((*frame.Frame)(nil)),
			"Column":      reflect.ValueOf((*frame.Column)(nil)),
			"Kind":        reflect.ValueOf((*frame.Kind)(nil)),
			"Spec":        reflect.ValueOf((*frame.Spec)(nil)),
			"Numeric":     reflect.ValueOf(frame.Numeric),
			"Categorical": reflect.ValueOf(frame.Categorical),
			"Datetime":    reflect.ValueOf(frame.Datetime),
			"Boolean":     reflect.ValueOf(frame.Boolean),
			"FromRecords": reflect.ValueOf(frame.FromRecords),
		},
		"stats/stats": {
			"Mean":             reflect.ValueOf(stats.Mean),
			"StdDev":           reflect.ValueOf(stats.StdDev),
			"Median":           reflect.ValueOf(stats.Median),
			"Min":              reflect.ValueOf(stats.Min),
			"Max":              reflect.ValueOf(stats.Max),
			"Sum":              reflect.ValueOf(stats.Sum),
			"Correlation":      reflect.ValueOf(stats.Correlation),
			"Spearman":         reflect.ValueOf(stats.Spearman),
			"WelchTTest":       reflect.ValueOf(stats.WelchTTest),
			"OneSampleTTest":   reflect.ValueOf(stats.OneSampleTTest),
			"PairedTTest":      reflect.ValueOf(stats.PairedTTest),
			"LinearRegression": reflect.ValueOf(stats.LinearRegression),
			"TTestResult":      reflect.ValueOf((*stats.TTestResult)(nil)),
			"RegressionResult": reflect.ValueOf((*stats.RegressionResult)(nil)),
		},
	}
}

func printExports(out io.Writer) interp.Exports {
	return interp.Exports{
		"fmt/fmt": {
			"Print": reflect.ValueOf(func(a ...any) (int, error) {
				return fmt.Fprint(out, a...)
			}),
			"Printf": reflect.ValueOf(func(format string, a ...any) (int, error) {
				return fmt.Fprintf(out, format, a...)
			}),
			"Println": reflect.ValueOf(func(a ...any) (int, error) {
				return fmt.Fprintln(out, a...)
			}),
		},
	}
}

// AvailableLibraries reports, per allow-list entry, whether the binding is
// importable inside the sandbox. Denied packages report false. It never
// fails: a probe miss is simply a false entry.
func AvailableLibraries() map[string]bool {
	out := make(map[string]bool)
	for path := range allowedStdlib {
		out[path] = stdlibHas(path)
	}
	for _, name := range analysisPackages {
		out[name] = true
	}
	for path := range deniedCapabilities {
		out[path] = false
	}
	return out
}

func stdlibHas(path string) bool {
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	_, ok := stdlib.Symbols[path+"/"+name]
	return ok
}
