// Package frame implements the in-memory typed table handed to generated
// analysis code. A Frame is built once, either from an upload or from the
// store's active projection, and is read-only afterwards: executions share
// frames freely without synchronization.
package frame

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vitalstat/vitalstat/internal/stats"
)

// Kind is the inferred semantic type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
	Datetime
	Boolean
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Datetime:
		return "datetime"
	case Boolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// KindFromString is the inverse of Kind.String. Unrecognized names map to
// Categorical, the safest interpretation.
func KindFromString(s string) Kind {
	switch s {
	case "numeric":
		return Numeric
	case "datetime":
		return Datetime
	case "boolean":
		return Boolean
	default:
		return Categorical
	}
}

// Spec names one column and its kind.
type Spec struct {
	Name string
	Kind Kind
}

// Column holds one typed column. Numeric cells live in floats, boolean cells
// in bools, datetime cells in times; the raw upload text is kept in strs for
// categorical and datetime columns. missing marks cells that were absent or
// failed coercion.
type Column struct {
	name    string
	kind    Kind
	floats  []float64
	strs    []string
	times   []time.Time
	bools   []bool
	missing []bool
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the column's semantic type.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of cells including missing ones.
func (c *Column) Len() int { return len(c.missing) }

// IsMissing reports whether cell i is missing.
func (c *Column) IsMissing(i int) bool { return c.missing[i] }

// Float returns all non-missing numeric values. It panics on non-numeric
// columns so that a type mistake in generated code fails loudly.
func (c *Column) Float() []float64 {
	if c.kind != Numeric && c.kind != Boolean {
		panic(fmt.Sprintf("column %q is %s, not numeric", c.name, c.kind))
	}
	out := make([]float64, 0, len(c.missing))
	for i := range c.missing {
		if c.missing[i] {
			continue
		}
		if c.kind == Boolean {
			if c.bools[i] {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
			continue
		}
		out = append(out, c.floats[i])
	}
	return out
}

// Strings returns all non-missing cells rendered as text.
func (c *Column) Strings() []string {
	out := make([]string, 0, len(c.missing))
	for i := range c.missing {
		if !c.missing[i] {
			out = append(out, c.cell(i))
		}
	}
	return out
}

// Times returns all non-missing datetime values.
func (c *Column) Times() []time.Time {
	if c.kind != Datetime {
		panic(fmt.Sprintf("column %q is %s, not datetime", c.name, c.kind))
	}
	out := make([]time.Time, 0, len(c.missing))
	for i := range c.missing {
		if !c.missing[i] {
			out = append(out, c.times[i])
		}
	}
	return out
}

// Mean returns the mean of the column's non-missing numeric values.
func (c *Column) Mean() float64 { return stats.Mean(c.Float()) }

// Std returns the sample standard deviation of the column.
func (c *Column) Std() float64 { return stats.StdDev(c.Float()) }

// Median returns the median of the column.
func (c *Column) Median() float64 { return stats.Median(c.Float()) }

// Min returns the smallest non-missing value of the column.
func (c *Column) Min() float64 { return stats.Min(c.Float()) }

// Max returns the largest non-missing value of the column.
func (c *Column) Max() float64 { return stats.Max(c.Float()) }

// Value returns cell i as its native Go value, or nil when missing.
func (c *Column) Value(i int) any {
	if c.missing[i] {
		return nil
	}
	switch c.kind {
	case Numeric:
		return c.floats[i]
	case Boolean:
		return c.bools[i]
	case Datetime:
		return c.times[i]
	default:
		return c.strs[i]
	}
}

// cell renders cell i as text. Missing cells render empty.
func (c *Column) cell(i int) string {
	if c.missing[i] {
		return ""
	}
	switch c.kind {
	case Numeric:
		return strconv.FormatFloat(c.floats[i], 'g', -1, 64)
	case Boolean:
		return strconv.FormatBool(c.bools[i])
	default:
		return c.strs[i]
	}
}

// Frame is a fixed set of equal-length columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return f.rows }

// NumCols returns the column count.
func (f *Frame) NumCols() int { return len(f.cols) }

// Columns returns the column names in frame order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.name
	}
	return names
}

// Schema returns the (name, kind) pairs in frame order.
func (f *Frame) Schema() []Spec {
	specs := make([]Spec, len(f.cols))
	for i, c := range f.cols {
		specs[i] = Spec{Name: c.name, Kind: c.kind}
	}
	return specs
}

// Col returns the named column. It panics with an "unknown column" message
// on a miss; inside the sandbox that panic is classified as a runtime
// failure with a column-name hint.
func (f *Frame) Col(name string) *Column {
	i, ok := f.index[name]
	if !ok {
		panic(fmt.Sprintf("unknown column %q (have %s)", name, strings.Join(f.Columns(), ", ")))
	}
	return f.cols[i]
}

// Lookup returns the named column without panicking.
func (f *Frame) Lookup(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Levels returns the distinct non-missing values of a column in
// first-appearance order.
func (f *Frame) Levels(name string) []string {
	c := f.Col(name)
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < c.Len(); i++ {
		if c.missing[i] {
			continue
		}
		v := c.cell(i)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Filter returns a new frame containing the rows where the named column
// equals value. Values are compared through their text rendering, so both
// Filter("group", "A") and Filter("dose", 10) work.
func (f *Frame) Filter(name string, value any) *Frame {
	c := f.Col(name)
	want := renderValue(value)
	var keep []int
	for i := 0; i < c.Len(); i++ {
		if !c.missing[i] && c.cell(i) == want {
			keep = append(keep, i)
		}
	}
	return f.take(keep)
}

// take builds a new frame from the given row indices.
func (f *Frame) take(rows []int) *Frame {
	out := &Frame{index: make(map[string]int), rows: len(rows)}
	for _, c := range f.cols {
		nc := &Column{name: c.name, kind: c.kind, missing: make([]bool, len(rows))}
		switch c.kind {
		case Numeric:
			nc.floats = make([]float64, len(rows))
		case Boolean:
			nc.bools = make([]bool, len(rows))
		case Datetime:
			nc.times = make([]time.Time, len(rows))
			nc.strs = make([]string, len(rows))
		default:
			nc.strs = make([]string, len(rows))
		}
		for j, i := range rows {
			nc.missing[j] = c.missing[i]
			switch c.kind {
			case Numeric:
				nc.floats[j] = c.floats[i]
			case Boolean:
				nc.bools[j] = c.bools[i]
			case Datetime:
				nc.times[j] = c.times[i]
				nc.strs[j] = c.strs[i]
			default:
				nc.strs[j] = c.strs[i]
			}
		}
		out.index[nc.name] = len(out.cols)
		out.cols = append(out.cols, nc)
	}
	return out
}

// Describe returns a one-line-per-column text summary, the shape generated
// code tends to print first.
func (f *Frame) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows x %d columns\n", f.rows, len(f.cols))
	for _, c := range f.cols {
		switch c.kind {
		case Numeric:
			vals := c.Float()
			if len(vals) == 0 {
				fmt.Fprintf(&b, "%s (numeric): all missing\n", c.name)
				continue
			}
			mean := stats.Mean(vals)
			fmt.Fprintf(&b, "%s (numeric): n=%d mean=%.4g min=%.4g max=%.4g\n",
				c.name, len(vals), mean, stats.Min(vals), stats.Max(vals))
		default:
			fmt.Fprintf(&b, "%s (%s): %d levels\n", c.name, c.kind, len(f.Levels(c.name)))
		}
	}
	return b.String()
}

func renderValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case int:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case int64:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// sortedKeys returns the column names of a record in deterministic order.
// Uploads arrive as JSON objects, which carry no key order, so frames use
// lexical order throughout.
func sortedKeys(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
