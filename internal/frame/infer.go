package frame

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts tried by the best-effort datetime pass, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// FromRecords builds a frame from uniform key-value records, inferring each
// column's kind: boolean if every non-missing value is a true/false, numeric
// if every non-missing value parses as a number, datetime as a best-effort
// second pass, categorical otherwise.
func FromRecords(rows []map[string]any) (*Frame, error) {
	return fromRecords(rows, nil)
}

// FromRecordsWithSchema builds a frame with kinds fixed by schema instead of
// inferred. Cells that fail coercion to the declared kind become missing,
// mirroring upload-time inference where every kept value is known to parse.
func FromRecordsWithSchema(rows []map[string]any, schema []Spec) (*Frame, error) {
	kinds := make(map[string]Kind, len(schema))
	for _, s := range schema {
		kinds[s.Name] = s.Kind
	}
	return fromRecords(rows, kinds)
}

func fromRecords(rows []map[string]any, kinds map[string]Kind) (*Frame, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset has no rows")
	}
	keys := sortedKeys(rows[0])
	if len(keys) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	for i, row := range rows {
		if len(row) != len(keys) {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), len(keys))
		}
		for _, k := range keys {
			if _, ok := row[k]; !ok {
				return nil, fmt.Errorf("row %d is missing column %q", i, k)
			}
		}
	}

	f := &Frame{index: make(map[string]int), rows: len(rows)}
	for _, key := range keys {
		raw := make([]any, len(rows))
		for i, row := range rows {
			raw[i] = row[key]
		}
		var kind Kind
		if k, ok := kinds[key]; ok {
			kind = k
		} else {
			kind = inferKind(raw)
		}
		f.index[key] = len(f.cols)
		f.cols = append(f.cols, buildColumn(key, kind, raw))
	}
	return f, nil
}

// inferKind decides a column's kind from its raw cells. A column with no
// non-missing values stays categorical.
func inferKind(raw []any) Kind {
	seen, allBool, allNum, allTime := false, true, true, true
	for _, v := range raw {
		if isMissing(v) {
			continue
		}
		seen = true
		if _, ok := parseBool(v); !ok {
			allBool = false
		}
		if _, ok := parseFloat(v); !ok {
			allNum = false
		}
		if _, ok := parseTime(v); !ok {
			allTime = false
		}
	}
	switch {
	case !seen:
		return Categorical
	case allBool:
		return Boolean
	case allNum:
		return Numeric
	case allTime:
		return Datetime
	default:
		return Categorical
	}
}

func buildColumn(name string, kind Kind, raw []any) *Column {
	c := &Column{name: name, kind: kind, missing: make([]bool, len(raw))}
	switch kind {
	case Numeric:
		c.floats = make([]float64, len(raw))
	case Boolean:
		c.bools = make([]bool, len(raw))
	case Datetime:
		c.times = make([]time.Time, len(raw))
		c.strs = make([]string, len(raw))
	default:
		c.strs = make([]string, len(raw))
	}
	for i, v := range raw {
		if isMissing(v) {
			c.missing[i] = true
			continue
		}
		switch kind {
		case Numeric:
			x, ok := parseFloat(v)
			c.floats[i], c.missing[i] = x, !ok
		case Boolean:
			b, ok := parseBool(v)
			c.bools[i], c.missing[i] = b, !ok
		case Datetime:
			t, ok := parseTime(v)
			c.times[i], c.missing[i] = t, !ok
			c.strs[i] = renderValue(v)
		default:
			c.strs[i] = renderValue(v)
		}
	}
	return c
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "na", "n/a", "nan", "null":
		return true
	}
	return false
}

func parseFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
