// Package normalizer repairs the superficial formatting noise that arrives
// with machine-generated code: markdown fences, stray leading blank lines,
// and mixed tab/space indentation. It never fails; irrecoverable input
// passes through unchanged and the executor reports the parse error.
package normalizer

import "strings"

// Normalize cleans src into directly executable code text. It is
// idempotent: normalizing already-normalized code returns it unchanged.
func Normalize(src string) string {
	lines := strings.Split(src, "\n")
	lines = stripFences(lines)
	lines = trimLines(lines)
	lines = normalizeIndent(lines)
	return strings.Join(lines, "\n")
}

// stripFences extracts the contents of the first fenced code block, dropping
// the delimiters and any language tag riding the opening fence. Text outside
// the fence is caller prose, not code. Input without a fence is returned
// as-is. Fence-looking lines inside raw string literals are literal content
// and never treated as delimiters.
func stripFences(lines []string) []string {
	open := -1
	inRaw := false
	for i, line := range lines {
		if !inRaw && strings.HasPrefix(strings.TrimSpace(line), "```") {
			if open == -1 {
				open = i
				continue
			}
			return append([]string(nil), lines[open+1:i]...)
		}
		inRaw = scanRaw(line, inRaw)
	}
	if open == -1 {
		return lines
	}
	// Unclosed fence: everything after the opener is code.
	return append([]string(nil), lines[open+1:]...)
}

// trimLines drops leading and trailing blank lines and strips trailing
// whitespace from every line not continuing a raw string literal.
func trimLines(lines []string) []string {
	inRaw := false
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		wasRaw := inRaw
		inRaw = scanRaw(line, inRaw)
		if !wasRaw && !inRaw {
			line = strings.TrimRight(line, " \t\r")
		}
		if len(out) == 0 && line == "" {
			continue
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// normalizeIndent re-expresses leading whitespace in tabs. The prevailing
// space unit is the smallest space-only indent seen; if any indent is not a
// multiple of it, or mixes spaces before tabs, the block is irreconcilable
// and passes through unchanged. Lines inside raw string literals keep their
// whitespace verbatim.
func normalizeIndent(lines []string) []string {
	type target struct {
		index int
		width int
	}
	var targets []target
	unit := 0

	inRaw := false
	for i, line := range lines {
		wasRaw := inRaw
		inRaw = scanRaw(line, inRaw)
		if wasRaw || line == "" {
			continue
		}
		ind := line[:indentLen(line)]
		if strings.Contains(ind, " \t") {
			return lines
		}
		if !strings.Contains(ind, "\t") && len(ind) > 0 {
			targets = append(targets, target{index: i, width: len(ind)})
			if unit == 0 || len(ind) < unit {
				unit = len(ind)
			}
		}
	}
	if unit == 0 {
		return lines
	}
	for _, t := range targets {
		if t.width%unit != 0 {
			return lines
		}
	}

	out := append([]string(nil), lines...)
	for _, t := range targets {
		line := out[t.index]
		out[t.index] = strings.Repeat("\t", t.width/unit) + line[t.width:]
	}
	return out
}

func indentLen(line string) int {
	for i := 0; i < len(line); i++ {
		if line[i] != ' ' && line[i] != '\t' {
			return i
		}
	}
	return len(line)
}

// scanRaw returns the raw-string state after line, given the state at its
// start. Double-quoted strings, rune literals, and line comments shield
// backticks from toggling the state.
func scanRaw(line string, inRaw bool) bool {
	inStr, inChar, esc := false, false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inRaw {
			if c == '`' {
				inRaw = false
			}
			continue
		}
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		if inChar {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '\'':
				inChar = false
			}
			continue
		}
		switch c {
		case '`':
			inRaw = true
		case '"':
			inStr = true
		case '\'':
			inChar = true
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return inRaw
			}
		}
	}
	return inRaw
}
