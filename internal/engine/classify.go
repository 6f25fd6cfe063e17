package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/traefik/yaegi/interp"

	"github.com/vitalstat/vitalstat/internal/domain"
)

// Interpreter messages that identify a package the sandbox refused to
// resolve, either at import or at name lookup.
var (
	missingImportRe = regexp.MustCompile(`unable to find source related to: "?([^"\s]+)"?`)
	undefinedRe     = regexp.MustCompile(`undefined: ([A-Za-z_][A-Za-z0-9_./]*)`)
)

// classifyEvalError maps an interpreter failure into the error taxonomy.
// Nothing crosses the worker boundary unclassified: anything unrecognized
// becomes a runtime failure with a remediation hint.
func classifyEvalError(err error) *domain.Error {
	var p interp.Panic
	if errors.As(err, &p) {
		return domain.NewError(domain.KindRuntimeFailure, panicMessage(p.Value))
	}

	msg := err.Error()

	if m := missingImportRe.FindStringSubmatch(msg); m != nil {
		return denial(strings.Trim(m[1], `"`))
	}
	if m := undefinedRe.FindStringSubmatch(msg); m != nil {
		if _, denied := deniedCapabilities[m[1]]; denied {
			return denial(m[1])
		}
		return domain.NewError(domain.KindRuntimeFailure, msg)
	}
	if isSyntaxMessage(msg) {
		return domain.NewError(domain.KindSyntax, msg)
	}
	return domain.NewError(domain.KindRuntimeFailure, msg)
}

// deniedIdentifiers maps the selector identifier of each blocked package
// back to its import path, so a bare `os.Open` is attributable without an
// import clause in sight.
var deniedIdentifiers = func() map[string]string {
	m := make(map[string]string, len(deniedCapabilities))
	for pkg := range deniedCapabilities {
		ident := pkg
		if i := strings.LastIndex(pkg, "/"); i >= 0 {
			ident = pkg[i+1:]
		}
		m[ident] = pkg
	}
	return m
}()

var selectorRe = regexp.MustCompile(`(?m)(^|[^.\w])([A-Za-z_][A-Za-z0-9_]*)\.`)

// scanDenied rejects code that imports or references a blocked package
// before it reaches the interpreter. Denials must be reported as such: the
// interpreter's own failure shapes for these cases (declaration-mode parse
// errors, internal nil dereferences) are useless to the researcher.
func scanDenied(code string) *domain.Error {
	for _, pkg := range importedPaths(code) {
		if _, ok := deniedCapabilities[pkg]; ok {
			return denial(pkg)
		}
	}
	for _, m := range selectorRe.FindAllStringSubmatch(code, -1) {
		if pkg, ok := deniedIdentifiers[m[2]]; ok {
			return denial(pkg)
		}
	}
	return nil
}

// importedPaths collects the quoted paths of every import clause in code,
// single-line and block form.
func importedPaths(code string) []string {
	var paths []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case inBlock:
			if strings.HasPrefix(t, ")") {
				inBlock = false
				continue
			}
			if p, ok := quotedPath(t); ok {
				paths = append(paths, p)
			}
		case strings.HasPrefix(t, "import ("):
			inBlock = true
			if p, ok := quotedPath(t); ok {
				paths = append(paths, p)
			}
		case strings.HasPrefix(t, "import ") || strings.HasPrefix(t, "import\t"):
			if p, ok := quotedPath(t); ok {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// quotedPath extracts the first double-quoted string on a line, skipping any
// import alias in front of it.
func quotedPath(s string) (string, bool) {
	i := strings.IndexByte(s, '"')
	if i < 0 {
		return "", false
	}
	j := strings.IndexByte(s[i+1:], '"')
	if j < 0 {
		return "", false
	}
	return s[i+1 : i+1+j], true
}

// denial reports a blocked package by the capability it would have granted.
func denial(pkg string) *domain.Error {
	if capability, ok := deniedCapabilities[pkg]; ok {
		return domain.NewError(domain.KindCapabilityDenied,
			fmt.Sprintf("package %q (%s) is not permitted in the sandbox", pkg, capability))
	}
	return domain.NewError(domain.KindCapabilityDenied,
		fmt.Sprintf("package %q is not available in the sandbox", pkg))
}

func panicMessage(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(v)
}

// isSyntaxMessage recognizes go/scanner and go/parser diagnostics, which is
// what yaegi reports when code still fails to parse after normalization.
func isSyntaxMessage(msg string) bool {
	for _, marker := range []string{
		"expected ",
		"expected;",
		"illegal character",
		"illegal rune literal",
		"string literal not terminated",
		"rune literal not terminated",
		"comment not terminated",
		"non-declaration statement",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
