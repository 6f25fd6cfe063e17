package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalstat/vitalstat/internal/domain"
	"github.com/vitalstat/vitalstat/internal/frame"
)

func TestRestrictedSymbolsSkipsNonPathKeys(t *testing.T) {
	// yaegi's symbol table carries keys without a slash (".") which must be
	// skipped, not sliced.
	assert.NotPanics(t, func() { restrictedSymbols() })

	syms := restrictedSymbols()
	assert.Contains(t, syms, "fmt/fmt")
	assert.Contains(t, syms, "strings/strings")
	assert.NotContains(t, syms, "os/os")
	assert.NotContains(t, syms, "net/http/http")
	assert.NotContains(t, syms, ".")
}

func TestNewSandboxPreludeEvaluates(t *testing.T) {
	fr, err := frame.FromRecords([]map[string]any{{"x": 1.0}})
	require.NoError(t, err)

	buf := newCaptureBuffer(1 << 10)
	i, err := newSandbox(fr, buf)
	require.NoError(t, err)

	// df and data are bound and usable right away.
	_, err = i.Eval(`fmt.Println(df.NumRows(), data.NumCols())`)
	require.NoError(t, err)
	assert.Equal(t, "1 1\n", buf.String())
}

func TestSplitLeadingImports(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		wantImports string
		wantBody    string
	}{
		{
			name:     "No imports",
			code:     "x := 1\nfmt.Println(x)",
			wantBody: "x := 1\nfmt.Println(x)",
		},
		{
			name:        "Single import",
			code:        "import \"strings\"\nfmt.Println(strings.ToUpper(\"hi\"))",
			wantImports: `import "strings"`,
			wantBody:    `fmt.Println(strings.ToUpper("hi"))`,
		},
		{
			name:        "Import block",
			code:        "import (\n\t\"strings\"\n\t\"sort\"\n)\nx := 1",
			wantImports: "import (\n\t\"strings\"\n\t\"sort\"\n)",
			wantBody:    "x := 1",
		},
		{
			name:        "Blank lines before imports",
			code:        "\nimport \"sort\"\n\nsort.Strings(nil)",
			wantImports: `import "sort"`,
			wantBody:    "sort.Strings(nil)",
		},
		{
			name:        "Imports only",
			code:        `import "strings"`,
			wantImports: `import "strings"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imports, body := splitLeadingImports(tt.code)
			assert.Equal(t, tt.wantImports, imports)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestScanDenied(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		denied   bool
		contains string
	}{
		{
			name:     "Single denied import",
			code:     "import \"os\"\nfmt.Println(os.Getenv(\"HOME\"))",
			denied:   true,
			contains: "filesystem access",
		},
		{
			name:     "Denied import inside block",
			code:     "import (\n\t\"strings\"\n\t\"net/http\"\n)\nx := 1",
			denied:   true,
			contains: "network access",
		},
		{
			name:     "Aliased denied import",
			code:     "import f \"path/filepath\"\n_ = f.Join",
			denied:   true,
			contains: "filesystem access",
		},
		{
			name:     "Bare selector without import",
			code:     `data, err := os.ReadFile("data.csv")`,
			denied:   true,
			contains: "filesystem access",
		},
		{
			name:     "Exec selector",
			code:     `out, _ := exec.Command("ls").Output()`,
			denied:   true,
			contains: "process execution",
		},
		{
			name:   "Allowed import",
			code:   "import \"strings\"\nfmt.Println(strings.ToUpper(\"hi\"))",
			denied: false,
		},
		{
			name:   "Plain analysis code",
			code:   `fmt.Println(df.Col("value").Mean())`,
			denied: false,
		},
		{
			name:   "Method call on local value",
			code:   "x := df.Filter(\"arm\", \"A\")\nfmt.Println(x.NumRows())",
			denied: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := scanDenied(tt.code)
			if !tt.denied {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, domain.KindCapabilityDenied, err.Kind)
			assert.Contains(t, err.Message, tt.contains)
		})
	}
}
