package rollup_test

import (
	"testing"

	"github.com/poltergeist/polterpack/internal/engines/rollup"
)

func TestCodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		line     int
		column   int
		lineText string
		want     string
	}{
		{
			name:     "caret under column",
			line:     3,
			column:   7,
			lineText: "import x from './missing';",
			want:     "3: import x from './missing';\n          ^",
		},
		{
			name:     "tabs preserved",
			line:     12,
			column:   2,
			lineText: "\tfoo(",
			want:     "12: \tfoo(\n    \t ^",
		},
		{
			name:     "column past end is clamped",
			line:     1,
			column:   99,
			lineText: "ab",
			want:     "1: ab\n     ^",
		},
		{
			name: "no source text",
			line: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rollup.CodeFrame(tt.line, tt.column, tt.lineText); got != tt.want {
				t.Errorf("CodeFrame() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInput(t *testing.T) {
	single := rollup.SingleInput("src/client.js")
	if single.IsNamed() || single.IsZero() {
		t.Error("single input should be unnamed and non-empty")
	}
	if got := single.Paths(); len(got) != 1 || got[0] != "src/client.js" {
		t.Errorf("unexpected paths %v", got)
	}

	named := rollup.NamedInput(map[string]string{"b": "src/b.js", "a": "src/a.js"})
	if got := named.Paths(); len(got) != 2 || got[0] != "src/a.js" {
		t.Errorf("expected paths sorted by name, got %v", got)
	}
	if named.String() != "{a=src/a.js, b=src/b.js}" {
		t.Errorf("unexpected string %q", named.String())
	}

	if !(rollup.Input{}).IsZero() {
		t.Error("zero input should report IsZero")
	}
}

func TestOutputOptions_OutDir(t *testing.T) {
	if got := (rollup.OutputOptions{Dir: "build/client"}).OutDir(); got != "build/client" {
		t.Errorf("expected dir, got %q", got)
	}
	if got := (rollup.OutputOptions{File: "build/sw.js"}).OutDir(); got != "build" {
		t.Errorf("expected parent of file, got %q", got)
	}
	if got := (rollup.OutputOptions{}).OutDir(); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
