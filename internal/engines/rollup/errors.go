package rollup

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

func newError(msgs []api.Message, cwd string) *Error {
	m := msgs[0]
	e := &Error{
		Code:    errorCode(m),
		Message: m.Text,
		Plugin:  m.PluginName,
		Related: len(msgs) - 1,
	}
	if m.Location != nil {
		e.Filename = absFile(cwd, m.Location.File)
		e.Line = m.Location.Line
		e.Column = m.Location.Column
		e.Frame = CodeFrame(m.Location.Line, m.Location.Column, m.Location.LineText)
	}
	return e
}

func newWarning(m api.Message, cwd string) *Warning {
	w := &Warning{
		Code:    warningCode(m),
		Message: m.Text,
		Plugin:  m.PluginName,
	}
	if m.Location != nil {
		w.ID = absFile(cwd, m.Location.File)
		w.Line = m.Location.Line
		w.Column = m.Location.Column
		w.Frame = CodeFrame(m.Location.Line, m.Location.Column, m.Location.LineText)
	}
	return w
}

func errorCode(m api.Message) string {
	switch {
	case m.PluginName != "":
		return "PLUGIN_ERROR"
	case strings.HasPrefix(m.Text, "Could not resolve"):
		return "UNRESOLVED_IMPORT"
	case strings.HasPrefix(m.Text, "No matching export"):
		return "MISSING_EXPORT"
	default:
		return "PARSE_ERROR"
	}
}

func warningCode(m api.Message) string {
	if m.ID == "" {
		return "WARNING"
	}
	return strings.ToUpper(strings.ReplaceAll(m.ID, "-", "_"))
}

func absFile(cwd, file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(cwd, filepath.FromSlash(file))
}

// CodeFrame renders the offending line with a caret under the column.
// Line is 1-based, column is 0-based. Returns "" when there is no source text.
func CodeFrame(line, column int, lineText string) string {
	if lineText == "" || line <= 0 {
		return ""
	}
	if column < 0 {
		column = 0
	}
	if column > len(lineText) {
		column = len(lineText)
	}

	gutter := fmt.Sprintf("%d: ", line)
	var b strings.Builder
	b.WriteString(gutter)
	b.WriteString(lineText)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(" ", len(gutter)))
	// keep tabs so the caret lines up under indented code
	for _, r := range lineText[:column] {
		if r == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte('^')
	return b.String()
}
