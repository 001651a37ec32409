// Package format renders workflow state as text: go-pretty tables for the
// shell (ASCII) and for MCP tool results (Markdown), plus small helpers for
// sizes, titles and explanation diffs.
package format

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode selects the table flavour.
type Mode int

const (
	ASCII    Mode = iota // box-drawn, captioned; printed by the shell
	Markdown             // pipe tables without caption; embedded in MCP results
)

// column is one table column: its header, alignment and wrap width.
type column struct {
	name  string
	align text.Align
	wrap  int
}

func col(name string) column            { return column{name: name} }
func right(name string) column          { return column{name: name, align: text.AlignRight} }
func wrapped(name string, n int) column { return column{name: name, wrap: n} }

// sheet is a table under construction. Every table in this package is a
// fixed set of columns, a caption shown only in ASCII, and rows.
type sheet struct {
	mode Mode
	w    table.Writer
}

func newSheet(m Mode, caption string, cols ...column) *sheet {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
		w.SetTitle(caption)
	}
	header := make(table.Row, len(cols))
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.name
		cfgs[i] = table.ColumnConfig{Number: i + 1, Align: c.align, WidthMax: c.wrap}
	}
	w.AppendHeader(header)
	w.SetColumnConfigs(cfgs)
	return &sheet{mode: m, w: w}
}

func (s *sheet) row(vals ...any)    { s.w.AppendRow(table.Row(vals)) }
func (s *sheet) footer(vals ...any) { s.w.AppendFooter(table.Row(vals)) }

func (s *sheet) String() string {
	if s.mode == Markdown {
		return s.w.RenderMarkdown()
	}
	return s.w.Render()
}

// mark flags the selected goal or chosen title in a listing.
func mark(selected bool) string {
	if selected {
		return "✓"
	}
	return ""
}

// FmtBytes formats a payload size with a binary unit.
func FmtBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/float64(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// Truncate shortens s to at most maxLen runes, ending in "..." when cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
