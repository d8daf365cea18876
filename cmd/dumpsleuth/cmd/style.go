package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dump-sleuth/pkg/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// table prints left-aligned columns sized to their widest cell.
type table struct {
	header []string
	rows   [][]string
	styles map[int]func(string) string
}

func newTable(header ...string) *table {
	return &table{header: header, styles: map[int]func(string) string{}}
}

func (t *table) style(col int, fn func(string) string) *table {
	t.styles[col] = fn
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := lipgloss.Width(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	line := func(cells []string, cell func(int, string) string) {
		parts := make([]string, len(widths))
		for i := range widths {
			v := ""
			if i < len(cells) {
				v = cells[i]
			}
			pad := lipgloss.NewStyle().Width(widths[i])
			if i == len(widths)-1 {
				pad = lipgloss.NewStyle()
			}
			parts[i] = pad.Render(cell(i, v))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(t.header, func(_ int, v string) string { return headStyle.Render(v) })
	for _, row := range t.rows {
		line(row, func(i int, v string) string {
			if fn, ok := t.styles[i]; ok {
				return fn(v)
			}
			return v
		})
	}
}

func status(ok bool) string {
	if ok {
		return okStyle.Render("ok")
	}
	return failStyle.Render("failed")
}

func riskStyle(r string) string {
	switch model.RiskLevel(r) {
	case model.RiskHigh:
		return failStyle.Render(r)
	case model.RiskMedium:
		return warnStyle.Render(r)
	case model.RiskLow:
		return okStyle.Render(r)
	}
	return dimStyle.Render(r)
}

func truncate(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 {
			return ' '
		}
		return r
	}, s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
