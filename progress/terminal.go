package progress

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const (
	labelWidth = 40
	barWidth   = 30

	gradientStart = "#7367F0"
	gradientEnd   = "#8854D0"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#546E7A"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F07178"))
)

// Terminal draws one progress line per task. With live set, the line of
// a running task is redrawn in place; otherwise only finished tasks are
// printed.
type Terminal struct {
	w    io.Writer
	bar  progress.Model
	live bool
}

// NewTerminal renders to w. Pass live when w is an interactive terminal.
func NewTerminal(w io.Writer, live bool) *Terminal {
	return &Terminal{
		w: w,
		bar: progress.New(
			progress.WithGradient(gradientStart, gradientEnd),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		),
		live: live,
	}
}

func (t *Terminal) Update(task Task) {
	line := t.Render(task)
	if task.Status == Downloading {
		if t.live {
			fmt.Fprintf(t.w, "\r\033[K%s", line)
		}
		return
	}
	if t.live {
		fmt.Fprint(t.w, "\r\033[K")
	}
	fmt.Fprintln(t.w, line)
}

// Render formats a task as a single line.
func (t *Terminal) Render(task Task) string {
	var b strings.Builder
	b.WriteString(statusIcon(task.Status))
	b.WriteString(" ")
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", labelWidth, truncate(task.Label, labelWidth))))
	b.WriteString(" ")
	b.WriteString(t.bar.ViewAs(task.Fraction()))
	b.WriteString(" ")
	b.WriteString(countStyle.Render(fmt.Sprintf("%d/%d", task.Done, task.Total)))
	if task.Err != nil && task.Status == Failed {
		b.WriteString(" ")
		b.WriteString(errorStyle.Render(task.Err.Error()))
	}
	return b.String()
}

func statusIcon(s Status) string {
	switch s {
	case Downloading:
		return "⬇️"
	case Completed:
		return "✅"
	case Cancelled:
		return "🚫"
	case Failed:
		return "❌"
	default:
		return "❓"
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
