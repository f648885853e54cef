package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const barWidth = 30

// Console renders progress as styled lines on a terminal and cancels the run
// on SIGINT.
type Console struct {
	*Tracker

	out io.Writer

	mu       sync.Mutex
	lastText string
	lastPct  int

	messageStyle lipgloss.Style
	barStyle     lipgloss.Style
	logStyle     lipgloss.Style
	warnStyle    lipgloss.Style
}

// NewConsole returns a console sink writing to out (os.Stderr when nil).
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stderr
	}
	return &Console{
		Tracker: NewTracker(),
		out:     out,
		lastPct: -1,
		messageStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		barStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		warnStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("11")),
	}
}

// ReportProgress records the update and prints a line when the message
// changes or the whole percentage advances.
func (c *Console) ReportProgress(message string, fraction float64) {
	c.Tracker.ReportProgress(message, fraction)

	pct := int(clamp(fraction) * 100)
	label := messageLabel(message)

	c.mu.Lock()
	defer c.mu.Unlock()
	if label == c.lastText && pct == c.lastPct {
		return
	}
	c.lastText = label
	c.lastPct = pct

	fmt.Fprintf(c.out, "%s %s %3d%%\n",
		c.barStyle.Render(bar(fraction)),
		c.messageStyle.Render(message),
		pct)
}

// Log prints a dimmed diagnostic line and mirrors it to slog.
func (c *Console) Log(message string) {
	c.Tracker.Log(message)
	slog.Info("setup_log", "message", message)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.logStyle.Render(message))
}

// WatchInterrupt cancels the run when the process receives SIGINT. The
// returned function stops watching.
func (c *Console) WatchInterrupt(ctx context.Context) func() {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	go func() {
		<-ctx.Done()
		if c.Done() {
			return
		}
		c.Cancel()
		c.mu.Lock()
		fmt.Fprintln(c.out, c.warnStyle.Render("Cancelling setup..."))
		c.mu.Unlock()
	}()
	return func() {
		c.Finish()
		stop()
	}
}

// messageLabel strips the running counter from messages like
// "Unpacking archive: 3/10" so every step does not force a new line.
func messageLabel(message string) string {
	if i := strings.LastIndex(message, ":"); i >= 0 {
		return message[:i]
	}
	return message
}

func bar(fraction float64) string {
	filled := int(clamp(fraction) * barWidth)
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled) + "]"
}
