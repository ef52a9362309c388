// Package display renders colony snapshots for humans.
package display

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/talgya/foobar-colony/internal/agents"
	"github.com/talgya/foobar-colony/internal/engine"
)

// clearScreen homes the cursor and clears the terminal.
const clearScreen = "\033[H\033[2J"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#cdd6f4"))
	doneStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a6e3a1"))
)

// Row order and labels for the per-state counts.
var stateRows = []struct {
	state agents.WorkState
	label string
}{
	{agents.MiningA, "Mining A"},
	{agents.MiningB, "Mining B"},
	{agents.Processing, "Processing"},
	{agents.Shopping, "Shopping"},
	{agents.Selling, "Selling"},
	{agents.ChangingWork, "Changing work"},
	{agents.Unassigned, "Unassigned"},
}

// Format renders a snapshot as a block of text.
func Format(s engine.Snapshot) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Total agents: %d", s.Agents)))
	fmt.Fprintf(&b, "  tick %s, %d in flight\n\n", humanize.Comma(int64(s.Tick)), s.InFlight)

	counted := 0
	for _, row := range stateRows {
		n := s.ByState[row.state]
		counted += n
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-15s", row.label+":")))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%d", n)))
		b.WriteByte('\n')
	}
	if counted != s.Agents {
		slog.Warn("state counts do not cover roster", "tick", s.Tick, "counted", counted, "agents", s.Agents)
		fmt.Fprintf(&b, "(%d agents unaccounted for)\n", s.Agents-counted)
	}
	b.WriteByte('\n')

	l := s.Ledger
	fmt.Fprintf(&b, "raw A %s · raw B %s · processed %s · currency %s\n",
		humanize.Comma(int64(l.RawA)),
		humanize.Comma(int64(l.RawB)),
		humanize.Comma(int64(l.Processed)),
		humanize.Comma(int64(l.Currency)),
	)

	if s.Finished {
		b.WriteString(doneStyle.Render("Finished!"))
		b.WriteByte('\n')
	}
	return b.String()
}

// Terminal redraws the whole snapshot on every render.
type Terminal struct {
	Out   io.Writer
	Clear bool // Clear the screen before each frame

	mu sync.Mutex
}

// NewTerminal creates a terminal display writing to out.
func NewTerminal(out io.Writer, clear bool) *Terminal {
	return &Terminal{Out: out, Clear: clear}
}

// Render writes one frame. Write errors are ignored.
func (t *Terminal) Render(s engine.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame := Format(s)
	if t.Clear {
		frame = clearScreen + frame
	}
	_, _ = io.WriteString(t.Out, frame)
}

// Log reports snapshots through slog, once every Every ticks and always for
// the final snapshot.
type Log struct {
	Every uint64
}

// Render logs the snapshot if it is due.
func (l Log) Render(s engine.Snapshot) {
	if !s.Finished && (l.Every == 0 || s.Tick%l.Every != 0) {
		return
	}
	attrs := []any{
		"tick", s.Tick,
		"agents", s.Agents,
		"in_flight", s.InFlight,
		"raw_a", s.Ledger.RawA,
		"raw_b", s.Ledger.RawB,
		"processed", s.Ledger.Processed,
		"currency", s.Ledger.Currency,
	}
	for _, row := range stateRows {
		attrs = append(attrs, row.state.String(), s.ByState[row.state])
	}
	if s.Finished {
		slog.Info("colony finished", attrs...)
		return
	}
	slog.Info("colony", attrs...)
}

// Multi fans a snapshot out to several displays in order.
type Multi []engine.Display

// Render calls Render on every display.
func (m Multi) Render(s engine.Snapshot) {
	for _, d := range m {
		d.Render(s)
	}
}
