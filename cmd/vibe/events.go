package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/abelbrown/vibesphere/internal/otel"
)

// eventFilter selects events for display. Empty fields match anything.
type eventFilter struct {
	Kind     string // prefix, e.g. "playback"
	MinLevel string
	Comp     string
	PulseID  string
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level otel.Level) int {
	switch level {
	case otel.LevelInfo:
		return 1
	case otel.LevelWarn:
		return 2
	case otel.LevelError:
		return 3
	default:
		return 0
	}
}

func (f eventFilter) match(ev otel.Event) bool {
	if f.Kind != "" && !strings.HasPrefix(string(ev.Kind), f.Kind) {
		return false
	}
	if f.MinLevel != "" && levelRank(ev.Level) < levelRank(otel.Level(f.MinLevel)) {
		return false
	}
	if f.Comp != "" && ev.Comp != f.Comp {
		return false
	}
	if f.PulseID != "" && ev.PulseID != f.PulseID {
		return false
	}
	return true
}

func formatEvent(ev otel.Event) string {
	ts := ev.Time.Format("15:04:05.000")
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-5s] %-20s", ts, lvl, ev.Comp, ev.Kind)}

	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Index != nil {
		parts = append(parts, fmt.Sprintf("#%d", *ev.Index))
	}
	if ev.Phase != "" {
		parts = append(parts, "phase="+ev.Phase)
	}
	if ev.PulseID != "" {
		parts = append(parts, "pulse="+ev.PulseID)
	}
	if ev.Query != "" {
		parts = append(parts, fmt.Sprintf("q=%q", ev.Query))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}

	return strings.Join(parts, " ")
}

func eventsCmd() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "JSONL event log viewer",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "tail", Aliases: []string{"n"}, Value: 50, Usage: "number of recent lines to show"},
			&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "follow mode (like tail -f)"},
			&cli.StringFlag{Name: "kind", Usage: "filter by event kind prefix (e.g. 'playback')"},
			&cli.StringFlag{Name: "level", Usage: "minimum level: debug, info, warn, error"},
			&cli.StringFlag{Name: "comp", Usage: "filter by component name"},
			&cli.StringFlag{Name: "pulse", Usage: "filter by Pulse id"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON lines"},
		},
		Action: runEvents,
	}
}

func runEvents(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logPath := cfg.EventsPath()

	f, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(c.App.ErrWriter, "  Event log not found at %s\n", logPath)
		fmt.Fprintf(c.App.ErrWriter, "  Run the vibesphere TUI first to generate events.\n")
		return err
	}
	defer f.Close()

	filter := eventFilter{
		Kind:     c.String("kind"),
		MinLevel: c.String("level"),
		Comp:     c.String("comp"),
		PulseID:  c.String("pulse"),
	}
	show := func(l parsedLine) {
		if c.Bool("json") {
			fmt.Fprintln(c.App.Writer, string(l.raw))
			return
		}
		fmt.Fprintln(c.App.Writer, formatEvent(l.ev))
	}

	// Read all lines, keep last N matching
	for _, l := range readTailLines(f, c.Int("tail"), filter.match) {
		show(l)
	}
	if !c.Bool("follow") {
		return nil
	}

	// Follow mode: poll for new lines until interrupted
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			select {
			case <-c.Context.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return err
		}
		line = trimLine(line)
		if len(line) == 0 {
			continue
		}
		var ev otel.Event
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if filter.match(ev) {
			show(parsedLine{ev: ev, raw: line})
		}
	}
}

type parsedLine struct {
	ev  otel.Event
	raw []byte
}

// readTailLines reads r to the end and returns the last n lines matching the
// filter.
func readTailLines(r io.Reader, n int, match func(otel.Event) bool) []parsedLine {
	scanner := bufio.NewScanner(r)
	// Allow large lines (some events may have big Extra maps)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	var ring []parsedLine
	if n > 0 {
		ring = make([]parsedLine, 0, n)
	}

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev otel.Event
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if !match(ev) || n <= 0 {
			continue
		}
		// Make a copy of raw since scanner reuses the buffer
		rawCopy := make([]byte, len(raw))
		copy(rawCopy, raw)

		if len(ring) < n {
			ring = append(ring, parsedLine{ev: ev, raw: rawCopy})
		} else {
			// Shift left
			copy(ring, ring[1:])
			ring[n-1] = parsedLine{ev: ev, raw: rawCopy}
		}
	}

	return ring
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
