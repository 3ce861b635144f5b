package share

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
)

// SystemClipboard writes through the OS clipboard tools (pbcopy, xclip,
// wl-copy, ...).
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("system clipboard: %w", err)
	}
	return nil
}

// TerminalClipboard asks the terminal to set the clipboard with an OSC 52
// escape sequence. Works over SSH where no system clipboard is reachable.
type TerminalClipboard struct {
	W io.Writer // nil means os.Stderr
}

func (c TerminalClipboard) WriteText(text string) error {
	w := c.W
	if w == nil {
		w = os.Stderr
	}
	seq := osc52.New(text)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	}
	if _, err := seq.WriteTo(w); err != nil {
		return fmt.Errorf("osc52: %w", err)
	}
	return nil
}

// Chain tries each clipboard in order until one succeeds.
type Chain []Clipboard

func (c Chain) WriteText(text string) error {
	var errs []error
	for _, cb := range c {
		err := cb.WriteText(text)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrUnavailable
	}
	return errors.Join(errs...)
}

// DefaultClipboard is the system clipboard with the terminal as fallback.
func DefaultClipboard() Clipboard {
	return Chain{SystemClipboard{}, TerminalClipboard{}}
}
