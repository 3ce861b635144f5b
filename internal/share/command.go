package share

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSharer hands the payload to an external program, for example a
// desktop share helper or "xdg-open". The placeholders {url}, {title} and
// {text} in Args are substituted.
type CommandSharer struct {
	Program string
	Args    []string
}

// NewCommandSharer parses a command line such as "xdg-open {url}". An empty
// line gives nil, meaning no platform share.
func NewCommandSharer(line string) *CommandSharer {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return &CommandSharer{Program: fields[0], Args: fields[1:]}
}

func (c *CommandSharer) Share(ctx context.Context, p Payload) error {
	if c == nil || c.Program == "" {
		return ErrUnavailable
	}
	path, err := exec.LookPath(c.Program)
	if err != nil {
		return fmt.Errorf("%w: %s not found", ErrUnavailable, c.Program)
	}
	r := strings.NewReplacer("{url}", p.URL, "{title}", p.Title, "{text}", p.Text)
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}
	if len(args) == 0 {
		args = []string{p.URL}
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("share command %s: %w: %s", c.Program, err, strings.TrimSpace(string(out)))
	}
	return nil
}
