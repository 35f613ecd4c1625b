// Package clipboard copies formatted citations to the system clipboard via
// the platform's copy command.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrClipboardUnavailable is returned when no copy command is installed.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// copyCommand is a program that reads clipboard content from stdin.
type copyCommand struct {
	name string
	args []string
}

// candidates lists copy commands per OS in order of preference.
var candidates = map[string][]copyCommand{
	"darwin": {{name: "pbcopy"}},
	"linux": {
		{name: "wl-copy"},
		{name: "xclip", args: []string{"-selection", "clipboard"}},
		{name: "xsel", args: []string{"--clipboard", "--input"}},
	},
	"windows": {{name: "clip"}},
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// findCommand returns the first installed copy command for goos.
func findCommand(goos string) (copyCommand, error) {
	for _, c := range candidates[goos] {
		if _, err := lookPath(c.name); err == nil {
			return c, nil
		}
	}
	return copyCommand{}, ErrClipboardUnavailable
}

// IsAvailable reports whether a copy command is installed.
func IsAvailable() bool {
	_, err := findCommand(runtime.GOOS)
	return err == nil
}

// Copy writes text to the system clipboard.
func Copy(ctx context.Context, text string) error {
	c, err := findCommand(runtime.GOOS)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
