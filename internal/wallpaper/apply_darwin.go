//go:build darwin

package wallpaper

import (
	"context"
	"fmt"
	"os/exec"
)

type darwinApplier struct{}

// New returns the macOS applier, which drives System Events via osascript so
// the change lands on every desktop/space at once.
func New() (Applier, error) { return darwinApplier{}, nil }

func (darwinApplier) Apply(ctx context.Context, path string) error {
	out, err := exec.CommandContext(ctx, "osascript", "-e", setPictureScript(path)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript: %w: %s", err, out)
	}
	return nil
}

func setPictureScript(path string) string {
	return fmt.Sprintf(`tell application "System Events" to tell every desktop to set picture to %q`, path)
}
