// Package wallpaper sets a local image file as the desktop background.
// One implementation exists per supported platform, selected at build time.
package wallpaper

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Apply on platforms without a wallpaper
// implementation.
var ErrUnsupported = errors.New("wallpaper: unsupported platform")

// Applier sets the image at a local path as the desktop background.
// Failures are expected to be logged and retried on the next completed
// pollen, never to abort the polling loop.
type Applier interface {
	Apply(ctx context.Context, path string) error
}
