//go:build !darwin && !linux && !windows

package wallpaper

import "context"

type unsupportedApplier struct{}

// New returns an applier whose every call fails with ErrUnsupported. The
// engine logs the failure and keeps polling, so artifacts still reach the
// cache on platforms without a desktop integration.
func New() (Applier, error) { return unsupportedApplier{}, nil }

func (unsupportedApplier) Apply(context.Context, string) error { return ErrUnsupported }
