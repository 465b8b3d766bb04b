//go:build windows

package wallpaper

import (
	"context"
	"fmt"
	"syscall"
	"time"
	"unsafe"
)

var (
	user32               = syscall.NewLazyDLL("user32.dll")
	systemParametersInfo = user32.NewProc("SystemParametersInfoW")
)

const (
	spiSetDeskWallpaper = 0x0014
	spifUpdateIniFile   = 0x01
	spifSendChange      = 0x02

	// applyDelay lets the freshly renamed file settle before the shell reads
	// it; without it the desktop occasionally flashes to black.
	applyDelay = 100 * time.Millisecond
)

type windowsApplier struct{}

// New returns the Windows applier, backed by SystemParametersInfoW.
func New() (Applier, error) { return windowsApplier{}, nil }

func (windowsApplier) Apply(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(applyDelay):
	}
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	r, _, callErr := systemParametersInfo.Call(
		spiSetDeskWallpaper, 0, uintptr(unsafe.Pointer(p)), spifUpdateIniFile|spifSendChange,
	)
	if r == 0 {
		return fmt.Errorf("SystemParametersInfoW: %w", callErr)
	}
	return nil
}
