// Package banner renders the styled console lines pollenwall prints on
// stdout. Structured logs go through slog; this is the human-facing layer.
package banner

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pollinations/pollenwall/internal/engine"
)

var (
	title  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	accent = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	alert  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// Startup prints the banner shown once the engine is about to run.
func Startup(w io.Writer, version, address string, mode engine.Mode, interval time.Duration) {
	fmt.Fprintf(w, "%s %s\n", title.Render("pollenwall"), muted.Render(version))
	fmt.Fprintf(w, "  %s %s\n", muted.Render("gateway "), address)
	fmt.Fprintf(w, "  %s %s\n", muted.Render("mode    "), string(mode))
	fmt.Fprintf(w, "  %s %s\n", muted.Render("interval"), interval.String())
}

// FirstRun tells the user where the volatile cache lives the first time it
// is created.
func FirstRun(w io.Writer, dir string) {
	fmt.Fprintf(w, "%s %s\n", accent.Render("created pollen cache at"), dir)
	fmt.Fprintf(w, "  %s\n", muted.Render("everything in it is disposable and may be cleaned at any time"))
}

// Discovered announces a newly tracked pollen.
func Discovered(w io.Writer, ev engine.Event) {
	fmt.Fprintf(w, "%s %s %s\n", accent.Render("+"), ev.Pollen.ID, muted.Render(string(ev.Pollen.Status)))
}

// Applied announces a wallpaper change with the shareable gateway link.
func Applied(w io.Writer, ev engine.Event) {
	fmt.Fprintf(w, "%s %s\n", title.Render("🌸 wallpaper set"), ev.Pollen.ID)
	if ev.Link != "" {
		fmt.Fprintf(w, "  %s %s\n", muted.Render("link"), ev.Link)
	}
	fmt.Fprintf(w, "  %s %d\n", muted.Render("pollens still processing"), ev.Processing)
}

// AttachSelected announces which pollen attach mode follows.
func AttachSelected(w io.Writer, ev engine.Event) {
	fmt.Fprintf(w, "%s %s\n", accent.Render("following pollen"), ev.Pollen.ID)
	if ev.Pollen.TextInput != "" {
		fmt.Fprintf(w, "  %s %q\n", muted.Render("prompt"), ev.Pollen.TextInput)
	}
}

// AttachDone announces the followed pollen's completion.
func AttachDone(w io.Writer, ev engine.Event) {
	fmt.Fprintf(w, "%s %s\n", title.Render("✔ pollen complete"), ev.Pollen.ID)
	if ev.Link != "" {
		fmt.Fprintf(w, "  %s %s\n", muted.Render("link"), ev.Link)
	}
}

// CleanResult reports how many cached artifacts a clean removed.
func CleanResult(w io.Writer, n int) {
	fmt.Fprintf(w, "%s %d\n", accent.Render("cached artifacts removed:"), n)
}

// Fatal prints a styled error line. The exit itself is the caller's job.
func Fatal(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", alert.Render("error:"), err)
}

// Event routes an engine event to its renderer. Unknown types are ignored.
func Event(w io.Writer, ev engine.Event) {
	switch ev.Type {
	case engine.EventDiscovered:
		Discovered(w, ev)
	case engine.EventApplied:
		Applied(w, ev)
	case engine.EventAttachSelected:
		AttachSelected(w, ev)
	case engine.EventAttachDone:
		AttachDone(w, ev)
	}
}
