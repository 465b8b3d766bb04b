package service

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"text/template"
)

// Options parameterizes a generated service descriptor.
type Options struct {
	// Platform selects the descriptor flavor: linux, darwin or windows.
	// Empty means the current platform.
	Platform string
	// Executable is the absolute path of the pollenwall binary.
	Executable string
	// Args are passed to the executable by the service.
	Args []string
}

const systemdUnit = `[Unit]
Description=pollenwall - AI pollen wallpapers
Documentation=https://pollinations.ai
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.Executable}}{{range .Args}} {{quoteArg .}}{{end}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target
`

const launchdPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>ai.pollinations.pollenwall</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{xmlEscape .Executable}}</string>
{{- range .Args}}
		<string>{{xmlEscape .}}</string>
{{- end}}
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>ProcessType</key>
	<string>Background</string>
</dict>
</plist>
`

const scheduledTask = `<?xml version="1.0" encoding="UTF-16"?>
<Task version="1.2" xmlns="http://schemas.microsoft.com/windows/2004/02/mit/task">
  <RegistrationInfo>
    <Description>pollenwall - AI pollen wallpapers</Description>
  </RegistrationInfo>
  <Triggers>
    <LogonTrigger>
      <Enabled>true</Enabled>
    </LogonTrigger>
  </Triggers>
  <Principals>
    <Principal id="Author">
      <LogonType>InteractiveToken</LogonType>
      <RunLevel>LeastPrivilege</RunLevel>
    </Principal>
  </Principals>
  <Settings>
    <MultipleInstancesPolicy>IgnoreNew</MultipleInstancesPolicy>
    <DisallowStartIfOnBatteries>false</DisallowStartIfOnBatteries>
    <StopIfGoingOnBatteries>false</StopIfGoingOnBatteries>
    <StartWhenAvailable>true</StartWhenAvailable>
    <ExecutionTimeLimit>PT0S</ExecutionTimeLimit>
  </Settings>
  <Actions Context="Author">
    <Exec>
      <Command>{{xmlEscape .Executable}}</Command>
{{- if .Args}}
      <Arguments>{{xmlEscape (join .Args " ")}}</Arguments>
{{- end}}
    </Exec>
  </Actions>
</Task>
`

var funcs = template.FuncMap{
	"quoteArg":  quoteArg,
	"xmlEscape": xmlEscape,
	"join":      strings.Join,
}

var templates = map[string]*template.Template{
	"linux":   template.Must(template.New("systemd").Funcs(funcs).Parse(systemdUnit)),
	"darwin":  template.Must(template.New("launchd").Funcs(funcs).Parse(launchdPlist)),
	"windows": template.Must(template.New("task").Funcs(funcs).Parse(scheduledTask)),
}

// Generate renders the native autostart descriptor for the platform: a
// systemd user unit on linux, a launchd property list on darwin, and
// Scheduled Task XML on windows.
func Generate(opts Options) (string, error) {
	platform := opts.Platform
	if platform == "" {
		platform = runtime.GOOS
	}
	tmpl, ok := templates[platform]
	if !ok {
		return "", fmt.Errorf("no service descriptor for platform %q", platform)
	}
	if opts.Executable == "" {
		return "", fmt.Errorf("executable path is required")
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, opts); err != nil {
		return "", fmt.Errorf("render %s descriptor: %w", platform, err)
	}
	return b.String(), nil
}

// DefaultOptions builds Options for the current process: the running
// executable plus the args the generated service should pass to it.
func DefaultOptions(args []string) (Options, error) {
	exe, err := os.Executable()
	if err != nil {
		return Options{}, fmt.Errorf("resolve executable: %w", err)
	}
	return Options{Platform: runtime.GOOS, Executable: exe, Args: args}, nil
}

// InstallHint returns a one-line instruction for installing the descriptor,
// or "" for unknown platforms.
func InstallHint(platform string) string {
	switch platform {
	case "linux":
		return "save to ~/.config/systemd/user/pollenwall.service, then: systemctl --user daemon-reload && systemctl --user enable --now pollenwall"
	case "darwin":
		return "save to ~/Library/LaunchAgents/ai.pollinations.pollenwall.plist, then: launchctl load -w ~/Library/LaunchAgents/ai.pollinations.pollenwall.plist"
	case "windows":
		return "save to pollenwall-task.xml, then: schtasks /Create /TN pollenwall /XML pollenwall-task.xml"
	default:
		return ""
	}
}

// quoteArg quotes a systemd ExecStart argument when it needs it.
func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'\\") {
		return strconv.Quote(s)
	}
	return s
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
