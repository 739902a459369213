package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var interaction struct {
	mu     sync.Mutex
	set    bool
	active bool
}

// ConfigureInteraction decides once whether output gets colors and
// in-place redraws. Pass plain to force line-oriented output regardless
// of the terminal.
func ConfigureInteraction(plain bool) {
	active := !plain && terminalWantsInteraction()

	interaction.mu.Lock()
	interaction.set = true
	interaction.active = active
	interaction.mu.Unlock()

	profile := termenv.Ascii
	if active {
		profile = termenv.ColorProfile()
	}
	lipgloss.SetColorProfile(profile)
}

// IsInteractive reports whether in-place redraw output is enabled,
// self-configuring on first use.
func IsInteractive() bool {
	interaction.mu.Lock()
	set, active := interaction.set, interaction.active
	interaction.mu.Unlock()
	if set {
		return active
	}

	ConfigureInteraction(false)
	return IsInteractive()
}

func IsNoInteraction() bool { return !IsInteractive() }

// terminalWantsInteraction applies the conventional opt-outs: NO_COLOR
// and CLICOLOR=0 (through termenv), CI pipelines, dumb terminals, and
// anything where stderr is not a terminal.
func terminalWantsInteraction() bool {
	if termenv.EnvNoColor() {
		return false
	}
	if ci := strings.ToLower(strings.TrimSpace(os.Getenv("CI"))); ci != "" && ci != "0" && ci != "false" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}

	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
