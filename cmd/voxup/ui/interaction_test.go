package ui

import (
	"testing"
	"time"
)

func TestTerminalWantsInteractionHonorsOptOuts(t *testing.T) {
	// Stderr is not a terminal under go test, so the baseline is already
	// false; each opt-out must force false before the terminal check.
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR", "")
	t.Setenv("CI", "")
	t.Setenv("TERM", "xterm-256color")

	if terminalWantsInteraction() {
		t.Fatal("test stderr should not count as a terminal")
	}

	t.Setenv("NO_COLOR", "1")
	if terminalWantsInteraction() {
		t.Fatal("NO_COLOR should disable interaction")
	}
	t.Setenv("NO_COLOR", "")

	t.Setenv("CI", "true")
	if terminalWantsInteraction() {
		t.Fatal("CI should disable interaction")
	}

	t.Setenv("CI", "false")
	t.Setenv("TERM", "dumb")
	if terminalWantsInteraction() {
		t.Fatal("TERM=dumb should disable interaction")
	}
}

func TestConfigureInteractionPlainForcesOff(t *testing.T) {
	ConfigureInteraction(true)

	if IsInteractive() {
		t.Fatal("plain mode should disable interaction")
	}
	if !IsNoInteraction() {
		t.Fatal("IsNoInteraction should mirror IsInteractive")
	}
}

func TestElapsedLabel(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{12 * time.Second, "(12s)"},
		{59 * time.Second, "(59s)"},
		{time.Minute, "(1m00s)"},
		{3*time.Minute + 7*time.Second, "(3m07s)"},
	}
	for _, tc := range cases {
		if got := elapsedLabel(tc.d); got != tc.want {
			t.Errorf("elapsedLabel(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
