package reflection

import (
	"strings"
	"testing"
	"time"
)

func fixedBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{Now: func() time.Time {
		return time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	}}
}

func TestUserPrompt_EmbedsProfileAndSummary(t *testing.T) {
	b := fixedBuilder(t)
	profile := "# Me\n\n## Goals\n- Learn Rust\n"
	out := b.UserPrompt("We discussed marathon training.", profile)

	if !strings.Contains(out, profile) {
		t.Error("current profile not embedded verbatim")
	}
	if !strings.Contains(out, "We discussed marathon training.") {
		t.Error("conversation summary not embedded")
	}
	if !strings.Contains(out, "Identity, Current Focus, Interests & Passions, Goals, Learned Facts, Pet Peeves, Relationships") {
		t.Error("section list missing or reordered")
	}
	if !strings.Contains(out, "**Name** (relationship_type): fact about them") {
		t.Error("relationships format rule missing")
	}
	if !strings.HasSuffix(out, `say "No changes to your profile from this conversation."`) {
		t.Errorf("fallback line missing, prompt ends: %q", out[len(out)-80:])
	}
}

func TestUserPrompt_Deterministic(t *testing.T) {
	b := fixedBuilder(t)
	a := b.UserPrompt("summary", "profile")
	c := b.UserPrompt("summary", "profile")
	if a != c {
		t.Error("prompt not deterministic under a fixed clock")
	}
}

func TestSelfPrompt_FirstReflection(t *testing.T) {
	b := fixedBuilder(t)
	out := b.SelfPrompt("claude-opus-4-6", "First chat.", "", false)

	if !strings.Contains(out, "**This is your first self-reflection as claude-opus-4-6.**") {
		t.Error("first-reflection framing missing")
	}
	if !strings.Contains(out, "## Default Reflection Lens") {
		t.Error("default lens missing on first reflection")
	}
	if strings.Contains(out, "## Current Self-Profile") {
		t.Error("unexpected current-profile block on first reflection")
	}
}

func TestSelfPrompt_CustomLens(t *testing.T) {
	b := fixedBuilder(t)
	profile := "# Claude Self-Profile\n\n## Reflection Preferences\n\n<!-- lens -->\n- Watch for hedging\n"
	out := b.SelfPrompt("claude-opus-4-6", "s", profile, true)

	if !strings.Contains(out, "## Your Reflection Lens") {
		t.Error("custom lens heading missing")
	}
	if !strings.Contains(out, "- Watch for hedging") {
		t.Error("lens content not injected")
	}
	if strings.Contains(out, "<!-- lens -->") {
		t.Error("HTML comment leaked into lens")
	}
	if strings.Contains(out, "## Default Reflection Lens") {
		t.Error("default lens present despite custom preferences")
	}
}

func TestSelfPrompt_EmptyPrefsFallsBackToDefault(t *testing.T) {
	b := fixedBuilder(t)
	profile := "# Claude Self-Profile\n\n## Reflection Preferences\n\n<!-- only a comment -->\n"
	out := b.SelfPrompt("claude-opus-4-6", "s", profile, true)
	if !strings.Contains(out, "## Default Reflection Lens") {
		t.Error("expected default lens when preferences are empty after comment stripping")
	}
}

func TestSelfPrompt_SizeWarningBoundary(t *testing.T) {
	b := fixedBuilder(t)
	warning := "Your profile is getting large"

	atLimit := strings.Repeat("a", 5120)
	if out := b.SelfPrompt("m", "s", atLimit, true); strings.Contains(out, warning) {
		t.Error("warning present at exactly 5120 bytes")
	}
	overLimit := strings.Repeat("a", 5121)
	if out := b.SelfPrompt("m", "s", overLimit, true); !strings.Contains(out, warning) {
		t.Error("warning missing above 5120 bytes")
	}
}

func TestSelfPrompt_DateStamps(t *testing.T) {
	b := fixedBuilder(t)
	out := b.SelfPrompt("m", "s", "", false)
	if !strings.Contains(out, "Today is 2026-08-28.") {
		t.Error("instruction date missing")
	}
	if strings.Count(out, "`(2026-08-28) description`") != 2 {
		t.Error("dated-entry format examples missing")
	}
	if !strings.HasSuffix(out, `say "No self-reflection entries from this conversation."`) {
		t.Error("fallback line missing")
	}
}
