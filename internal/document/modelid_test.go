package document

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSanitizeModelID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Claude Opus 4.6", "claude-opus-4-6"},
		{"claude-sonnet-4-5-20250929", "claude-sonnet-4-5-20250929"},
		{"  GPT/4o  ", "gpt-4o"},
		{"--already--slugged--", "already-slugged"},
		{"...", ""},
	}
	for _, tc := range cases {
		if got := SanitizeModelID(tc.in); got != tc.want {
			t.Errorf("SanitizeModelID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeModelID_Idempotent(t *testing.T) {
	inputs := []string{"Claude Opus 4.6", "x__y", "A.B.C", "plain"}
	for _, in := range inputs {
		once := SanitizeModelID(in)
		if twice := SanitizeModelID(once); twice != once {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestValidateModelID_Empty(t *testing.T) {
	_, err := ValidateModelID("!!!")
	var invalid *InvalidModelIDError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidModelIDError, got %v", err)
	}
}

func TestSelfTemplate_Stamps(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	doc := SelfTemplate("claude-opus-4-6", created)
	if !strings.Contains(doc, "Model: claude-opus-4-6") {
		t.Errorf("model id not stamped:\n%s", doc)
	}
	if !strings.Contains(doc, "Created: 2026-03-14") {
		t.Errorf("creation date not stamped:\n%s", doc)
	}
	for _, section := range SelfSections {
		if !strings.Contains(doc, "## "+section) {
			t.Errorf("template missing section %q", section)
		}
	}
}

func TestUserTemplate_AllSections(t *testing.T) {
	for _, section := range UserSections {
		if !strings.Contains(UserTemplate, "## "+section) {
			t.Errorf("template missing section %q", section)
		}
	}
}
