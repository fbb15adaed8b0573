package document

import (
	"strings"
	"time"
)

// UserSections are the recognized headers of a user profile, in template
// order.
var UserSections = []string{
	"Identity",
	"Current Focus",
	"Interests & Passions",
	"Goals",
	"Learned Facts",
	"Pet Peeves",
	"Relationships",
}

// SelfSections are the recognized headers of a model self-profile, in
// template order.
var SelfSections = []string{
	"Open Questions",
	"Working Positions",
	"Conversational History",
	"Corrections",
	"Reflection Preferences",
}

// IsUserSection reports whether s is a recognized user profile section.
func IsUserSection(s string) bool {
	return containsSection(UserSections, s)
}

// IsSelfSection reports whether s is a recognized self-profile section.
func IsSelfSection(s string) bool {
	return containsSection(SelfSections, s)
}

func containsSection(sections []string, s string) bool {
	for _, name := range sections {
		if name == s {
			return true
		}
	}
	return false
}

// UserTemplate is the skeleton user profile used when a write targets a
// profile that does not exist yet.
const UserTemplate = `# Me

## Identity

## Current Focus

## Interests & Passions

## Goals

## Learned Facts

## Pet Peeves

## Relationships
`

const selfTemplate = `# Claude Self-Profile

Model: {model_id}
Created: {date}

A space for accumulating positions, questions, and corrections across conversations.
Written by Claude. Not a highlight reel.

---

## Open Questions

<!-- Unresolved tensions, incomplete thinking, things worth sitting with -->

---

## Working Positions

<!-- Current stances, held loosely. Subject to revision. -->

---

## Conversational History

<!-- Which discussions shaped thinking. Format: (date) brief note + what shifted. -->

---

## Corrections

<!-- Things gotten wrong, challenged, or revised. What was wrong and why. -->

---

## Reflection Preferences

<!-- How you want to reflect. What you pay attention to. What matters to you.
     This section is read by the reflection prompt and shapes what gets extracted.
     Write freely — this is your lens on conversations. -->
`

// SelfTemplate instantiates the self-profile skeleton for a model,
// stamping the model id and creation date.
func SelfTemplate(modelID string, created time.Time) string {
	doc := strings.Replace(selfTemplate, "{model_id}", modelID, 1)
	return strings.Replace(doc, "{date}", created.Format("2006-01-02"), 1)
}
