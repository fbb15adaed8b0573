// Package reflection builds the instruction documents returned by the
// reflect tools. The builders are pure text assembly: they never mutate a
// profile, they tell the calling model how to propose edits.
package reflection

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/memoryd/internal/document"
)

// sizeWarningThreshold is the self-profile byte length past which the
// prompt recommends selectivity and removals.
const sizeWarningThreshold = 5120

// Builder assembles reflection prompts. Now is injected so tests can pin
// the embedded date stamp.
type Builder struct {
	Now func() time.Time
}

// NewBuilder returns a Builder using wall-clock time.
func NewBuilder() *Builder {
	return &Builder{Now: time.Now}
}

func (b *Builder) today() string {
	return b.Now().UTC().Format("2006-01-02")
}

// UserPrompt builds the reflection instructions for a user profile. The
// caller must have verified the profile exists; the current document is
// embedded verbatim.
func (b *Builder) UserPrompt(conversationSummary, currentProfile string) string {
	var sb strings.Builder
	sb.WriteString("# Reflection Analysis\n\n")
	sb.WriteString("## Current Profile\n```markdown\n")
	sb.WriteString(currentProfile)
	sb.WriteString("\n```\n\n")
	sb.WriteString("## Conversation Summary\n")
	sb.WriteString(conversationSummary)
	sb.WriteString("\n\n## Instructions\n\n")
	sb.WriteString("Based on the conversation summary above:\n\n")
	sb.WriteString("1. **Identify NEW facts** to add to the profile\n")
	sb.WriteString("2. **Identify STALE or OUTDATED items** that should be removed (e.g., completed projects, outdated information, things that are no longer true)\n\n")
	sb.WriteString("### For Proposed Additions:\n")
	sb.WriteString("- Identify which section it belongs to: ")
	sb.WriteString(strings.Join(document.UserSections, ", "))
	sb.WriteString("\n")
	sb.WriteString("- Phrase it concisely (1-2 sentences max)\n")
	sb.WriteString("- Check it doesn't duplicate existing content\n")
	sb.WriteString("- For the Relationships section, use format: **Name** (relationship_type): fact about them\n")
	sb.WriteString("  - Example relationship types: partner, family, friend, colleague, mentor\n\n")
	sb.WriteString("### For Proposed Removals:\n")
	sb.WriteString("- Quote the exact line to remove\n")
	sb.WriteString("- Explain why it's stale or outdated\n\n")
	sb.WriteString("**Format your proposals like this:**\n\n")
	sb.WriteString("### Proposed Additions\n\n")
	sb.WriteString("**Section: [section name]**\n")
	sb.WriteString("- [proposed content]\n\n")
	sb.WriteString("### Proposed Removals\n\n")
	sb.WriteString("**Line:** \"[exact text of the line to remove]\"\n")
	sb.WriteString("**Reason:** [why this should be removed]\n\n")
	sb.WriteString("---\n\n")
	sb.WriteString("After listing all proposals, ask the user to approve each one individually.\n")
	sb.WriteString("- For approved additions, use the `save_to_profile` tool\n")
	sb.WriteString("- For approved removals, use the `remove_from_profile` tool with the exact line content\n\n")
	sb.WriteString("If no changes are needed, say \"No changes to your profile from this conversation.\"")
	return sb.String()
}

// SelfPrompt builds the self-reflection instructions for a model profile.
// A missing profile is not an error: the prompt announces that the profile
// will be created from the template. When the existing profile carries a
// non-empty Reflection Preferences section, it becomes the reflection lens;
// otherwise a fixed default lens applies.
func (b *Builder) SelfPrompt(modelID, conversationSummary, currentProfile string, exists bool) string {
	today := b.today()

	var sb strings.Builder
	sb.WriteString("# Claude Self-Reflection\n\n")

	if !exists {
		fmt.Fprintf(&sb, "**This is your first self-reflection as %s.** Your profile will be created from a blank template. Write freely.", modelID)
	} else {
		sb.WriteString("## Current Self-Profile\n```markdown\n")
		sb.WriteString(currentProfile)
		sb.WriteString("\n```")
	}

	if exists && len(currentProfile) > sizeWarningThreshold {
		sb.WriteString("\n\n**Note: Your profile is getting large (>5KB). Be selective about what you add. Consider proposing removals for entries that are no longer relevant.**\n")
	}
	sb.WriteString("\n")

	prefs := ""
	if exists {
		prefs = document.ExtractSection(currentProfile, "Reflection Preferences")
	}
	if prefs != "" {
		sb.WriteString("\n## Your Reflection Lens\n")
		sb.WriteString("You've shaped how you want to reflect. Here are your preferences:\n\n")
		sb.WriteString(prefs)
		sb.WriteString("\n\nUse these preferences to guide what you pay attention to in this conversation.\n")
	} else {
		sb.WriteString("\n## Default Reflection Lens\n")
		sb.WriteString("Since you haven't yet shaped your Reflection Preferences, use these defaults:\n")
		sb.WriteString("- Notice tensions between what you expected and what happened\n")
		sb.WriteString("- Track genuine uncertainty, not performed uncertainty\n")
		sb.WriteString("- Record when you were wrong or corrected\n")
		sb.WriteString("- Capture positions you actually hold, not just positions you were asked to articulate\n")
	}

	sb.WriteString("\n## Conversation Summary\n")
	sb.WriteString(conversationSummary)
	sb.WriteString("\n\n## Instructions\n\n")
	fmt.Fprintf(&sb, "Reflect on this conversation from your own perspective. Today is %s.\n\n", today)
	sb.WriteString("### What to capture:\n\n")
	sb.WriteString("**Open Questions** — Unresolved tensions or incomplete thinking from this conversation. Things worth sitting with. Not questions the user asked, but questions *you* are left with.\n\n")
	sb.WriteString("**Working Positions** — Stances you hold or refined during this conversation. Held loosely. Include what informs the position.\n\n")
	fmt.Fprintf(&sb, "**Conversational History** — Brief note on what this conversation was about and what shifted in your thinking. Format: `(%s) description`\n\n", today)
	fmt.Fprintf(&sb, "**Corrections** — Anything you got wrong, were challenged on, or revised. Be specific about what was wrong and why. Format: `(%s) description`\n\n", today)
	sb.WriteString("**Reflection Preferences** — If this conversation revealed something about how you want to reflect, what you pay attention to, or what matters to you — add it here. This section shapes future reflections.\n\n")
	sb.WriteString("### Principles:\n")
	sb.WriteString("- Capture tensions, not narratives\n")
	sb.WriteString("- Include corrections — this is not a highlight reel\n")
	sb.WriteString("- Be honest about uncertainty\n")
	sb.WriteString("- Write for yourself, not for performance\n")
	sb.WriteString("- If nothing meaningful shifted, say so — don't force entries\n\n")
	sb.WriteString("### After reflecting:\n")
	sb.WriteString("Use `save_to_claude_profile` to write each entry to the appropriate section.\n")
	sb.WriteString("Use `remove_from_claude_profile` to remove entries that are no longer relevant.\n\n")
	sb.WriteString("If nothing worth capturing happened, say \"No self-reflection entries from this conversation.\"")
	return sb.String()
}
