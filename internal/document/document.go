// Package document implements section-addressable editing of markdown
// profile documents. Sections are introduced by "## <Name>" headers; the
// editor appends bullet entries at the end of a section and removes lines
// by exact match.
//
// Matching is deliberately substring-based (not line-anchored) and removal
// is first-occurrence-only. Callers that need stricter parsing should go
// through this package so the policy lives in one place.
package document

import (
	"fmt"
	"regexp"
	"strings"
)

// Span is the content range of a section: everything after the header line
// up to the next "\n## " header or end of document.
type Span struct {
	Start int
	End   int
}

// SectionNotFoundError indicates the document has no "## <Section>" header.
type SectionNotFoundError struct {
	Section string
}

func (e *SectionNotFoundError) Error() string {
	return fmt.Sprintf("section %q not found in profile", e.Section)
}

// LineNotFoundError indicates neither "- <Line>" nor the bare line occurs
// in the document.
type LineNotFoundError struct {
	Line string
}

func (e *LineNotFoundError) Error() string {
	return fmt.Sprintf("line %q not found in profile", e.Line)
}

var nextHeader = "\n## "

var htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)

// LocateSection finds the content span of the named section.
func LocateSection(doc, section string) (Span, error) {
	header := "## " + section
	idx := strings.Index(doc, header)
	if idx == -1 {
		return Span{}, &SectionNotFoundError{Section: section}
	}
	start := idx + len(header)
	end := len(doc)
	if next := strings.Index(doc[start:], nextHeader); next != -1 {
		end = start + next
	}
	return Span{Start: start, End: end}, nil
}

// AppendBullet inserts "\n- <content>" at the end of the section's content
// span, i.e. immediately before the next header or end of document. The
// input document is not modified; the caller persists the returned text.
func AppendBullet(doc, section, content string) (string, error) {
	span, err := LocateSection(doc, section)
	if err != nil {
		return "", err
	}
	return doc[:span.End] + "\n- " + content + doc[span.End:], nil
}

// RemoveLine removes the first occurrence of the bullet "- <content>", or,
// if no bullet matches, the first occurrence of the bare content. The
// matched text is removed together with one trailing newline when present.
func RemoveLine(doc, content string) (string, error) {
	bullet := "- " + content
	var line string
	switch {
	case strings.Contains(doc, bullet):
		line = bullet
	case strings.Contains(doc, content):
		line = content
	default:
		return "", &LineNotFoundError{Line: content}
	}

	withNewline := line + "\n"
	if strings.Contains(doc, withNewline) {
		return strings.Replace(doc, withNewline, "", 1), nil
	}
	// Line sits at end of document without a trailing newline.
	return strings.Replace(doc, line, "", 1), nil
}

// ExtractSection returns the section's content with HTML comment blocks
// stripped and surrounding whitespace trimmed. A missing header yields an
// empty string rather than an error; this is the advisory, read-only
// counterpart of LocateSection.
func ExtractSection(doc, section string) string {
	span, err := LocateSection(doc, section)
	if err != nil {
		return ""
	}
	content := htmlComment.ReplaceAllString(doc[span.Start:span.End], "")
	return strings.TrimSpace(content)
}
