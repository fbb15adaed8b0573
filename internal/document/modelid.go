package document

import (
	"fmt"
	"regexp"
	"strings"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// InvalidModelIDError indicates a model identifier that sanitizes to an
// empty slug.
type InvalidModelIDError struct {
	ModelID string
}

func (e *InvalidModelIDError) Error() string {
	return fmt.Sprintf("invalid model_id: %q produces an empty slug after sanitization", e.ModelID)
}

// SanitizeModelID converts a model name to a filename-safe slug: lowercase,
// runs of non-alphanumerics collapsed to single hyphens, leading and
// trailing hyphens stripped. Idempotent.
//
// "Claude Opus 4.6" → "claude-opus-4-6".
func SanitizeModelID(modelID string) string {
	slug := nonSlug.ReplaceAllString(strings.ToLower(modelID), "-")
	return strings.Trim(slug, "-")
}

// ValidateModelID sanitizes modelID and rejects inputs that slug to the
// empty string.
func ValidateModelID(modelID string) (string, error) {
	slug := SanitizeModelID(modelID)
	if slug == "" {
		return "", &InvalidModelIDError{ModelID: modelID}
	}
	return slug, nil
}
