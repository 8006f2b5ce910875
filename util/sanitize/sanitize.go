// Package sanitize normalizes external identifiers (issue identifiers,
// titles) into strings safe for git refs and filesystem paths.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	nonSlugRegex   = regexp.MustCompile(`[^a-z0-9-]+`)
	multiDashRegex = regexp.MustCompile(`-+`)
)

// ForBranchPart sanitizes a string for use as one segment of a git
// branch name: lowercase, kebab-case, no leading or trailing dashes.
func ForBranchPart(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	s = strings.NewReplacer("_", "-", " ", "-", ".", "-").Replace(s)
	s = nonSlugRegex.ReplaceAllString(s, "-")
	s = multiDashRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ForFilename sanitizes a string for use in a filename (kebab-case).
func ForFilename(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	// Remove non-alphanumeric characters, except hyphens
	s = nonSlugRegex.ReplaceAllString(s, "")
	// Collapse multiple hyphens
	s = multiDashRegex.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 { // Truncate long names
		s = s[:50]
	}
	return s
}
