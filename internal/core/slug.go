package core

import (
	"regexp"
	"strings"
)

const maxSlugLength = 64

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)
	slugDashes  = regexp.MustCompile(`-{2,}`)
)

// Slugify derives the directory name of a repository from its display name.
// The result is lower case, limited to [a-z0-9_-], and never empty.
func Slugify(name string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}
	if s == "" {
		return "repo"
	}
	return s
}
