package service

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const slugBaseMaxLen = 30

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugBase lowercases name, turns every run of other characters into a
// single dash and keeps at most 30 characters.
func slugBase(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > slugBaseMaxLen {
		s = strings.TrimRight(s[:slugBaseMaxLen], "-")
	}
	if s == "" {
		s = "event"
	}
	return s
}

// generateSlug appends 8 random hex characters to the name base.
func generateSlug(name string) string {
	return slugBase(name) + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func newID() string { return uuid.NewString() }
