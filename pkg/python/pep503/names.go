package pep503

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

//nolint:gochecknoglobals // Would be 'const'.
var (
	reSeparators = regexp.MustCompile(`[-_.]+`)
	// From PEP 508.
	reName = regexp.MustCompile(`(?i)^([A-Z0-9]|[A-Z0-9][A-Z0-9._-]*[A-Z0-9])$`)
)

// Normalize returns the normalized form of a project name: runs of "-", "_", and "." are
// collapsed to a single "-", and everything is lowercased.
func Normalize(name string) string {
	return strings.ToLower(reSeparators.ReplaceAllLiteralString(name, "-"))
}

// ValidName returns an error if the name is not a valid project name.  "The only valid characters
// in a name are the ASCII alphabet, ASCII numbers, `.`, `-`, and `_`", and the name must start and
// end with a letter or number.
func ValidName(name string) error {
	for _, char := range name {
		if !(('a' <= char && char <= 'z') ||
			('A' <= char && char <= 'Z') ||
			('0' <= char && char <= '9') ||
			char == '.' ||
			char == '-' ||
			char == '_') {
			return fmt.Errorf("illegal character in project name: %q: %s",
				name, strconv.QuoteRuneToASCII(char))
		}
	}
	if !reName.MatchString(name) {
		return fmt.Errorf("invalid project name: %q", name)
	}
	return nil
}
