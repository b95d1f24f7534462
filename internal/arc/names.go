package arc

import (
	"strings"
	"unicode"
)

const maxNameLength = 128

// ValidateName checks that name is safe to use as a single path element:
// archive names, tag names and usernames all end up as file names.
func ValidateName(kind, name string) error {
	if name == "" {
		return Malformed("%s name is empty", kind)
	}
	if len(name) > maxNameLength {
		return Malformed("%s name longer than %d bytes", kind, maxNameLength)
	}
	if name[0] == '.' {
		return Malformed("%s name %q starts with a dot", kind, name)
	}
	for _, r := range name {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.') {
			return Malformed("%s name %q contains %q", kind, name, r)
		}
	}
	return nil
}

// NormalizeUsername lowercases and trims a username before validation.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
