package utils

import "strings"

// wwwPrefix is the single label toggled by complement handling.
const wwwPrefix = "www."

// CanonicalName returns a rule or subject in the form used for storage and
// comparison:
//   - Trimmed of surrounding whitespace and a leading byte order mark
//   - ASCII letters lowercased; other bytes are left untouched
func CanonicalName(name string) string {
	name = strings.TrimPrefix(name, "\uFEFF")
	name = strings.TrimSpace(name)
	return asciiLower(name)
}

func asciiLower(s string) string {
	upper := false
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			upper = true
			break
		}
	}
	if !upper {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Complements returns every name that differs from name by exactly one
// leading "www." label: the name with "www." added and, when it already
// starts with "www.", the name with it removed. "www.example.org" yields
// "www.www.example.org" and "example.org".
func Complements(name string) []string {
	if strings.HasPrefix(name, wwwPrefix) {
		return []string{wwwPrefix + name, name[len(wwwPrefix):]}
	}
	return []string{wwwPrefix + name}
}

// StripWWW removes a single leading "www." label if present.
func StripWWW(name string) string {
	return strings.TrimPrefix(name, wwwPrefix)
}

// Reverse reverses s byte by byte. Suffix keys are ASCII after
// canonicalization; multi-byte runes are reversed consistently on both the
// insert and lookup side, which is all prefix matching needs.
func Reverse(s string) string {
	b := make([]byte, len(s))
	for i, j := 0, len(s)-1; j >= 0; i, j = i+1, j-1 {
		b[i] = s[j]
	}
	return string(b)
}

// IsComment reports whether a trimmed line is a full-line comment.
func IsComment(line string) bool {
	return strings.HasPrefix(line, "#")
}
