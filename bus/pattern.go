package bus

import (
	"path"
	"strings"
)

const globMeta = `*?[\`

// isGlob reports whether pattern needs glob matching.
func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, globMeta)
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return ErrEmptyPattern
	}
	if !isGlob(pattern) {
		return nil
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return ErrBadPattern
	}
	return nil
}

// matches assumes pattern already passed validatePattern.
func matches(pattern, topic string) bool {
	if !isGlob(pattern) {
		return pattern == topic
	}
	ok, _ := path.Match(pattern, topic)
	return ok
}

// Match reports whether topic is selected by pattern. An invalid glob
// matches nothing.
func Match(pattern, topic string) bool {
	if validatePattern(pattern) != nil {
		return false
	}
	return matches(pattern, topic)
}

// IsGlob reports whether pattern contains glob metacharacters.
func IsGlob(pattern string) bool { return isGlob(pattern) }
