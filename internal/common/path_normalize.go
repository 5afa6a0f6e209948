package common

import (
	"regexp"
	"strings"
)

// PathWildcard replaces variable path segments
const PathWildcard = "*"

// Checked in order; the first shape that matches wins.
var (
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
	longIDSegment  = regexp.MustCompile(`^[A-Za-z0-9]{20,}$`)
)

// NormalizePath replaces UUID, numeric and long alphanumeric path segments with "*".
// It is idempotent.
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if IsVariableSegment(segment) {
			segments[i] = PathWildcard
		}
	}
	return strings.Join(segments, "/")
}

// IsVariableSegment reports whether a single path segment looks like an identifier
func IsVariableSegment(segment string) bool {
	switch {
	case uuidSegment.MatchString(segment):
		return true
	case numericSegment.MatchString(segment):
		return true
	case longIDSegment.MatchString(segment):
		return true
	}
	return false
}
