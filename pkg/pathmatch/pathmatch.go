// Package pathmatch implements the glob dialect used for protected-path
// configuration: "*" matches exactly one path segment, "**" matches any
// number of segments including none.
package pathmatch

import "strings"

// Pattern is a compiled path glob.
type Pattern struct {
	raw      string
	segments []string
}

// Compile splits a glob into its segments. Leading and trailing slashes
// are ignored, so "/api/*" and "api/*" compile to the same pattern.
func Compile(glob string) Pattern {
	return Pattern{
		raw:      glob,
		segments: splitPath(glob),
	}
}

// String returns the glob the pattern was compiled from.
func (p Pattern) String() string { return p.raw }

// Match reports whether path matches the pattern.
func (p Pattern) Match(path string) bool {
	return matchSegments(p.segments, splitPath(path))
}

// Set is an ordered collection of patterns.
type Set []Pattern

// CompileSet compiles each glob in order.
func CompileSet(globs []string) Set {
	set := make(Set, 0, len(globs))
	for _, g := range globs {
		set = append(set, Compile(g))
	}
	return set
}

// Match reports whether any pattern in the set matches path.
func (s Set) Match(path string) bool {
	for _, p := range s {
		if p.Match(path) {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		// "**" absorbs zero or more leading segments.
		if matchSegments(pattern[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchSegments(pattern, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	if pattern[0] != "*" && pattern[0] != path[0] {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}
