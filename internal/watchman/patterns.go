package watchman

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// PatternMatcher matches slash separated paths against glob patterns.
// `**` spans directories, `*` and `?` stay within one segment.
type PatternMatcher struct {
	patterns []string
	regexps  []*regexp.Regexp
}

// NewPatternMatcher compiles patterns; each one also matches at any depth
// and, for bare directory names, everything below it
func NewPatternMatcher(patterns []string) (*PatternMatcher, error) {
	var expanded []string
	for _, pattern := range patterns {
		expanded = append(expanded, ExpandPattern(NormalizePattern(pattern))...)
	}

	pm := &PatternMatcher{
		patterns: expanded,
		regexps:  make([]*regexp.Regexp, 0, len(expanded)),
	}

	for _, pattern := range expanded {
		regex, err := globToRegex(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		pm.regexps = append(pm.regexps, regex)
	}

	return pm, nil
}

// Match checks if a path matches any pattern
func (pm *PatternMatcher) Match(path string) bool {
	path = filepath.ToSlash(path)

	for _, regex := range pm.regexps {
		if regex.MatchString(path) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher has no patterns
func (pm *PatternMatcher) Empty() bool {
	return len(pm.regexps) == 0
}

func globToRegex(pattern string) (*regexp.Regexp, error) {
	var regex strings.Builder
	regex.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch pattern[i] {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				regex.WriteString(".*")
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					i += 3
				} else {
					i += 2
				}
			} else {
				regex.WriteString("[^/]*")
				i++
			}
		case '?':
			regex.WriteString("[^/]")
			i++
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				// unclosed bracket is a literal
				regex.WriteString("\\[")
				i++
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			regex.WriteString("[" + class + "]")
			i += end + 2
		case '.', '+', '^', '$', '(', ')', '{', '}', '|', '\\':
			regex.WriteByte('\\')
			regex.WriteByte(pattern[i])
			i++
		default:
			regex.WriteByte(pattern[i])
			i++
		}
	}

	regex.WriteString("$")
	return regexp.Compile(regex.String())
}

// NormalizePattern converts separators and drops a leading ./ and trailing /
func NormalizePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	pattern = strings.TrimPrefix(pattern, "./")
	return strings.TrimSuffix(pattern, "/")
}

// ExpandPattern returns pattern plus the variations it implies
func ExpandPattern(pattern string) []string {
	patterns := []string{pattern}

	switch {
	case !strings.Contains(pattern, "*") && !strings.Contains(pattern, "."):
		patterns = append(patterns, pattern+"/**/*")
	case !strings.HasPrefix(pattern, "**") && !strings.HasPrefix(pattern, "/"):
		patterns = append(patterns, "**/"+pattern)
	}

	return patterns
}

// Filter decides which changed files trigger a rebuild. An empty include
// list admits every path; exclude always wins.
type Filter struct {
	include *PatternMatcher
	exclude *PatternMatcher
}

// NewFilter compiles include and exclude globs
func NewFilter(include, exclude []string) (*Filter, error) {
	in, err := NewPatternMatcher(include)
	if err != nil {
		return nil, err
	}
	ex, err := NewPatternMatcher(exclude)
	if err != nil {
		return nil, err
	}
	return &Filter{include: in, exclude: ex}, nil
}

// Allows reports whether path, relative to the watched root, passes the filter
func (f *Filter) Allows(path string) bool {
	if f == nil {
		return true
	}
	if f.exclude.Match(path) {
		return false
	}
	return f.include.Empty() || f.include.Match(path)
}
