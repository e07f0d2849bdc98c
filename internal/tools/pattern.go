package tools

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// compilePattern validates and compiles the restricted regex subset the
// read_file searchPattern contract allows: literal characters, ".",
// "[abc]"/"[a-z]" classes, anchors "^" and "$", the quantifiers "*",
// "+", "?", "{n,m}", alternation "|", grouping, and the single escape
// "\t". Backslash shorthands ("\d", "\w", ...) and look-arounds are
// rejected rather than silently reinterpreted.
func compilePattern(pattern string) (func(string) bool, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return re.MatchString, nil
}

func validatePattern(pattern string) error {
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\':
			if i+1 >= len(pattern) {
				return fmt.Errorf("trailing backslash")
			}
			next := pattern[i+1]
			// \t is the one supported shorthand; escaping a
			// metacharacter to its literal self is also fine.
			if next == 't' || strings.ContainsRune(`.[]^$*+?{}|()\`, rune(next)) {
				i++
				continue
			}
			return fmt.Errorf(`backslash shorthand \%c is not supported`, next)
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '(':
			if strings.HasPrefix(pattern[i:], "(?=") || strings.HasPrefix(pattern[i:], "(?!") ||
				strings.HasPrefix(pattern[i:], "(?<") {
				return fmt.Errorf("look-arounds are not supported")
			}
		}
	}
	if inClass {
		return fmt.Errorf("unterminated character class")
	}
	return nil
}

// matchGlobPattern matches a list_files glob against a basename using
// path.Match semantics ("*", "?", "[...]"), which never cross a "/",
// exactly right for basenames.
func matchGlobPattern(pattern, base string) (bool, error) {
	return path.Match(pattern, base)
}
