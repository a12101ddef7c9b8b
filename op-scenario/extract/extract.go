// Package extract pulls identifiers out of the external tool's free-form
// stdout. The tool has no structured output, so every value the scenarios
// thread forward passes through the pattern helpers in this package.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/acarl005/stripansi"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	compiledCacheSize = 128
	// MaxErrorOutput bounds the output carried by a NoMatchError.
	MaxErrorOutput = 4096
)

var (
	// ErrNoMatch is wrapped by every NoMatchError.
	ErrNoMatch = errors.New("no match found")
	// ErrMalformedPattern is wrapped by every PatternError.
	ErrMalformedPattern = errors.New("malformed pattern")

	compiled = mustNewCache()
)

// NoMatchError is returned when a pattern never matches the output. Output
// holds the searched text, cut to its last MaxErrorOutput bytes.
type NoMatchError struct {
	Pattern string
	Output  string
}

func (e *NoMatchError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("no match for pattern %q in empty output", e.Pattern)
	}
	return fmt.Sprintf("no match for pattern %q in output:\n%s", e.Pattern, e.Output)
}

// NewNoMatchError builds a NoMatchError for pattern over text.
func NewNoMatchError(pattern, text string) *NoMatchError {
	return &NoMatchError{Pattern: pattern, Output: tail(Clean(text), MaxErrorOutput)}
}

// Unwrap implements the errors.Unwrap interface
func (e *NoMatchError) Unwrap() error {
	return ErrNoMatch
}

// PatternError is returned for patterns that do not compile or have no
// capture group. It is always a programming error.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("malformed pattern %q: %v", e.Pattern, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *PatternError) Unwrap() []error {
	return []error{ErrMalformedPattern, e.Err}
}

func mustNewCache() *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](compiledCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}

// Compile compiles pattern, requiring at least one capture group. Only the
// first group is ever returned by the extractors.
func Compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := compiled.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	if re.NumSubexp() < 1 {
		return nil, &PatternError{Pattern: pattern, Err: errors.New("pattern has no capture group")}
	}
	compiled.Add(pattern, re)
	return re, nil
}

// Clean strips terminal colour escapes, which the tool emits around
// headings and addresses when attached to a terminal.
func Clean(text string) string {
	return stripansi.Strip(text)
}

// One returns the first capture of the first match of pattern in text.
func One(text, pattern string) (string, error) {
	re, err := Compile(pattern)
	if err != nil {
		return "", err
	}
	m := re.FindStringSubmatch(Clean(text))
	if m == nil {
		return "", NewNoMatchError(pattern, text)
	}
	return m[1], nil
}

// All returns the first capture of every non-overlapping match, in the
// order the matches appear in text. No matches yields an empty slice.
func All(text, pattern string) ([]string, error) {
	re, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	matches := re.FindAllStringSubmatch(Clean(text), -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out, nil
}

// Last returns the capture of the last match, eg. the most recently
// created resource in a transaction receipt.
func Last(text, pattern string) (string, error) {
	all, err := All(text, pattern)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "", NewNoMatchError(pattern, text)
	}
	return all[len(all)-1], nil
}

// tail returns the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
