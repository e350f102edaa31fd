// Package target parses capture targets from line-oriented input.
package target

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Kind classifies the shape of a target's original text.
type Kind string

// Supported target kinds.
const (
	KindURL    Kind = "URL"
	KindDomain Kind = "Domain"
	KindIP     Kind = "IP"
	KindIPPort Kind = "IP:Port"
)

// ErrEmpty is returned by New when the input is blank.
var ErrEmpty = errors.New("target text is empty")

var (
	schemePattern = regexp.MustCompile(`^https?://`)
	ipPattern     = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	ipPortPattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d+$`)

	unsafeName = strings.NewReplacer(
		"://", "_",
		"/", "_",
		":", "_",
		"?", "_",
		"=", "_",
		"&", "_",
		"%", "_",
	)
)

// Target identifies one capture job. It is a value type and is never
// mutated after parsing.
type Target struct {
	// Index is the position of the target in the parsed input.
	Index int
	// Original is the trimmed input line.
	Original string
	// URL is the address handed to the browser.
	URL string
}

// New builds a Target from raw text, prefixing https:// when no scheme is present.
func New(index int, text string) (Target, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Target{}, ErrEmpty
	}
	url := trimmed
	if !schemePattern.MatchString(trimmed) {
		url = "https://" + trimmed
	}
	return Target{Index: index, Original: trimmed, URL: url}, nil
}

// Kind reports how the original text was written.
func (t Target) Kind() Kind {
	switch {
	case schemePattern.MatchString(t.Original):
		return KindURL
	case ipPortPattern.MatchString(t.Original):
		return KindIPPort
	case ipPattern.MatchString(t.Original):
		return KindIP
	default:
		return KindDomain
	}
}

// CleanName returns the original text with path and query separators
// replaced so it can be used inside a file name.
func (t Target) CleanName() string {
	return unsafeName.Replace(t.Original)
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return t.Original
}

// Parse reads one target per line, skipping blank lines.
func Parse(r io.Reader) ([]Target, error) {
	var targets []Target
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		t, err := New(len(targets), scanner.Text())
		if errors.Is(err, ErrEmpty) {
			continue
		}
		targets = append(targets, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan targets: %w", err)
	}
	return targets, nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) ([]Target, error) {
	// #nosec G304 -- the target list path is operator supplied.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open target file %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	targets, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse target file %s: %w", path, err)
	}
	return targets, nil
}

// CountByKind tallies targets per Kind.
func CountByKind(targets []Target) map[Kind]int {
	counts := map[Kind]int{
		KindURL:    0,
		KindDomain: 0,
		KindIP:     0,
		KindIPPort: 0,
	}
	for _, t := range targets {
		counts[t.Kind()]++
	}
	return counts
}
