// Package globutil compiles the user-facing glob syntax (*, **, ?, [...],
// {a,b}, {1..9}, leading ! negation) into matching predicates.
//
// Per-path-segment matching (everything except "**") is delegated to
// github.com/gobwas/glob, which natively understands *, ?, and character
// classes once a path is split on "/"; "**" has no direct gobwas/glob
// equivalent (it has no notion of "zero or more segments"), so Pattern
// implements that part itself as a small segment-backtracking matcher, the
// same shape doublestar-style globstar matchers use.
package globutil

import (
	"errors"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
)

// ErrExpansionLimit is returned when a brace expansion would unroll into
// more alternatives than the configured limit.
var ErrExpansionLimit = errors.New("globutil: expansion limit exceeded")

// foldCase makes matching case-insensitive on platforms whose default
// filesystems are: both pattern and candidate path are lower-cased.
var foldCase = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// segKind distinguishes a literal "**" segment from an ordinary one.
type segKind int

const (
	segLiteral segKind = iota
	segGlobstar
)

type segment struct {
	kind segKind
	g    glob.Glob // nil for segGlobstar
}

// Pattern is a single compiled glob pattern with no brace groups left in
// it; CompileAll returns one Pattern per brace-expanded alternative.
type Pattern struct {
	source   string
	negated  bool
	segs     []segment
	anchored bool // pattern begins with "/": must match from path root
}

// Compile compiles a single pattern (no brace expansion) into a Pattern.
// Use CompileAll for patterns that may contain {..} groups.
func Compile(pattern string) (*Pattern, error) {
	negated := strings.HasPrefix(pattern, "!")
	body := strings.TrimPrefix(pattern, "!")
	anchored := strings.HasPrefix(body, "/")
	body = strings.TrimPrefix(body, "/")
	if foldCase {
		body = strings.ToLower(body)
	}

	parts := strings.Split(body, "/")
	segs := make([]segment, 0, len(parts)+1)

	// A bare pattern with no directory component (e.g. "*.log") is, per
	// gitignore convention, a basename match at any depth rather than one
	// anchored to the watch root: prepend an implicit "**/" so it behaves
	// like "**/*.log" instead of only matching a top-level file.
	if len(parts) == 1 && !anchored {
		segs = append(segs, segment{kind: segGlobstar})
	}

	for _, part := range parts {
		if part == "**" {
			segs = append(segs, segment{kind: segGlobstar})
			continue
		}
		g, err := glob.Compile(part)
		if err != nil {
			return nil, err
		}
		segs = append(segs, segment{kind: segLiteral, g: g})
	}

	return &Pattern{source: pattern, negated: negated, segs: segs, anchored: anchored}, nil
}

// CompileAll brace-expands pattern (bounded by limit, 0 meaning the
// package default) and compiles every resulting alternative.
func CompileAll(pattern string, limit int) ([]*Pattern, error) {
	alts, err := Expand(pattern, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Pattern, 0, len(alts))
	for _, alt := range alts {
		p, err := Compile(alt)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Negated reports whether this pattern was written with a leading "!".
func (p *Pattern) Negated() bool { return p.negated }

// String returns the original pattern text.
func (p *Pattern) String() string { return p.source }

// Match reports whether path (forward-slash, no trailing slash) satisfies
// the pattern, ignoring the leading "!" (callers combine negation at the
// composite-matcher level; see Matcher).
func (p *Pattern) Match(path string) bool {
	path = strings.TrimPrefix(path, "/")
	if foldCase {
		path = strings.ToLower(path)
	}
	if path == "" {
		return matchSegs(p.segs, nil)
	}
	return matchSegs(p.segs, strings.Split(path, "/"))
}

// matchSegs backtracks a "**" segment over zero or more path segments.
func matchSegs(pat []segment, path []string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}
	head := pat[0]
	if head.kind == segGlobstar {
		// "**" may consume 0..len(path) segments.
		for n := 0; n <= len(path); n++ {
			if matchSegs(pat[1:], path[n:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	if !head.g.Match(path[0]) {
		return false
	}
	return matchSegs(pat[1:], path[1:])
}

// Matcher is a composite of compiled patterns, cached by the orchestrator's
// ignore set. Evaluation follows gitignore-style precedence: the last
// pattern that matches the path wins, so a later "!keep/me" can re-include
// something an earlier broad pattern excluded.
type Matcher struct {
	patterns []*Pattern
}

// NewMatcher compiles every pattern (each brace-expanded) into one Matcher.
func NewMatcher(patterns []string, expansionLimit int) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		compiled, err := CompileAll(raw, expansionLimit)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, compiled...)
	}
	return m, nil
}

// Add appends an already-compiled pattern to the matcher, e.g. one obtained
// from a negated Add() call discovered after construction.
func (m *Matcher) Add(p *Pattern) {
	m.patterns = append(m.patterns, p)
}

// Match reports whether path is matched (and not subsequently re-included)
// by the compiled pattern set.
func (m *Matcher) Match(path string) bool {
	matched := false
	for _, p := range m.patterns {
		if p.Match(path) {
			matched = !p.negated
		}
	}
	return matched
}

// Empty reports whether the matcher has no patterns at all.
func (m *Matcher) Empty() bool { return m == nil || len(m.patterns) == 0 }
