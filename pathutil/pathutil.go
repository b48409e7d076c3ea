// Package pathutil normalizes user-supplied watch paths to the canonical
// forward-slash form the rest of watchkit operates on, and classifies them as
// literal paths or glob patterns.
package pathutil

import (
	"strings"
)

// globChars are the characters that make a path a glob pattern rather than a
// literal path.
const globChars = "*?[]{}!"

// Normalize rewrites p to forward-slash form: backslashes become slashes,
// repeated slashes collapse to one (except a leading "//" on UNC-style
// paths, which is preserved), and a trailing slash is stripped unless p is
// the root. Relative paths are returned relative; no cwd is consulted here.
func Normalize(p string) string {
	if p == "" {
		return p
	}

	p = strings.ReplaceAll(p, `\`, "/")

	unc := strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "///")

	var b strings.Builder
	b.Grow(len(p))
	lastSlash := false
	for i, r := range p {
		if r == '/' {
			if lastSlash && !(unc && i == 1) {
				continue
			}
			lastSlash = true
		} else {
			lastSlash = false
		}
		b.WriteRune(r)
	}
	out := b.String()

	if len(out) > 1 && strings.HasSuffix(out, "/") {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

// IsGlob reports whether p contains any glob metacharacter. A leading "!"
// (negation) also counts, since negated entries are routed to the ignore set
// rather than watched literally.
func IsGlob(p string) bool {
	return strings.ContainsAny(p, globChars)
}

// IsNegated reports whether p is a negated pattern (leading "!").
func IsNegated(p string) bool {
	return strings.HasPrefix(p, "!")
}

// StripNegation removes a leading "!" from p, if present.
func StripNegation(p string) string {
	return strings.TrimPrefix(p, "!")
}

// GlobParent returns the deepest ancestor of p that contains no glob
// metacharacter — the directory a backend should subscribe on in order to
// observe everything p could match. For a literal path, GlobParent returns
// the path itself (callers should check IsGlob first if they need the
// distinction).
func GlobParent(p string) string {
	p = Normalize(StripNegation(p))
	if !IsGlob(p) {
		return p
	}

	parts := strings.Split(p, "/")
	root := ""
	if strings.HasPrefix(p, "/") {
		root = "/"
	}

	var lit []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if strings.ContainsAny(part, globChars) {
			break
		}
		lit = append(lit, part)
	}

	if len(lit) == 0 {
		if root != "" {
			return root
		}
		return "."
	}
	return root + strings.Join(lit, "/")
}

// Rel rewrites abs to be relative to cwd using forward slashes, if cwd is
// non-empty and abs is inside it. Otherwise abs is returned unchanged.
func Rel(cwd, abs string) string {
	if cwd == "" {
		return abs
	}
	cwd = strings.TrimSuffix(Normalize(cwd), "/")
	abs = Normalize(abs)
	if abs == cwd {
		return "."
	}
	if strings.HasPrefix(abs, cwd+"/") {
		return strings.TrimPrefix(abs, cwd+"/")
	}
	return abs
}

// Base returns the final path element, forward-slash aware.
func Base(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Dir returns all but the final path element, forward-slash aware.
func Dir(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		if i == 0 {
			return "/"
		}
		return p[:i]
	}
	return "."
}

// IsDotfile reports whether the basename of p begins with a dot, used by
// atomic mode to recognize editor swap files.
func IsDotfile(p string) bool {
	return strings.HasPrefix(Base(p), ".")
}
