package globutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpansionLimit is the default cap on the number of literal alternatives a
// single brace expansion may unroll into.
const ExpansionLimit = 1000

// Expand unrolls the (possibly nested) {a,b}/{1..9} brace groups in pattern
// into the set of literal patterns it represents. A pattern with no braces
// expands to itself. limit bounds the total number of alternatives produced;
// exceeding it returns ErrExpansionLimit.
func Expand(pattern string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = ExpansionLimit
	}
	out, err := expand(pattern, limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func expand(pattern string, limit int) ([]string, error) {
	start := strings.IndexByte(pattern, '{')
	if start < 0 {
		return []string{pattern}, nil
	}
	end := matchingBrace(pattern, start)
	if end < 0 {
		// Unbalanced; treat literally.
		return []string{pattern}, nil
	}

	prefix, body, suffix := pattern[:start], pattern[start+1:end], pattern[end+1:]

	alts, err := splitAlternatives(body)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, alt := range alts {
		combined := prefix + alt + suffix
		sub, err := expand(combined, limit-len(results))
		if err != nil {
			return nil, err
		}
		results = append(results, sub...)
		if len(results) > limit {
			return nil, fmt.Errorf("%w: brace expansion of %q exceeds %d alternatives", ErrExpansionLimit, pattern, limit)
		}
	}
	return results, nil
}

// matchingBrace returns the index of the "}" matching the "{" at open,
// accounting for nested braces.
func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitAlternatives splits a brace body into its alternatives. A body of the
// form "x..y" or "x..y..step" (numeric or single-letter bounds) is treated as
// a range; otherwise the body is comma-split at depth 0.
func splitAlternatives(body string) ([]string, error) {
	if r, ok, err := expandRange(body); ok {
		return r, err
	}

	var alts []string
	depth := 0
	last := 0
	for i, r := range body {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				alts = append(alts, body[last:i])
				last = i + 1
			}
		}
	}
	alts = append(alts, body[last:])
	return alts, nil
}

func expandRange(body string) ([]string, bool, error) {
	parts := strings.Split(body, "..")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, false, nil
	}
	for _, p := range parts {
		if p == "" {
			return nil, false, nil
		}
	}

	step := 1
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n == 0 {
			return nil, false, nil
		}
		step = n
	}

	if lo, hi, ok := numericRange(parts[0], parts[1]); ok {
		return numericSeries(lo, hi, step), true, nil
	}
	if lo, hi, ok := alphaRange(parts[0], parts[1]); ok {
		return alphaSeries(lo, hi, step), true, nil
	}
	return nil, false, nil
}

func numericRange(a, b string) (int, int, bool) {
	lo, err1 := strconv.Atoi(a)
	hi, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

func numericSeries(lo, hi, step int) []string {
	if step < 0 {
		step = -step
	}
	var out []string
	if lo <= hi {
		for v := lo; v <= hi; v += step {
			out = append(out, strconv.Itoa(v))
		}
	} else {
		for v := lo; v >= hi; v -= step {
			out = append(out, strconv.Itoa(v))
		}
	}
	return out
}

func alphaRange(a, b string) (byte, byte, bool) {
	if len(a) != 1 || len(b) != 1 {
		return 0, 0, false
	}
	lo, hi := a[0], b[0]
	isAlpha := func(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
	if !isAlpha(lo) || !isAlpha(hi) {
		return 0, 0, false
	}
	return lo, hi, true
}

func alphaSeries(lo, hi byte, step int) []string {
	if step < 0 {
		step = -step
	}
	var out []string
	if lo <= hi {
		for v := int(lo); v <= int(hi); v += step {
			out = append(out, string(rune(v)))
		}
	} else {
		for v := int(lo); v >= int(hi); v -= step {
			out = append(out, string(rune(v)))
		}
	}
	return out
}
