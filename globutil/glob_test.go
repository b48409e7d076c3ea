package globutil

import "testing"

func TestCompileMatchLiteral(t *testing.T) {
	p, err := Compile("src/main.go")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Match("src/main.go") {
		t.Error("expected literal match")
	}
	if p.Match("src/other.go") {
		t.Error("expected literal mismatch")
	}
}

func TestCompileMatchStar(t *testing.T) {
	p, err := Compile("src/*.go")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Match("src/main.go") {
		t.Error("expected * to match a single segment")
	}
	if p.Match("src/sub/main.go") {
		t.Error("* should not cross a segment boundary")
	}
}

func TestCompileMatchGlobstar(t *testing.T) {
	p, err := Compile("src/**/*.go")
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"src/main.go":           true,
		"src/a/main.go":         true,
		"src/a/b/c/main.go":     true,
		"src/main.txt":          false,
		"other/main.go":         false,
	}
	for path, want := range cases {
		if got := p.Match(path); got != want {
			t.Errorf("Match(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestCompileMatchCharClass(t *testing.T) {
	p, err := Compile("file[0-9].txt")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Match("file1.txt") {
		t.Error("expected character class match")
	}
	if p.Match("fileA.txt") {
		t.Error("expected character class mismatch")
	}
}

func TestCompileAllBraceAndGlob(t *testing.T) {
	pats, err := CompileAll("src/*.{js,go}", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pats) != 2 {
		t.Fatalf("expected 2 compiled alternatives, got %d", len(pats))
	}
	var matched bool
	for _, p := range pats {
		if p.Match("src/main.go") {
			matched = true
		}
	}
	if !matched {
		t.Error("expected one alternative to match src/main.go")
	}
}

func TestNegatedPattern(t *testing.T) {
	p, err := Compile("!src/main.go")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Negated() {
		t.Error("expected Negated() true")
	}
	if !p.Match("src/main.go") {
		t.Error("Match should ignore the leading ! and match the body")
	}
}

func TestMatcherLastMatchWins(t *testing.T) {
	m, err := NewMatcher([]string{"node_modules/**", "!node_modules/keep-me/**"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("node_modules/pkg/index.js") {
		t.Error("expected node_modules/pkg/index.js to be ignored")
	}
	if m.Match("node_modules/keep-me/index.js") {
		t.Error("expected node_modules/keep-me/index.js to be re-included by the negated pattern")
	}
}

func TestMatcherEmpty(t *testing.T) {
	m, err := NewMatcher(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Empty() {
		t.Error("expected Empty() true for no patterns")
	}
	if m.Match("anything") {
		t.Error("empty matcher should never match")
	}
}
