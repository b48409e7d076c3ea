package pathutil

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{`a\b\c`, "a/b/c"},
		{"a//b///c", "a/b/c"},
		{"a/b/", "a/b"},
		{"/", "/"},
		{"//server/share", "//server/share"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsGlob(t *testing.T) {
	for _, p := range []string{"*.go", "src/**/*.go", "a?b", "a[bc]d", "a{b,c}d", "!x"} {
		if !IsGlob(p) {
			t.Errorf("IsGlob(%q) = false, want true", p)
		}
	}
	for _, p := range []string{"src/main.go", "a/b/c"} {
		if IsGlob(p) {
			t.Errorf("IsGlob(%q) = true, want false", p)
		}
	}
}

func TestIsNegatedAndStrip(t *testing.T) {
	if !IsNegated("!foo") {
		t.Fatal("expected negated")
	}
	if IsNegated("foo") {
		t.Fatal("expected not negated")
	}
	if StripNegation("!foo") != "foo" {
		t.Fatal("StripNegation failed")
	}
	if StripNegation("foo") != "foo" {
		t.Fatal("StripNegation should be a no-op without a leading !")
	}
}

func TestGlobParent(t *testing.T) {
	tests := []struct{ in, want string }{
		{"src/**/*.go", "src"},
		{"a/b/c.txt", "a/b/c.txt"},
		{"*.go", "."},
		{"/abs/path/*.go", "/abs/path"},
		{"!src/*.go", "src"},
	}
	for _, tt := range tests {
		if got := GlobParent(tt.in); got != tt.want {
			t.Errorf("GlobParent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRel(t *testing.T) {
	if got := Rel("/home/user/proj", "/home/user/proj/src/main.go"); got != "src/main.go" {
		t.Errorf("Rel = %q", got)
	}
	if got := Rel("/home/user/proj", "/home/user/proj"); got != "." {
		t.Errorf("Rel self = %q", got)
	}
	if got := Rel("", "/a/b"); got != "/a/b" {
		t.Errorf("Rel with empty cwd should pass through, got %q", got)
	}
	if got := Rel("/home/user/proj", "/etc/other"); got != "/etc/other" {
		t.Errorf("Rel outside cwd should pass through, got %q", got)
	}
}

func TestBaseDir(t *testing.T) {
	if Base("a/b/c.txt") != "c.txt" {
		t.Fatal("Base failed")
	}
	if Dir("a/b/c.txt") != "a/b" {
		t.Fatal("Dir failed")
	}
	if Dir("/c.txt") != "/" {
		t.Fatal("Dir at root failed")
	}
}

func TestIsDotfile(t *testing.T) {
	if !IsDotfile("a/b/.hidden") {
		t.Fatal("expected dotfile")
	}
	if IsDotfile("a/b/visible") {
		t.Fatal("expected not dotfile")
	}
}
