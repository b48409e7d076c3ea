package hostquirks

import (
	"errors"
	"os"
	"testing"
)

func TestBinarySetDefaults(t *testing.T) {
	bs := NewBinarySet()
	if !bs.IsBinary("photo.PNG") {
		t.Error("expected case-insensitive match on default extension")
	}
	if bs.IsBinary("main.go") {
		t.Error("expected .go to not be treated as binary by default")
	}
}

func TestBinarySetExtra(t *testing.T) {
	bs := NewBinarySet(".proprietary")
	if !bs.IsBinary("asset.proprietary") {
		t.Error("expected extra extension to be recognized")
	}
}

func TestBinarySetNil(t *testing.T) {
	var bs *BinarySet
	if bs.IsBinary("x.png") {
		t.Error("nil BinarySet should never report binary")
	}
}

func TestIsENOENT(t *testing.T) {
	if !IsENOENT(os.ErrNotExist) {
		t.Error("expected os.ErrNotExist to be recognized")
	}
	if IsENOENT(errors.New("other")) {
		t.Error("expected an unrelated error to not match")
	}
}

func TestIsNetworkFSLocalTempDir(t *testing.T) {
	// A t.TempDir() is backed by the local filesystem in any sane CI/dev
	// environment, so this should never report true there.
	if IsNetworkFS(t.TempDir()) {
		t.Error("expected a local temp dir not to be reported as a network filesystem")
	}
}

func TestIsNetworkFSMissingPath(t *testing.T) {
	if IsNetworkFS("/this/path/does/not/exist/at/all") {
		t.Error("expected a nonexistent path to report false, not panic or error out")
	}
}
