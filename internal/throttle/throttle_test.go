package throttle

import (
	"testing"
	"time"
)

func TestTryAcquireFreshThenSuppressed(t *testing.T) {
	tb := New().WithWindow(Change, 50*time.Millisecond)

	r1 := tb.TryAcquire(Change, "/a/b.txt")
	if !r1.Fresh {
		t.Fatal("expected first acquire to be fresh")
	}

	r2 := tb.TryAcquire(Change, "/a/b.txt")
	if r2.Fresh {
		t.Fatal("expected second acquire within the window to be suppressed")
	}
	if r2.Suppressed != 1 {
		t.Fatalf("Suppressed = %d, want 1", r2.Suppressed)
	}
}

func TestTryAcquireDifferentPathsIndependent(t *testing.T) {
	tb := New()
	if !tb.TryAcquire(Change, "/a").Fresh {
		t.Fatal("expected fresh for /a")
	}
	if !tb.TryAcquire(Change, "/b").Fresh {
		t.Fatal("expected fresh for /b, unaffected by /a's slot")
	}
}

func TestTryAcquireDifferentKindsIndependent(t *testing.T) {
	tb := New()
	if !tb.TryAcquire(Change, "/a").Fresh {
		t.Fatal("expected fresh Change")
	}
	if !tb.TryAcquire(Readdir, "/a").Fresh {
		t.Fatal("expected fresh Readdir for the same path, different kind")
	}
}

func TestTryAcquireExpiresAfterWindow(t *testing.T) {
	tb := New().WithWindow(Change, 20*time.Millisecond)
	if !tb.TryAcquire(Change, "/a").Fresh {
		t.Fatal("expected first acquire fresh")
	}
	time.Sleep(60 * time.Millisecond)
	if !tb.TryAcquire(Change, "/a").Fresh {
		t.Fatal("expected acquire fresh again once the window has elapsed")
	}
}

func TestDefaultWindows(t *testing.T) {
	if Change.DefaultWindow() != 50*time.Millisecond {
		t.Errorf("Change default = %v", Change.DefaultWindow())
	}
	if WatchAttach.DefaultWindow() != 5*time.Millisecond {
		t.Errorf("WatchAttach default = %v", WatchAttach.DefaultWindow())
	}
	if Readdir.DefaultWindow() != 1000*time.Millisecond {
		t.Errorf("Readdir default = %v", Readdir.DefaultWindow())
	}
}

func TestReset(t *testing.T) {
	tb := New()
	tb.TryAcquire(Change, "/a")
	tb.Reset()
	if !tb.TryAcquire(Change, "/a").Fresh {
		t.Fatal("expected fresh acquire after Reset")
	}
}
