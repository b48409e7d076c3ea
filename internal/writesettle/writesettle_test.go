package writesettle

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"
)

// fakeFS lets tests drive the tracker's stat calls without touching a real
// filesystem, the same way the writesettle tracker was designed to permit.
type fakeFS struct {
	mu    sync.Mutex
	sizes map[string]int64
	gone  map[string]bool
}

func newFakeFS() *fakeFS {
	return &fakeFS{sizes: make(map[string]int64), gone: make(map[string]bool)}
}

func (f *fakeFS) stat(path string) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[path] {
		return Stat{}, os.ErrNotExist
	}
	return Stat{Size: f.sizes[path], ModTime: time.Now()}, nil
}

func (f *fakeFS) setSize(path string, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes[path] = n
}

func (f *fakeFS) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone[path] = true
}

func TestTrackEmitsOnceSizeStabilizes(t *testing.T) {
	fs := newFakeFS()
	fs.setSize("/f", 10)

	emitted := make(chan settleResult, 1)
	tr := New(Options{StabilityThreshold: 40 * time.Millisecond, PollInterval: 10 * time.Millisecond}, fs.stat,
		func(path string, wasAdd bool, st Stat) { emitted <- settleResult{path, wasAdd, st} })
	defer tr.Close()

	tr.Track(context.Background(), "/f", true, Stat{Size: 10})

	select {
	case r := <-emitted:
		if r.path != "/f" || !r.wasAdd {
			t.Fatalf("unexpected emit: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settle emit")
	}
}

func TestTrackRestartsOnSizeChange(t *testing.T) {
	fs := newFakeFS()
	fs.setSize("/f", 0)

	emitted := make(chan settleResult, 1)
	tr := New(Options{StabilityThreshold: 30 * time.Millisecond, PollInterval: 10 * time.Millisecond}, fs.stat,
		func(path string, wasAdd bool, st Stat) { emitted <- settleResult{path, wasAdd, st} })
	defer tr.Close()

	tr.Track(context.Background(), "/f", true, Stat{Size: 0})

	go func() {
		time.Sleep(15 * time.Millisecond)
		fs.setSize("/f", 100)
	}()

	select {
	case r := <-emitted:
		if r.st.Size != 100 {
			t.Fatalf("expected final size 100, got %d", r.st.Size)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settle emit")
	}
}

func TestCancelWaitDropsPending(t *testing.T) {
	fs := newFakeFS()
	fs.setSize("/f", 5)

	emitted := make(chan settleResult, 1)
	tr := New(Options{StabilityThreshold: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond}, fs.stat,
		func(path string, wasAdd bool, st Stat) { emitted <- settleResult{path, wasAdd, st} })
	defer tr.Close()

	tr.Track(context.Background(), "/f", true, Stat{Size: 5})
	if !tr.Pending("/f") {
		t.Fatal("expected a pending slot right after Track")
	}
	tr.CancelWait("/f")
	if tr.Pending("/f") {
		t.Fatal("expected no pending slot after CancelWait")
	}

	select {
	case r := <-emitted:
		t.Fatalf("expected no emit after CancelWait, got %+v", r)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTrackDropsSilentlyOnNotExist(t *testing.T) {
	fs := newFakeFS()
	fs.setSize("/f", 5)

	emitted := make(chan settleResult, 1)
	tr := New(Options{StabilityThreshold: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond}, fs.stat,
		func(path string, wasAdd bool, st Stat) { emitted <- settleResult{path, wasAdd, st} })
	defer tr.Close()

	tr.Track(context.Background(), "/f", true, Stat{Size: 5})
	fs.remove("/f")

	select {
	case r := <-emitted:
		t.Fatalf("expected no emit once the path is gone, got %+v", r)
	case <-time.After(150 * time.Millisecond):
	}
	if tr.Pending("/f") {
		t.Fatal("expected the pending slot to be dropped once the path vanished")
	}
}

type settleResult struct {
	path   string
	wasAdd bool
	st     Stat
}
