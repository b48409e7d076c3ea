package watchkit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, ch <-chan Event, pred func(Event) bool, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if pred(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching event")
		}
	}
}

func noEventWithin(t *testing.T, ch <-chan Event, pred func(Event) bool, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case ev := <-ch:
			if pred(ev) {
				t.Fatalf("unexpected matching event: %+v", ev)
			}
		case <-deadline:
			return
		}
	}
}

func TestAddEmitsAddThenChangeOnWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	ev := waitForEvent(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "f.txt" }, 3*time.Second)
	require.Equal(t, OpAdd, ev.Op)

	require.NoError(t, os.WriteFile(path, []byte("a longer payload"), 0644))
	ev = waitForEvent(t, w.ChangeCh, func(e Event) bool { return filepath.Base(e.Path) == "f.txt" }, 3*time.Second)
	require.Equal(t, OpChange, ev.Op)
}

func TestUnlinkEmitted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	waitForEvent(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "doomed.txt" }, 3*time.Second)

	require.NoError(t, os.Remove(path))
	ev := waitForEvent(t, w.UnlinkCh, func(e Event) bool { return filepath.Base(e.Path) == "doomed.txt" }, 3*time.Second)
	require.Equal(t, OpUnlink, ev.Op)
}

func TestAddDirAndUnlinkDir(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	ev := waitForEvent(t, w.AddDirCh, func(e Event) bool { return filepath.Base(e.Path) == "sub" }, 3*time.Second)
	require.Equal(t, OpAddDir, ev.Op)

	require.NoError(t, os.Remove(sub))
	ev = waitForEvent(t, w.UnlinkDirCh, func(e Event) bool { return filepath.Base(e.Path) == "sub" }, 3*time.Second)
	require.Equal(t, OpUnlinkDir, ev.Op)
}

func TestIgnorePatternSuppressesEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond), WithIgnored("*.log"))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug.log"), []byte("x"), 0644))
	noEventWithin(t, w.All, func(e Event) bool { return filepath.Base(e.Path) == "debug.log" }, 500*time.Millisecond)
}

func TestIgnoreInitialSuppressesPreexisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "already-here.txt"), []byte("x"), 0644))

	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond), WithIgnoreInitial(true))
	require.NoError(t, err)
	defer w.Close()

	noEventWithin(t, w.All, func(e Event) bool { return filepath.Base(e.Path) == "already-here.txt" }, 300*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh.txt"), []byte("x"), 0644))
	waitForEvent(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "fresh.txt" }, 3*time.Second)
}

func TestReadyFiresOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, WithPolling(true))
	require.NoError(t, err)
	defer w.Close()

	select {
	case _, ok := <-w.Ready:
		require.False(t, ok, "Ready should be a closed channel, not a value send")
	case <-time.After(time.Second):
		t.Fatal("Ready was never closed")
	}
}

func TestReadyWaitsForInitialScanEmission(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "already-here.txt"), []byte("x"), 0644))

	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	select {
	case <-w.Ready:
	case <-time.After(3 * time.Second):
		t.Fatal("Ready was never closed")
	}

	// Ready must not close until the dispatcher has already emitted the
	// preexisting file's add onto AddCh, not merely enqueued its Discovered
	// delta on the internal sink.
	ev := waitForEvent(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "already-here.txt" }, 100*time.Millisecond)
	require.Equal(t, OpAdd, ev.Op)
}

func TestUnlinkDirDropsRegistryEntry(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "child.txt"), []byte("x"), 0644))

	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	require.Eventually(t, func() bool {
		_, ok := w.GetWatched()[sub]
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.RemoveAll(sub))
	waitForEvent(t, w.UnlinkDirCh, func(e Event) bool { return filepath.Base(e.Path) == "sub" }, 3*time.Second)

	require.Eventually(t, func() bool {
		_, ok := w.GetWatched()[sub]
		return !ok
	}, 3*time.Second, 20*time.Millisecond, "registry entry for removed directory should be dropped, not leaked")
}

func TestGetWatchedReportsChildren(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	require.Eventually(t, func() bool {
		children := w.GetWatched()[dir]
		return len(children) == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestAtomicModeCollapsesUnlinkAddToChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	w, err := New([]string{dir},
		WithPolling(true), WithInterval(15*time.Millisecond),
		WithAtomic(200*time.Millisecond),
	)
	require.NoError(t, err)
	defer w.Close()

	waitForEvent(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "doc.txt" }, 3*time.Second)

	// Remove the file and recreate it after a few poll ticks (so the poller
	// really observes the unlink) but well inside the 200ms atomic delay.
	require.NoError(t, os.Remove(path))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))

	ev := waitForEvent(t, w.ChangeCh, func(e Event) bool { return filepath.Base(e.Path) == "doc.txt" }, 3*time.Second)
	require.Equal(t, OpChange, ev.Op)
	noEventWithin(t, w.All, func(e Event) bool {
		return filepath.Base(e.Path) == "doc.txt" && (e.Op == OpUnlink || e.Op == OpAdd)
	}, 300*time.Millisecond)
}

func TestAwaitWriteFinishDelaysEmission(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir},
		WithPolling(true), WithInterval(15*time.Millisecond),
		WithAwaitWriteFinish(150*time.Millisecond, 15*time.Millisecond),
	)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "slow.txt")
	require.NoError(t, os.WriteFile(path, []byte("start"), 0644))

	noEventWithin(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "slow.txt" }, 80*time.Millisecond)

	waitForEvent(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "slow.txt" }, 3*time.Second)
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, WithPolling(true))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestAddAfterCloseReturnsErrClosed(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, WithPolling(true))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = w.Add(t.TempDir())
	require.ErrorIs(t, err, ErrClosed)
}

func TestRootRelativeIgnorePattern(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond), WithIgnored("node_modules/**"))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "index.js"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("x"), 0644))

	waitForEvent(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "app.js" }, 3*time.Second)
	noEventWithin(t, w.All, func(e Event) bool {
		return filepath.Base(e.Path) == "index.js" || filepath.Base(e.Path) == "node_modules"
	}, 500*time.Millisecond)
}

func TestUnwatchStopsEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, WithPolling(true), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	<-w.Ready
	require.NoError(t, w.Unwatch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.txt"), []byte("x"), 0644))
	noEventWithin(t, w.All, func(e Event) bool { return filepath.Base(e.Path) == "late.txt" }, 500*time.Millisecond)
}

func TestGlobIncludeFilterRestrictsEmission(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	w, err := New(nil, WithPolling(true), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(filepath.Join(dir, "*.go")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0644))

	waitForEvent(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "main.go" }, 3*time.Second)
	noEventWithin(t, w.AddCh, func(e Event) bool { return filepath.Base(e.Path) == "readme.md" }, 500*time.Millisecond)
}
