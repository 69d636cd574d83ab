package download

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func fastWatcher(dir string) *Watcher {
	w := NewWatcher(dir, ".csv", nil)
	w.Interval = 50 * time.Millisecond
	w.MarkerWait = 10 * time.Second
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAwaitNewFile_CompletedFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w := fastWatcher(dir)
	snap, err := TakeSnapshot(dir, ".csv")
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b\n1,2\n"), 0o644)
	}()

	res, err := w.AwaitNewFile(context.Background(), snap, 5*time.Second)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.csv"), res.Path)
	assert.Equal(t, int64(8), res.Size)
	assert.False(t, res.CompletedAt.IsZero())
}

// A download whose in-progress marker lingers for 3 seconds is not reported
// until the marker is gone and the size has held across two samples.
func TestAwaitNewFile_WaitsForMarkerToClear(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w := fastWatcher(dir)
	target := filepath.Join(dir, "calls.csv")

	writeFile(t, target, "partial")
	writeFile(t, target+MarkerSuffix, "")
	markerCleared := make(chan time.Time, 1)
	go func() {
		time.Sleep(3 * time.Second)
		_ = os.WriteFile(target, []byte("partial,complete\n"), 0o644)
		_ = os.Remove(target + MarkerSuffix)
		markerCleared <- time.Now()
	}()

	res, err := w.AwaitNewFile(context.Background(), Snapshot{}, 10*time.Second)
	require.NoError(t, err)

	cleared := <-markerCleared
	assert.False(t, res.CompletedAt.Before(cleared))
	assert.Equal(t, int64(len("partial,complete\n")), res.Size)
	_, err = os.Stat(target + MarkerSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestAwaitNewFile_GrowingFileNotReportedEarly(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w := fastWatcher(dir)
	target := filepath.Join(dir, "big.csv")

	stopped := make(chan int64, 1)
	go func() {
		f, err := os.Create(target)
		if err != nil {
			stopped <- -1
			return
		}
		var n int64
		for i := 0; i < 30; i++ {
			k, _ := f.WriteString("row,row,row\n")
			n += int64(k)
			time.Sleep(10 * time.Millisecond)
		}
		_ = f.Close()
		stopped <- n
	}()

	res, err := w.AwaitNewFile(context.Background(), Snapshot{}, 5*time.Second)
	require.NoError(t, err)

	final := <-stopped
	require.Positive(t, final)
	assert.Equal(t, final, res.Size)
}

func TestAwaitNewFile_EmptyFileNeverQualifies(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "empty.csv"), "")

	_, err := fastWatcher(dir).AwaitNewFile(context.Background(), Snapshot{}, 400*time.Millisecond)

	assert.ErrorIs(t, err, ErrDownloadTimeout)
	assert.Contains(t, err.Error(), "did not stabilize")
}

func TestAwaitNewFile_IgnoresExcludedAndOtherExtensions(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.csv"), "old")
	writeFile(t, filepath.Join(dir, "notes.txt"), "txt")
	writeFile(t, filepath.Join(dir, "pending.csv"+MarkerSuffix), "x")

	_, err := fastWatcher(dir).AwaitNewFile(context.Background(), nil, 400*time.Millisecond)

	assert.ErrorIs(t, err, ErrDownloadTimeout)
	assert.Contains(t, err.Error(), "no new .csv file")
}

func TestAwaitNewFile_ExtensionIsCaseInsensitive(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "EXPORT.CSV"), "x,y\n")

	res, err := fastWatcher(dir).AwaitNewFile(context.Background(), Snapshot{}, 2*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "EXPORT.CSV", filepath.Base(res.Path))
}

func TestAwaitNewFile_StuckMarker(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	target := filepath.Join(dir, "stuck.csv")
	writeFile(t, target, "x")
	writeFile(t, target+MarkerSuffix, "")

	w := fastWatcher(dir)
	w.MarkerWait = 200 * time.Millisecond

	_, err := w.AwaitNewFile(context.Background(), Snapshot{}, 5*time.Second)

	assert.ErrorIs(t, err, ErrDownloadTimeout)
	assert.Contains(t, err.Error(), "transfer marker")
}

func TestAwaitNewFile_ContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := fastWatcher(t.TempDir()).AwaitNewFile(ctx, Snapshot{}, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDownloadTimeout)
}

func TestAwaitNewFile_MissingDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := filepath.Join(t.TempDir(), "not-yet")

	_, err := fastWatcher(dir).AwaitNewFile(context.Background(), nil, 200*time.Millisecond)

	assert.ErrorIs(t, err, ErrDownloadTimeout)
}

func TestTakeSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.csv"), "1")
	writeFile(t, filepath.Join(dir, "b.CSV"), "1")
	writeFile(t, filepath.Join(dir, "c.txt"), "1")
	writeFile(t, filepath.Join(dir, "d.csv"+MarkerSuffix), "1")
	require.NoError(t, os.Mkdir(filepath.Join(dir, PartitionPrefix+"x"), 0o755))

	snap, err := TakeSnapshot(dir, ".csv")

	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.True(t, snap.Has("a.csv"))
	assert.True(t, snap.Has(filepath.Join(dir, "b.CSV")))
	assert.False(t, snap.Has("c.txt"))

	snap.Add(filepath.Join(dir, "e.csv"))
	assert.True(t, snap.Has("e.csv"))
}
