// Package download observes a browser download directory and reports files
// once the browser has finished writing them.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// MarkerSuffix is appended by Chromium to a file that is still being written.
const MarkerSuffix = ".crdownload"

var ErrDownloadTimeout = errors.New("download did not complete")

// Result describes a completed download.
type Result struct {
	Path        string
	Size        int64
	CompletedAt time.Time
}

// Snapshot is the set of file names present in a directory at one moment.
type Snapshot map[string]struct{}

// Add records name as already seen.
func (s Snapshot) Add(name string) { s[filepath.Base(name)] = struct{}{} }

func (s Snapshot) Has(name string) bool {
	_, ok := s[filepath.Base(name)]
	return ok
}

// TakeSnapshot lists the finished files in dir matching ext. A missing
// directory yields an empty snapshot.
func TakeSnapshot(dir, ext string) (Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("read download dir: %w", err)
	}
	snap := make(Snapshot, len(entries))
	for _, e := range entries {
		if !e.IsDir() && matches(e.Name(), ext) {
			snap[e.Name()] = struct{}{}
		}
	}
	return snap, nil
}

// matches accepts names with extension ext (case-insensitive) that are not
// transfer markers. An empty ext accepts any finished file.
func matches(name, ext string) bool {
	if strings.HasSuffix(name, MarkerSuffix) || strings.HasPrefix(name, ".") {
		return false
	}
	if ext == "" {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ext)
}

// Watcher waits for new files in Dir.
type Watcher struct {
	Dir string
	// Ext filters candidates, e.g. ".csv".
	Ext string
	// Interval is the sampling period for both discovery and size checks.
	Interval time.Duration
	// MarkerWait bounds how long a candidate's in-progress marker may linger.
	MarkerWait time.Duration
	Logger     *zap.Logger
}

func NewWatcher(dir, ext string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		Dir:        dir,
		Ext:        ext,
		Interval:   500 * time.Millisecond,
		MarkerWait: 60 * time.Second,
		Logger:     logger,
	}
}

// AwaitNewFile blocks until a file absent from exclude appears in Dir, its
// transfer marker is gone, and two consecutive size samples agree and are
// nonzero. A nil exclude means "snapshot the directory now". It fails with
// ErrDownloadTimeout when nothing qualifies within timeout.
func (w *Watcher) AwaitNewFile(ctx context.Context, exclude Snapshot, timeout time.Duration) (Result, error) {
	if exclude == nil {
		snap, err := TakeSnapshot(w.Dir, w.Ext)
		if err != nil {
			return Result{}, err
		}
		exclude = snap
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wake := w.notify(ctx)

	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()

	var (
		candidate string
		lastSize  int64 = -1
		markerAt  time.Time
		// Size samples are only taken on ticks so that two samples are always
		// an interval apart. fsnotify wake-ups only speed up discovery.
		tick = true
	)
	for {
		path, err := w.newest(exclude)
		if err != nil {
			return Result{}, err
		}

		if path != "" && path != candidate {
			w.Logger.Debug("download candidate", zap.String("path", path))
			candidate, lastSize, markerAt = path, -1, time.Time{}
		}

		if candidate != "" && tick {
			res, done, err := w.sample(candidate, &lastSize, &markerAt)
			if err != nil {
				return Result{}, err
			}
			if done {
				return res, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && candidate == "" {
				return Result{}, fmt.Errorf("%w: no new %s file in %s after %s", ErrDownloadTimeout, w.Ext, w.Dir, timeout)
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{}, fmt.Errorf("%w: %s did not stabilize after %s", ErrDownloadTimeout, filepath.Base(candidate), timeout)
			}
			return Result{}, ctx.Err()
		case <-ticker.C:
			tick = true
		case <-wake:
			tick = false
		}
	}
}

// sample advances the stability check for path by one step. A marker that
// outlives MarkerWait fails the wait.
func (w *Watcher) sample(path string, lastSize *int64, markerAt *time.Time) (Result, bool, error) {
	if _, err := os.Stat(path + MarkerSuffix); err == nil {
		if markerAt.IsZero() {
			*markerAt = time.Now()
		} else if time.Since(*markerAt) > w.MarkerWait {
			return Result{}, false, fmt.Errorf("%w: %s still has a transfer marker after %s",
				ErrDownloadTimeout, filepath.Base(path), w.MarkerWait)
		}
		*lastSize = -1
		return Result{}, false, nil
	}
	*markerAt = time.Time{}

	info, err := os.Stat(path)
	if err != nil {
		// Renamed or removed between listing and stat; pick it up next round.
		*lastSize = -1
		return Result{}, false, nil
	}
	size := info.Size()
	if size > 0 && size == *lastSize {
		w.Logger.Debug("download complete", zap.String("path", path), zap.Int64("bytes", size))
		return Result{Path: path, Size: size, CompletedAt: time.Now()}, true, nil
	}
	*lastSize = size
	return Result{}, false, nil
}

// newest returns the most recently modified qualifying file not in exclude.
func (w *Watcher) newest(exclude Snapshot) (string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read download dir: %w", err)
	}

	type cand struct {
		name string
		mod  time.Time
	}
	var cands []cand
	for _, e := range entries {
		if e.IsDir() || !matches(e.Name(), w.Ext) || exclude.Has(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, cand{e.Name(), info.ModTime()})
	}
	if len(cands) == 0 {
		return "", nil
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mod.After(cands[j].mod) })
	return filepath.Join(w.Dir, cands[0].name), nil
}

// notify returns a channel that receives when Dir changes. Polling remains
// the source of truth; without a working fsnotify watch the channel never
// fires. The watch goroutine exits when ctx ends.
func (w *Watcher) notify(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.Logger.Debug("fsnotify unavailable, polling only", zap.Error(err))
		return wake
	}
	if err := fw.Add(w.Dir); err != nil {
		_ = fw.Close()
		w.Logger.Debug("fsnotify add failed, polling only", zap.String("dir", w.Dir), zap.Error(err))
		return wake
	}

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-fw.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return wake
}

func (w *Watcher) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}
