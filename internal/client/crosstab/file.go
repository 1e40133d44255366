package crosstab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/filex"
	"github.com/dmitrijs2005/geopresence/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

const (
	signalExt = ".sig"
	// DefaultRetention is how long published signal files are kept.
	DefaultRetention = time.Minute
)

// FileNotifier broadcasts signals through a directory shared by processes on
// one host. Each signal is a JSON file renamed into place; subscribers watch
// the directory with fsnotify.
type FileNotifier struct {
	dir    string
	retain time.Duration
	clock  clockwork.Clock
	log    logging.Logger

	mu       sync.Mutex
	watchers map[*fsnotify.Watcher]struct{}
	closed   bool
}

// NewFileNotifier creates dir if needed.
func NewFileNotifier(dir string, retain time.Duration, clock clockwork.Clock, log logging.Logger) (*FileNotifier, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare signal dir: %w", err)
	}
	if retain <= 0 {
		retain = DefaultRetention
	}
	return &FileNotifier{
		dir:      abs,
		retain:   retain,
		clock:    clock,
		log:      log,
		watchers: make(map[*fsnotify.Watcher]struct{}),
	}, nil
}

func (n *FileNotifier) Publish(ctx context.Context, s Signal) error {
	if n.isClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}

	at := s.At
	if at.IsZero() {
		at = n.clock.Now()
	}
	name := fmt.Sprintf("%019d-%s%s", at.UnixNano(), sanitize(s.Origin), signalExt)
	if err := filex.WriteFileAtomic(filepath.Join(n.dir, name), data, 0o600); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}

	n.prune(ctx)
	return nil
}

func (n *FileNotifier) Subscribe(ctx context.Context) (<-chan Signal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(n.dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", n.dir, err)
	}
	n.watchers[w] = struct{}{}

	out := make(chan Signal, defaultBuffer)
	go n.watch(ctx, w, out)
	return out, nil
}

func (n *FileNotifier) watch(ctx context.Context, w *fsnotify.Watcher, out chan<- Signal) {
	defer close(out)
	defer n.release(w)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if !isSignalFile(ev.Name) {
				continue
			}
			s, err := readSignal(ev.Name)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					n.log.Warn(ctx, "dropping unreadable signal", "file", filepath.Base(ev.Name), "error", err)
				}
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			n.log.Warn(ctx, "signal watcher error", "dir", n.dir, "error", err)
		}
	}
}

func (n *FileNotifier) release(w *fsnotify.Watcher) {
	n.mu.Lock()
	delete(n.watchers, w)
	n.mu.Unlock()
	_ = w.Close()
}

// prune removes signal files older than the retention window. Age is taken
// from the timestamp in the file name.
func (n *FileNotifier) prune(ctx context.Context) {
	entries, err := os.ReadDir(n.dir)
	if err != nil {
		n.log.Debug(ctx, "signal prune skipped", "error", err)
		return
	}
	cutoff := n.clock.Now().Add(-n.retain).UnixNano()
	for _, e := range entries {
		if e.IsDir() || !isSignalFile(e.Name()) {
			continue
		}
		stamp, _, _ := strings.Cut(e.Name(), "-")
		ns, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil || ns >= cutoff {
			continue
		}
		_ = os.Remove(filepath.Join(n.dir, e.Name()))
	}
}

// Close stops all watchers. Their channels are closed.
func (n *FileNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	ws := make([]*fsnotify.Watcher, 0, len(n.watchers))
	for w := range n.watchers {
		ws = append(ws, w)
	}
	n.mu.Unlock()

	var errs []error
	for _, w := range ws {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

func (n *FileNotifier) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func isSignalFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, signalExt) && !strings.HasPrefix(base, ".")
}

func readSignal(path string) (Signal, error) {
	var s Signal
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return s, nil
}

func sanitize(origin string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, origin)
}
