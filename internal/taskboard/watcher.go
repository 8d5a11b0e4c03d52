package taskboard

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDebounceWindow is how long the notifier waits after the last
	// filesystem event before raising one refresh signal. Configured windows
	// are clamped to the 150-250ms band so event bursts (migration, archival)
	// still collapse to a single signal without making the UI feel laggy.
	DefaultDebounceWindow = 200 * time.Millisecond
	minDebounceWindow     = 150 * time.Millisecond
	maxDebounceWindow     = 250 * time.Millisecond
)

// Notifier watches the store root for external modifications to the index
// file and bundle tree and raises a debounced refresh signal. The signal
// means "re-read the board", never a diff; reconciliation decides what
// actually changed.
type Notifier struct {
	watcher   *fsnotify.Watcher
	tasksRoot string
	debounce  time.Duration
	logger    Logger

	mu          sync.Mutex
	subscribers map[int]chan struct{}
	nextSubID   int
	closed      bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewNotifier(storeRoot string, debounce time.Duration, logger Logger) (*Notifier, error) {
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	if debounce < minDebounceWindow {
		debounce = minDebounceWindow
	}
	if debounce > maxDebounceWindow {
		debounce = maxDebounceWindow
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	root := filepath.Clean(storeRoot)
	tasksRoot := filepath.Join(root, tasksDirName)

	n := &Notifier{
		watcher:     watcher,
		tasksRoot:   tasksRoot,
		debounce:    debounce,
		logger:      logger,
		subscribers: map[int]chan struct{}{},
		done:        make(chan struct{}),
	}

	if err := watcher.Add(root); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	// The tasks dir may not exist yet; it gets picked up via the root watch
	// once created.
	if err := watcher.Add(tasksRoot); err == nil {
		n.watchExistingBundles()
	}

	go n.run()
	return n, nil
}

func (n *Notifier) watchExistingBundles() {
	entries, err := os.ReadDir(n.tasksRoot)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || isTempArtifact(entry.Name()) {
			continue
		}
		if err := n.watcher.Add(filepath.Join(n.tasksRoot, entry.Name())); err != nil {
			logf(n.logger, "watch bundle %s: %v", entry.Name(), err)
		}
	}
}

func (n *Notifier) run() {
	timer := time.NewTimer(n.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-n.done:
			timer.Stop()
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if isTempArtifact(filepath.Base(event.Name)) {
				continue
			}
			n.trackNewDirectories(event)
			if pending {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			timer.Reset(n.debounce)
			pending = true
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			logf(n.logger, "watcher error: %v", err)
		case <-timer.C:
			pending = false
			n.broadcast()
		}
	}
}

// trackNewDirectories extends the watch set when bundle directories appear;
// fsnotify watches are not recursive.
func (n *Notifier) trackNewDirectories(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	path := filepath.Clean(event.Name)
	if path != n.tasksRoot && filepath.Dir(path) != n.tasksRoot {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := n.watcher.Add(path); err != nil {
		logf(n.logger, "watch %s: %v", path, err)
	}
	if path == n.tasksRoot {
		n.watchExistingBundles()
	}
}

func (n *Notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a refresh channel carrying at most one pending signal,
// plus a cancel func releasing the subscription.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan struct{}, 1)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	id := n.nextSubID
	n.nextSubID++
	n.subscribers[id] = ch
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subscribers[id]; ok {
			delete(n.subscribers, id)
			close(sub)
		}
	}
}

func (n *Notifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.done)
		err = n.watcher.Close()
		n.mu.Lock()
		n.closed = true
		for id, ch := range n.subscribers {
			delete(n.subscribers, id)
			close(ch)
		}
		n.mu.Unlock()
	})
	return err
}
