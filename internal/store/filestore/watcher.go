package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const (
	debounceDelay   = 50 * time.Millisecond
	eventBufferSize = 100
)

// EventKind says what happened to an identifier.
type EventKind string

const (
	EventSaved   EventKind = "saved"
	EventRemoved EventKind = "removed"
)

// Event reports a change to an identifier's files, from this or any other
// process sharing the directory.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Watcher watches the store directory for record and marker changes using
// fsnotify. Bursts of events for one identifier (temp file, rename, marker
// write) are debounced into a single Event.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher

	mu          sync.Mutex
	subscribers map[string][]chan<- Event // pattern -> channels
	debounce    map[string]*time.Timer    // id -> debounce timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher starts watching the store directory.
func (s *Store) NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fw.Add(s.dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		store:       s,
		watcher:     fw,
		subscribers: make(map[string][]chan<- Event),
		debounce:    make(map[string]*time.Timer),
		ctx:         ctx,
		cancel:      cancel,
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Watch returns a channel receiving events for identifiers matching pattern,
// a doublestar glob ("*" or "" for everything). The channel is closed when
// ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, pattern string) (<-chan Event, error) {
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}

	ch := make(chan Event, eventBufferSize)

	w.mu.Lock()
	w.subscribers[pattern] = append(w.subscribers[pattern], ch)
	w.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.unsubscribe(pattern, ch)
		case <-w.ctx.Done():
			// Close() closes the channel.
		}
	}()

	return ch, nil
}

// Close stops watching and closes all subscriber channels.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	for _, timer := range w.debounce {
		timer.Stop()
	}
	for _, subs := range w.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	w.subscribers = make(map[string][]chan<- Event)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) unsubscribe(pattern string, ch chan<- Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	subs := w.subscribers[pattern]
	for i, sub := range subs {
		if sub == ch {
			w.subscribers[pattern] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(w.subscribers[pattern]) == 0 {
		delete(w.subscribers, pattern)
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.log.Debug().Err(err).Msg("store watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	id, _, ok := w.store.idFromName(filepath.Base(event.Name))
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if timer, exists := w.debounce[id]; exists {
		timer.Stop()
	}
	w.debounce[id] = time.AfterFunc(debounceDelay, func() {
		w.notify(id)
	})
}

// notify resolves the settled state of id and fans it out to subscribers.
func (w *Watcher) notify(id string) {
	kind := EventRemoved
	if _, err := os.Stat(w.store.RecordPath(id)); err == nil {
		kind = EventSaved
	}

	event := Event{ID: id, Kind: kind, Timestamp: time.Now()}

	w.mu.Lock()
	defer w.mu.Unlock()

	for pattern, subs := range w.subscribers {
		if match, _ := doublestar.Match(pattern, id); !match {
			continue
		}
		for _, ch := range subs {
			select {
			case ch <- event:
			default:
				// Channel full, drop event to prevent blocking
			}
		}
	}

	delete(w.debounce, id)
}
