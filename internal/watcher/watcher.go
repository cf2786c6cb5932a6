// Package watcher reports template file changes in debounced batches.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/tdi/internal/logging"
)

// FileWatcher watches template directories and groups rapid changes.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	root      string
	logger    logging.Logger
	mutex     sync.RWMutex
	stopOnce  sync.Once
}

// ChangeEvent is one file change. Name is Path relative to the watcher
// root, slash separated.
type ChangeEvent struct {
	Type    EventType
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
}

// EventType is the kind of change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path is of interest.
type FileFilter func(path string) bool

// ChangeHandler receives a debounced batch, sorted by path.
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together.
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	stopped bool
	mutex   sync.Mutex
}

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithLogger sets the watcher's logger.
func WithLogger(l logging.Logger) Option {
	return func(fw *FileWatcher) { fw.logger = l.WithComponent("watcher") }
}

// WithRoot confines watched paths to root. The default is the working
// directory.
func WithRoot(root string) Option {
	return func(fw *FileWatcher) { fw.root = root }
}

// NewFileWatcher creates a file watcher that flushes after debounceDelay
// of quiet.
func NewFileWatcher(debounceDelay time.Duration, opts ...Option) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher: watcher,
		debouncer: &Debouncer{
			delay:  debounceDelay,
			events: make(chan ChangeEvent, 100),
			output: make(chan []ChangeEvent, 10),
		},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(fw)
	}
	if fw.root == "" {
		if fw.root, err = os.Getwd(); err != nil {
			_ = watcher.Close()
			return nil, err
		}
	}
	if fw.root, err = filepath.Abs(fw.root); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return fw, nil
}

// AddFilter adds a filter. Every filter must accept a path.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler.
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath watches a single directory or file.
func (fw *FileWatcher) AddPath(path string) error {
	clean, err := fw.validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.watcher.Add(clean)
}

// AddRecursive watches root and every directory below it, skipping
// hidden directories.
func (fw *FileWatcher) AddRecursive(root string) error {
	clean, err := fw.validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(clean, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != clean && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// validatePath cleans path and rejects anything outside the root.
func (fw *FileWatcher) validatePath(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	rel, err := filepath.Rel(fw.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside %s", path, fw.root)
	}
	return abs, nil
}

// Start runs the watcher until ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop releases the watcher. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.debouncer.stop()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) accepts(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func eventTypeOf(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	change := ChangeEvent{Type: eventTypeOf(event.Op), Path: event.Name, Name: event.Name}
	if rel, err := filepath.Rel(fw.root, event.Name); err == nil {
		change.Name = filepath.ToSlash(rel)
	}

	// removed and renamed paths no longer stat
	if info, err := os.Stat(event.Name); err == nil {
		if info.IsDir() {
			fw.watchNewDir(change)
			return
		}
		change.ModTime, change.Size = info.ModTime(), info.Size()
	}
	if !fw.accepts(event.Name) {
		return
	}

	select {
	case fw.debouncer.events <- change:
	default:
		fw.logger.Debug(context.Background(), "dropping change event", "name", change.Name)
	}
}

func (fw *FileWatcher) watchNewDir(change ChangeEvent) {
	if change.Type != EventTypeCreated || !NoHiddenFilter(change.Path) {
		return
	}
	if err := fw.AddRecursive(change.Path); err != nil {
		fw.logger.Warn(context.Background(), err, "watching new directory", "name", change.Name)
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := slices.Clone(fw.handlers)
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Warn(ctx, err, "change handler failed", "events", len(events))
				}
			}
		}
	}
}

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := coalesce(d.pending)
	select {
	case d.output <- batch:
		d.pending = d.pending[:0]
	default:
		// handlers are still busy; merge with whatever arrives next
		d.pending = batch
		d.timer = time.AfterFunc(d.delay, d.flush)
	}
}

// coalesce keeps the last event per path, sorted by path.
func coalesce(events []ChangeEvent) []ChangeEvent {
	batch := make([]ChangeEvent, 0, len(events))
	index := make(map[string]int, len(events))
	for _, event := range events {
		if i, ok := index[event.Path]; ok {
			batch[i] = event
			continue
		}
		index[event.Path] = len(batch)
		batch = append(batch, event)
	}
	slices.SortFunc(batch, func(a, b ChangeEvent) int { return strings.Compare(a.Path, b.Path) })
	return batch
}

// ExtensionFilter accepts paths with one of the extensions, compared
// case-insensitively. Extensions include the dot.
func ExtensionFilter(exts ...string) FileFilter {
	return func(path string) bool {
		ext := filepath.Ext(path)
		for _, e := range exts {
			if strings.EqualFold(ext, e) {
				return true
			}
		}
		return false
	}
}

// NoHiddenFilter rejects dot files and editor backups.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}
