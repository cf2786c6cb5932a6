// Package loader reads templates from a directory, caches the parsed trees
// and reparses them when their files change.
package loader

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/conneroisu/tdi/internal/errors"
	"github.com/conneroisu/tdi/internal/logging"
	"github.com/conneroisu/tdi/internal/validation"
	"github.com/conneroisu/tdi/internal/watcher"
	"github.com/conneroisu/tdi/pkg/markup"
	"github.com/conneroisu/tdi/pkg/tdi"
)

// DefaultExtensions are tried in order when a name has no extension.
var DefaultExtensions = []string{".html", ".htm", ".xhtml", ".tdi"}

// DataExtensions are the model file extensions LoadData looks for.
var DataExtensions = []string{".yaml", ".yml", ".json"}

// ReloadFunc receives the root-relative, slash-separated names of changed
// files.
type ReloadFunc func(names []string)

type entry struct {
	tree    *tdi.Tree
	modTime time.Time
	size    int64
}

// Loader loads templates below a root directory. It is safe for
// concurrent use.
type Loader struct {
	root       string
	exts       []string
	parseOpts  []tdi.ParseOption
	dialect    markup.Dialect
	autoReload bool
	debounce   time.Duration
	logger     logging.Logger
	cache      *tdi.PrerenderCache

	mu      sync.Mutex
	entries map[string]*entry
	hooks   []ReloadFunc
	watcher *watcher.FileWatcher
	// unwatch cancels the watch context; watchDone closes once the
	// watcher has stopped.
	unwatch   context.CancelFunc
	watchDone chan struct{}
}

// Option configures a Loader.
type Option func(*Loader)

// WithExtensions sets the template extensions, dot included.
func WithExtensions(exts ...string) Option {
	return func(l *Loader) { l.exts = exts }
}

// WithParseOptions adds options to every parse. The loader's own source
// name, dialect and sniffed encoding take precedence.
func WithParseOptions(opts ...tdi.ParseOption) Option {
	return func(l *Loader) { l.parseOpts = append(l.parseOpts, opts...) }
}

// WithDialect parses every template in the given dialect. Charset sniffing
// only applies to markup.
func WithDialect(d markup.Dialect) Option {
	return func(l *Loader) { l.dialect = d }
}

// WithAutoReload makes Load compare the file's modification time and size
// against the cached tree. It is on by default.
func WithAutoReload(enabled bool) Option {
	return func(l *Loader) { l.autoReload = enabled }
}

// WithDebounce sets the quiet period Watch waits before reporting changes.
func WithDebounce(d time.Duration) Option {
	return func(l *Loader) { l.debounce = d }
}

// WithLogger sets the loader's logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) { l.logger = logger.WithComponent("loader") }
}

// New creates a loader for root.
func New(root string, opts ...Option) (*Loader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInvalidPath, "resolving template root")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "template root "+root)
	}
	if !info.IsDir() {
		return nil, errors.ErrInvalidPath(root).WithContext("reason", "not a directory")
	}

	l := &Loader{
		root:       abs,
		exts:       DefaultExtensions,
		autoReload: true,
		debounce:   100 * time.Millisecond,
		logger:     logging.Nop(),
		cache:      tdi.NewPrerenderCache(),
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, ext := range l.exts {
		if err := validation.ValidateExtension(ext); err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
		}
	}
	return l, nil
}

// Root returns the absolute template directory.
func (l *Loader) Root() string { return l.root }

// Cache returns the prerender cache shared by the loaded trees. Skeletons of
// reloaded trees are dropped from it.
func (l *Loader) Cache() *tdi.PrerenderCache { return l.cache }

// clean maps a name onto a root-relative slash path, rejecting anything
// that leaves the root.
func (l *Loader) clean(name string) (string, error) {
	rel, err := validation.CleanName(name)
	if err != nil {
		return "", errors.ErrInvalidPath(name).WithContext("reason", err.Error())
	}
	return rel, nil
}

// resolve finds the file for name, trying the extensions when name has none
// of them.
func (l *Loader) resolve(name string) (string, os.FileInfo, error) {
	rel, err := l.clean(name)
	if err != nil {
		return "", nil, err
	}
	candidates := []string{rel}
	if !l.hasExtension(rel) {
		for _, ext := range l.exts {
			candidates = append(candidates, rel+ext)
		}
	}

	var firstErr error
	for _, c := range candidates {
		info, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(c)))
		if err == nil && !info.IsDir() {
			return c, info, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", nil, errors.ErrTemplateNotFound(name, firstErr)
}

func (l *Loader) hasExtension(name string) bool {
	ext := path.Ext(name)
	return slices.ContainsFunc(l.exts, func(e string) bool { return strings.EqualFold(e, ext) })
}

// Load returns the parsed tree for name. Names are slash-separated and
// relative to the root; the extension may be left out.
func (l *Loader) Load(name string) (*tdi.Tree, error) {
	rel, info, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	cached, ok := l.entries[rel]
	l.mu.Unlock()
	if ok && (!l.autoReload || (cached.modTime.Equal(info.ModTime()) && cached.size == info.Size())) {
		return cached.tree, nil
	}

	op := logging.StartOperation(l.logger, "load_template")
	tree, err := l.parse(rel)
	if err != nil {
		op.EndWithError(context.Background(), err)
		return nil, err
	}
	op.End(context.Background(), "template", rel, "encoding", tree.Encoding())

	l.mu.Lock()
	if old, ok := l.entries[rel]; ok {
		l.cache.Invalidate(old.tree)
	}
	l.entries[rel] = &entry{tree: tree, modTime: info.ModTime(), size: info.Size()}
	l.mu.Unlock()
	return tree, nil
}

func (l *Loader) parse(rel string) (*tdi.Tree, error) {
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, "reading template "+rel)
	}

	opts := append(slices.Clone(l.parseOpts),
		tdi.WithSource(rel),
		tdi.WithDialect(l.dialect),
		tdi.WithParseLogger(l.logger),
	)
	if l.dialect == markup.DialectHTML {
		// a declaration inside the document still wins over the sniffed charset
		if name := sniff(data); name != "" {
			l.logger.Debug(context.Background(), "sniffed encoding", "template", rel, "encoding", name)
			opts = append(opts, tdi.WithEncoding(name))
		}
	}
	return tdi.Parse(data, opts...)
}

// sniff guesses the charset of an undeclared document. Plain ASCII and valid
// UTF-8 stay utf-8 even though the sniffer falls back to windows-1252 for
// them.
func sniff(data []byte) string {
	_, name, certain := charset.DetermineEncoding(data, "")
	if !certain && name == "windows-1252" && utf8.Valid(data) {
		return ""
	}
	return name
}

// LoadOverlay loads base and merges the overlays into it left to right.
func (l *Loader) LoadOverlay(base string, overlays ...string) (*tdi.Tree, error) {
	tree, err := l.Load(base)
	if err != nil {
		return nil, err
	}
	others := make([]*tdi.Tree, 0, len(overlays))
	for _, name := range overlays {
		other, err := l.Load(name)
		if err != nil {
			return nil, err
		}
		others = append(others, other)
	}
	return tree.Overlay(others...)
}

// LoadData reads the model file that sits next to a template: for
// "pages/index" or "pages/index.html" it looks for "pages/index.yaml",
// ".yml" and ".json". A missing file yields an empty model.
func (l *Loader) LoadData(name string) (*tdi.DataModel, error) {
	rel, err := l.clean(name)
	if err != nil {
		return nil, err
	}
	if l.hasExtension(rel) {
		rel = strings.TrimSuffix(rel, path.Ext(rel))
	}
	for _, ext := range DataExtensions {
		f, err := os.Open(filepath.Join(l.root, filepath.FromSlash(rel+ext)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, "reading model "+rel+ext)
		}
		m, err := tdi.LoadDataModel(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return tdi.NewDataModel(nil), nil
}

// List returns the names of every template below the root, sorted. Hidden
// files and directories are skipped.
func (l *Loader) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != l.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !l.hasExtension(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, "listing templates")
	}
	slices.Sort(names)
	return names, nil
}

// Invalidate drops cached trees. With no names every tree is dropped.
func (l *Loader) Invalidate(names ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(names) == 0 {
		for rel, e := range l.entries {
			l.cache.Invalidate(e.tree)
			delete(l.entries, rel)
		}
		return
	}
	for _, name := range names {
		rel, err := l.clean(name)
		if err != nil {
			continue
		}
		keys := []string{rel}
		if !l.hasExtension(rel) {
			for _, ext := range l.exts {
				keys = append(keys, rel+ext)
			}
		}
		for _, k := range keys {
			if e, ok := l.entries[k]; ok {
				l.cache.Invalidate(e.tree)
				delete(l.entries, k)
			}
		}
	}
}

// OnReload registers fn to run after Watch reports changed files.
func (l *Loader) OnReload(fn ReloadFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

// Watch starts watching the root for template and model changes until ctx
// is done or Close is called. Changed templates are dropped from the cache
// before the reload hooks run.
func (l *Loader) Watch(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		return nil
	}

	fw, err := watcher.NewFileWatcher(l.debounce, watcher.WithRoot(l.root), watcher.WithLogger(l.logger))
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeReadFailed, "creating file watcher")
	}
	fw.AddFilter(watcher.ExtensionFilter(append(slices.Clone(l.exts), DataExtensions...)...))
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddHandler(l.changed)
	if err := fw.AddRecursive(l.root); err != nil {
		_ = fw.Stop()
		return errors.WrapIO(err, errors.ErrCodeReadFailed, "watching "+l.root)
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := fw.Start(ctx); err != nil {
		cancel()
		_ = fw.Stop()
		return err
	}
	done := make(chan struct{})
	l.watcher, l.unwatch, l.watchDone = fw, cancel, done

	go func() {
		defer close(done)
		<-ctx.Done()
		_ = fw.Stop()
	}()
	l.logger.Info(ctx, "watching templates", "root", l.root)
	return nil
}

func (l *Loader) changed(events []watcher.ChangeEvent) error {
	names := make([]string, 0, len(events))
	for _, e := range events {
		if e.Name != "" && !strings.HasPrefix(e.Name, "../") {
			names = append(names, e.Name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	l.Invalidate(names...)

	l.mu.Lock()
	hooks := slices.Clone(l.hooks)
	l.mu.Unlock()

	l.logger.Info(context.Background(), "templates changed", "names", names)
	for _, fn := range hooks {
		fn(names)
	}
	return nil
}

// Close stops watching and drops every cached tree.
func (l *Loader) Close() error {
	l.mu.Lock()
	fw, cancel := l.watcher, l.unwatch
	l.watcher, l.unwatch = nil, nil
	l.mu.Unlock()

	l.Invalidate()
	if fw == nil {
		return nil
	}
	cancel()
	return fw.Stop()
}
