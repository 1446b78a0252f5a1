// Package watcher turns filesystem changes under the workspace root into
// "file at path changed to content" events for live sessions.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultDebounce is how long events for a path are coalesced before dispatch.
const DefaultDebounce = 200 * time.Millisecond

// maxFileBytes bounds how much of a changed file is read into memory.
const maxFileBytes = 4 << 20

// DefaultIgnorePatterns are directories and files never synced to sessions.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"dist",
	"build",
	"vendor",
	".cache",
	".idea",
	".vscode",
	".DS_Store",
	"*.swp",
	"*~",
}

// Handler receives the absolute path and full content of a changed file.
type Handler func(absPath string, content []byte)

// Options configures a Watcher.
type Options struct {
	Root     string
	Debounce time.Duration
	Ignore   []string
	Logger   *slog.Logger
}

// Watcher watches a workspace tree and fans debounced changes out to subscribers.
type Watcher struct {
	ws       Workspace
	fsw      *fsnotify.Watcher
	ignore   *gitignore.GitIgnore
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	subs    map[uint64]Handler
	nextSub uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher over opts.Root. Call Start to begin watching.
func New(opts Options) (*Watcher, error) {
	ws, err := NewWorkspace(opts.Root)
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(opts.Ignore))
	patterns = append(patterns, DefaultIgnorePatterns...)
	patterns = append(patterns, opts.Ignore...)

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		ws:       ws,
		fsw:      fsw,
		ignore:   gitignore.CompileIgnoreLines(patterns...),
		debounce: opts.Debounce,
		logger:   opts.Logger.With("root", ws.Root),
		pending:  make(map[string]struct{}),
		subs:     make(map[uint64]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Workspace returns the resolver for paths under the watched root.
func (w *Watcher) Workspace() Workspace {
	return w.ws
}

// Start adds every non-ignored directory to the watch list and begins
// processing events.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.ws.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.ws.Root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk workspace: %w", err)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	w.logger.Info("Workspace watcher started", "debounce", w.debounce)
	return nil
}

// Close stops watching and waits for the event goroutines to exit.
func (w *Watcher) Close() error {
	w.cancel()
	w.wg.Wait()
	return w.fsw.Close()
}

// Subscribe registers h for every change. Closing the returned subscription
// unregisters it; it is safe to close more than once.
func (w *Watcher) Subscribe(h func(absPath string, content []byte)) (io.Closer, error) {
	if h == nil {
		return nil, errors.New("nil handler")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSub++
	id := w.nextSub
	w.subs[id] = h
	return &subscription{w: w, id: id}, nil
}

type subscription struct {
	w    *Watcher
	id   uint64
	once sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.w.mu.Lock()
		delete(s.w.subs, s.id)
		s.w.mu.Unlock()
	})
	return nil
}

func (w *Watcher) ignored(absPath string) bool {
	rel, err := filepath.Rel(w.ws.Root, absPath)
	if err != nil {
		return true
	}
	return w.ignore.MatchesPath(filepath.ToSlash(rel))
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	// Removals and renames have no content to sync.
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		w.mu.Lock()
		w.pending[event.Name] = struct{}{}
		w.mu.Unlock()
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

// flush reads every pending file and dispatches it to the current subscribers.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	handlers := make([]Handler, 0, len(w.subs))
	for _, h := range w.subs {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	sort.Strings(paths)
	for _, p := range paths {
		content, err := readFile(p)
		if err != nil {
			w.logger.Debug("Skipping unreadable change", "path", p, "error", err)
			continue
		}
		for _, h := range handlers {
			h(p, content)
		}
	}
	w.logger.Debug("Dispatched workspace changes", "files", len(paths), "subscribers", len(handlers))
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() > maxFileBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, maxFileBytes)
	}
	return os.ReadFile(path)
}

// Workspace resolves absolute paths against a root directory.
type Workspace struct {
	Root string
}

// NewWorkspace returns a Workspace rooted at the absolute, cleaned form of root.
func NewWorkspace(root string) (Workspace, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve workspace root: %w", err)
	}
	return Workspace{Root: abs}, nil
}

// Rel returns absPath relative to the root with forward slashes.
// Paths outside the root are rejected.
func (ws Workspace) Rel(absPath string) (string, error) {
	rel, err := filepath.Rel(ws.Root, absPath)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside workspace %s", absPath, ws.Root)
	}
	return filepath.ToSlash(rel), nil
}
