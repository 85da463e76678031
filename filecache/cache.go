// Package filecache caches parsed G-code files keyed by canonical path and
// invalidates entries on filesystem modify/remove events, grounded on
// original_source/gantry/src/files.rs.
package filecache

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"gantryd/gcodefile"
)

// Handler is invoked for every filesystem event rooted under (or equal to)
// the path it was registered with. Returning false unregisters it.
type Handler func(event fsnotify.Event) bool

type openRequest struct {
	path   string
	result chan openResult
}

type openResult struct {
	file *gcodefile.GcodeFile
	err  error
}

type handlerEntry struct {
	path    string
	handler Handler
}

type addHandlerRequest struct {
	path    string
	handler Handler
}

type invalidateRequest struct {
	path string
	done chan struct{}
}

// Cache is a single background worker owning the parsed-file map, the
// fsnotify watcher, and the registered handler list. All of its state is
// touched only from the worker goroutine; callers interact exclusively
// through channels.
type Cache struct {
	reqCh        chan openRequest
	addHandlerCh chan addHandlerRequest
	invalidateCh chan invalidateRequest
	done         chan struct{}
	closeOnce    sync.Once

	log *logrus.Entry
}

// watchState is the worker goroutine's private bookkeeping: the parsed-file
// cache plus the set of containing directories already under an fsnotify
// watch (fsnotify watches directories, not individual files, so a
// write-temp-then-rename by an editor or slicer never orphans a per-file
// watch).
type watchState struct {
	cache       map[string]*gcodefile.GcodeFile
	watchedDirs map[string]bool
}

// New starts the cache's worker goroutine and its fsnotify watcher.
func New(log *logrus.Entry) (*Cache, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	c := &Cache{
		reqCh:        make(chan openRequest),
		addHandlerCh: make(chan addHandlerRequest),
		invalidateCh: make(chan invalidateRequest),
		done:         make(chan struct{}),
		log:          log,
	}

	go c.run(watcher)

	return c, nil
}

// Close stops the worker goroutine and releases the fsnotify watcher.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Open parses filename (or returns the cached parse), canonicalising the
// path and beginning to watch it for changes on first open.
func (c *Cache) Open(filename string) (*gcodefile.GcodeFile, error) {
	path, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	req := openRequest{path: path, result: make(chan openResult, 1)}

	select {
	case c.reqCh <- req:
	case <-c.done:
		return nil, errClosed
	}

	select {
	case res := <-req.result:
		return res.file, res.err
	case <-c.done:
		return nil, errClosed
	}
}

// Invalidate drops filename's cached parse, if any, so the next Open
// re-reads and re-parses it from disk. Used by ScanFileMetadata to force a
// re-scan on demand rather than waiting for a filesystem-watch event.
func (c *Cache) Invalidate(filename string) error {
	path, err := filepath.Abs(filename)
	if err != nil {
		return err
	}

	req := invalidateRequest{path: path, done: make(chan struct{})}
	select {
	case c.invalidateCh <- req:
	case <-c.done:
		return errClosed
	}

	select {
	case <-req.done:
		return nil
	case <-c.done:
		return errClosed
	}
}

// Watch registers handler against every fsnotify event whose path is path
// itself or nested under it.
func (c *Cache) Watch(path string, handler Handler) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	select {
	case c.addHandlerCh <- addHandlerRequest{path: abs, handler: handler}:
	case <-c.done:
	}
}

func (c *Cache) run(watcher *fsnotify.Watcher) {
	defer watcher.Close()

	st := watchState{
		cache:       make(map[string]*gcodefile.GcodeFile),
		watchedDirs: make(map[string]bool),
	}
	var handlers []handlerEntry

	for {
		select {
		case <-c.done:
			return

		case req := <-c.reqCh:
			if gf, ok := st.cache[req.path]; ok {
				req.result <- openResult{file: gf}
				continue
			}

			gf, err := parseFile(req.path)
			if err == nil {
				st.cache[req.path] = gf
				dir := filepath.Dir(req.path)
				if !st.watchedDirs[dir] {
					if werr := watcher.Add(dir); werr != nil {
						c.log.WithError(werr).Warn("filecache: failed to watch directory")
					} else {
						st.watchedDirs[dir] = true
					}
				}
			}
			req.result <- openResult{file: gf, err: err}

		case add := <-c.addHandlerCh:
			handlers = append(handlers, handlerEntry{path: add.path, handler: add.handler})

		case inv := <-c.invalidateCh:
			evictByPrefix(st.cache, inv.path)
			close(inv.done)

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				evictByPrefix(st.cache, event.Name)
			}

			kept := handlers[:0]
			for _, h := range handlers {
				if !strings.HasPrefix(event.Name, h.path) {
					kept = append(kept, h)
					continue
				}
				if h.handler(event) {
					kept = append(kept, h)
				} else {
					_ = watcher.Remove(h.path)
				}
			}
			handlers = kept

		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.log.WithError(werr).Warn("filecache: watcher error")
		}
	}
}

// evictByPrefix drops every cache entry whose key starts with path, so a
// single event against a directory (or a file that turns out to be a
// directory prefix of other cached entries) invalidates everything beneath
// it, not just an exact-match key.
func evictByPrefix(cache map[string]*gcodefile.GcodeFile, path string) {
	for key := range cache {
		if strings.HasPrefix(key, path) {
			delete(cache, key)
		}
	}
}

func parseFile(path string) (*gcodefile.GcodeFile, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return gcodefile.Parse(data)
}
