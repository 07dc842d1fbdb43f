package storage

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileWatcher reports collection files under a FileBackend root that change
// outside the server, e.g. an operator editing data/apps.json by hand
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	onChange func(key string)
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileWatcher creates a watcher for root. onChange receives the document
// key of every created, written or removed .json file.
func NewFileWatcher(root string, onChange func(key string), log zerolog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher:  watcher,
		root:     root,
		onChange: onChange,
		log:      log.With().Str("component", "file_watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start watches root and every directory below it
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	err := filepath.WalkDir(fw.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", fw.root, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	fw.log.Info().Str("root", fw.root).Msg("Watching data directory")
	return nil
}

// Stop ends the event loop and releases the watcher
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	fw.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	// New subdirectories (e.g. gallery/<type>) get watched too
	if event.Has(fsnotify.Create) && isDir(event.Name) {
		if err := fw.watcher.Add(event.Name); err != nil {
			fw.log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
		}
		return
	}

	if !strings.HasSuffix(event.Name, ".json") {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	key, ok := fw.keyFor(event.Name)
	if !ok {
		return
	}
	fw.log.Debug().Str("key", key).Str("op", event.Op.String()).Msg("Collection file changed")
	fw.onChange(key)
}

func (fw *FileWatcher) keyFor(path string) (string, bool) {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, ".json")), true
}
