// Package watcher ingests files that appear or change in a directory.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ragchat/internal/loader"
	"ragchat/internal/logger"
)

// Handler is called once per settled file change.
type Handler func(ctx context.Context, path string) error

// Watcher turns fsnotify events into sequential Handler calls.
// Editors emit several events per save, so each path is debounced and a
// file whose content hash has not changed since the last successful call
// is skipped.
type Watcher struct {
	dir      string
	handler  Handler
	debounce time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	hashes map[string]string
	epoch  uint64
}

func New(dir string, handler Handler, debounce time.Duration, log *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: debounce,
		log:      logger.OrDiscard(log),
		timers:   make(map[string]*time.Timer),
		hashes:   make(map[string]string),
	}
}

// Run watches the directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching directory", "dir", w.dir)

	ready := make(chan string, 16)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !wanted(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name, ready)
		case path := <-ready:
			w.process(ctx, path)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) process(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	sum, err := hashFile(path)
	if err != nil {
		w.log.Warn("could not hash file", "path", path, "error", err)
		return
	}
	w.mu.Lock()
	unchanged := w.hashes[path] == sum
	epoch := w.epoch
	w.mu.Unlock()
	if unchanged {
		w.log.Debug("file unchanged, skipping", "path", path)
		return
	}
	if err := w.handler(ctx, path); err != nil {
		w.log.Warn("ingest from watcher failed", "path", path, "error", err)
		return
	}
	w.mu.Lock()
	if w.epoch == epoch {
		w.hashes[path] = sum
	}
	w.mu.Unlock()
}

// Forget drops the remembered content hashes so every file is ingested
// again on its next change. Call it after the knowledge base is cleared.
func (w *Watcher) Forget() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hashes = make(map[string]string)
	w.epoch++
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
}

// wanted skips hidden and editor backup files and unsupported formats.
func wanted(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if filepath.Ext(base) == "" {
		return false
	}
	return loader.Supported(path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
