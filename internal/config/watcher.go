package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// Watch starts an fsnotify watch on the configuration file; on every
// write it reloads the document in place and broadcasts a ChangeEvent
// with base "file", so external edits are picked up without a restart.
// The watcher goroutine exits when stop is closed.
func (h *Handle) Watch(stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}

	h.mu.RLock()
	path := h.path
	h.mu.RUnlock()

	if err := w.Add(path); err != nil {
		w.Close()
		return fmt.Errorf("config: watching %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := h.reload(); err != nil {
					log.Warnf("config: reload after %s: %v", ev, err)
					continue
				}
				h.broadcaster.Publish(ChangeEvent{Base: "file"})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warnf("config: watcher error: %v", err)
			}
		}
	}()

	return nil
}

func (h *Handle) reload() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := os.ReadFile(h.path)
	if err != nil {
		return err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	h.doc = doc
	return nil
}
