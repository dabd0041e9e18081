package server

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"chimera/internal/database"
	"chimera/pkg/logging"
)

// registryFilePath returns the metadata store's file when it is a sqlite
// file on disk; other backends have no file to watch.
func (s *Server) registryFilePath() (string, bool) {
	return database.SQLitePath(s.cfg.MetadataURL)
}

// startRegistryWatch re-syncs capabilities when another process writes the
// sqlite metadata file. The watch is on the directory because sqlite
// replaces files during WAL checkpoints.
func (s *Server) startRegistryWatch(path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn(subsystem, "Registry watch unavailable: %v", err)
		return
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logging.Warn(subsystem, "Cannot watch %s: %v", dir, err)
		watcher.Close()
		return
	}
	logging.Info(subsystem, "Watching %s for external registry changes", path)

	base := filepath.Base(path)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer watcher.Close()

		// Debounce: sqlite emits bursts of writes per transaction.
		var pending <-chan time.Time
		for {
			select {
			case <-s.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base && filepath.Base(event.Name) != base+"-wal" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				pending = time.After(500 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn(subsystem, "Registry watch error: %v", err)
			case <-pending:
				pending = nil
				s.engine.NotifyChanged()
			}
		}
	}()
}
