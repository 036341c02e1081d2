package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/pagebound/jacket/util/log"
)

// Watch re-reads the config file whenever it changes and swaps the
// runtime-tunable fields into c. The parent directory is watched rather than
// the file itself so that editors and config-management tools that replace
// the file by rename keep triggering reloads. The returned stop function
// releases the watcher.
func (c *Config) Watch(path string, onReload func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Clean(path)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				fresh, err := Load(target)
				if err != nil {
					log.Printf("Config reload failed, keeping current settings: %v", err)
					continue
				}
				c.applyHot(fresh)
				log.Printf("Config reloaded from %s", target)
				if onReload != nil {
					onReload(fresh)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Config watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		close(done)
		watcher.Close()
	}
	return stop, nil
}
