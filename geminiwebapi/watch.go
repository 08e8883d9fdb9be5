package geminiwebapi

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// WatchCredentials reloads the credential file into the client whenever it
// changes on disk, so a freshly exported cookie pair takes effect without a
// restart. It blocks until ctx is cancelled; run it in its own goroutine.
func WatchCredentials(ctx context.Context, path string, client *GeminiClient) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Watch the directory: editors and browsers replace the file rather than
	// writing it in place, which drops a file-level watch.
	dir := filepath.Dir(path)
	if err = watcher.Add(dir); err != nil {
		return err
	}
	target, err := filepath.Abs(path)
	if err != nil {
		target = path
	}

	log.Debugf("watching credential file %s", target)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if abs, errAbs := filepath.Abs(event.Name); errAbs != nil || abs != target {
				continue
			}
			psid, psidts, errLoad := LoadCookieFile(path)
			if errLoad != nil {
				log.Warnf("credential file changed but reload failed: %v", errLoad)
				continue
			}
			client.SetCredentials(psid, psidts)
			log.Infof("credentials reloaded from %s", path)
		case errWatch, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("credential watcher error: %v", errWatch)
		}
	}
}
