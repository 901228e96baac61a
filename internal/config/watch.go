package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchPolicyFile watches path for writes and sends on the returned
// channel each time one is observed. The caller (cmd/reload.go) owns
// recompiling the policy and swapping it into the gateway — this
// package only detects the file change, staying free of a dependency
// on internal/policy or internal/gateway.
//
// The channel is unbuffered-plus-one: a reload already pending and not
// yet drained coalesces with the next event rather than queuing, since
// only "reload now" matters, not how many writes triggered it.
func WatchPolicyFile(path string, logger *slog.Logger) (changes <-chan struct{}, stop func() error, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config: policy watch error", "error", err)
			}
		}
	}()

	return ch, watcher.Close, nil
}
