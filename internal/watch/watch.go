// Package watch notices edits to the SUMMARY.md mirror on disk.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/craftwiki/internal/storage"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// File watches dir/name and calls fn once per burst of changes, after
// debounce has passed without another event. It returns when ctx is done.
//
// The directory is watched rather than the file so that editors that save
// by renaming a temp file over the original keep being followed.
func File(ctx context.Context, dir, name string, debounce time.Duration, logger *slog.Logger, fn func(context.Context)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(filepath.Join(dir, name))
	logger.Info("watch: started", slog.String("file", target))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch: stopped")
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			fn(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, target) {
				continue
			}
			logger.Debug("watch: change", slog.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerCh = timer.C
			} else {
				timer.Reset(debounce)
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: error", slog.String("error", werr.Error()))
		}
	}
}

func relevant(ev fsnotify.Event, target string) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), storage.TempPrefix) {
		return false
	}
	if filepath.Clean(ev.Name) != target {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write) != 0
}
