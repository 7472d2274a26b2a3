package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 200 * time.Millisecond

// TuningWatcher reloads a tuning file when it changes on disk.
type TuningWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     zerolog.Logger
}

// NewTuningWatcher starts watching the directory holding path. Watching the
// directory keeps working across editors that replace the file by rename.
func NewTuningWatcher(path string, log zerolog.Logger) (*TuningWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &TuningWatcher{
		path:    abs,
		watcher: w,
		log:     log.With().Str("component", "tuning").Logger(),
	}, nil
}

// Run delivers each successfully parsed revision to onChange until ctx is
// done. Revisions that fail to parse are logged and skipped. The watcher is
// closed when Run returns.
func (tw *TuningWatcher) Run(ctx context.Context, onChange func(Tuning)) error {
	defer tw.watcher.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-tw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != tw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return nil
			}
			tw.log.Warn().Err(err).Msg("watch error")

		case <-pending:
			pending = nil
			t, err := LoadTuning(tw.path)
			if err != nil {
				tw.log.Warn().Err(err).Msg("tuning reload rejected")
				continue
			}
			tw.log.Info().Str("file", tw.path).Msg("tuning reloaded")
			onChange(t)
		}
	}
}

// WatchTuning watches path and calls onChange on every valid revision until
// ctx is done.
func WatchTuning(ctx context.Context, path string, log zerolog.Logger, onChange func(Tuning)) error {
	tw, err := NewTuningWatcher(path, log)
	if err != nil {
		return err
	}
	return tw.Run(ctx, onChange)
}
