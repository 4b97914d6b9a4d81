// Package inbox watches a directory for exported notes files and imports
// each one once it has stopped changing.
package inbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quire/internal/notestore"
)

// DefaultSettle is how long a file must be quiet before it is imported.
const DefaultSettle = 200 * time.Millisecond

// Suffixes given to processed files.
const (
	DoneSuffix   = ".done"
	FailedSuffix = ".failed"
)

// Importer imports one file.
type Importer interface {
	ImportFile(path string) (notestore.ImportResult, error)
}

// Watch imports every *.json file that appears in dir until ctx is
// cancelled. Files already present when Watch starts are imported first.
// A processed file is renamed with DoneSuffix, or FailedSuffix when the
// import failed, so it is never imported twice.
//
// Writers usually create a file and then write it in several chunks, so
// each path is debounced by settle before it is read.
func Watch(ctx context.Context, dir string, imp Importer, logger *slog.Logger, settle time.Duration) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("inbox: started", slog.String("dir", dir))

	existing, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	for _, path := range existing {
		process(imp, path, logger)
	}

	// Pending paths and a single timer for the earliest deadline.
	pending := make(map[string]time.Time)
	var timer *time.Timer
	var timerCh <-chan time.Time

	arm := func() {
		var next time.Time
		for _, at := range pending {
			if next.IsZero() || at.Before(next) {
				next = at
			}
		}
		if next.IsZero() {
			return
		}
		d := max(time.Until(next), time.Millisecond)
		if timer == nil {
			timer = time.NewTimer(d)
			timerCh = timer.C
			return
		}
		timer.Reset(d)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			now := time.Now()
			for path, at := range pending {
				if at.After(now) {
					continue
				}
				delete(pending, path)
				process(imp, path, logger)
			}
			arm()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isImportFile(ev.Name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[ev.Name] = time.Now().Add(settle)
				arm()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isImportFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func process(imp Importer, path string, logger *slog.Logger) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}
	suffix := DoneSuffix
	res, err := imp.ImportFile(path)
	if err != nil {
		suffix = FailedSuffix
		logger.Warn("inbox: import failed", slog.String("path", path), slog.String("error", err.Error()))
	} else {
		logger.Info("inbox: imported",
			slog.String("path", path),
			slog.Int("added", res.Added),
			slog.Int("skipped", res.SkippedDuplicate),
			slog.Int("rejected", res.Rejected))
	}
	if err := os.Rename(path, path+suffix); err != nil {
		logger.Warn("inbox: rename failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}
