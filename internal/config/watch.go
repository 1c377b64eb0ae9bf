package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 25 * time.Millisecond

// ScenarioWatcher monitors the configured scenario source (file or folder) and
// invokes the callback whenever definitions change. Stop releases the
// underlying filesystem watches.
type ScenarioWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *ScenarioWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchScenarios reloads the scenario bundle on every relevant filesystem
// change. cfg must come from Loader.Load so inline scenarios are preserved
// across reloads. onChange receives the initial bundle before WatchScenarios
// returns.
func (l *Loader) WatchScenarios(ctx context.Context, cfg Config, onChange func(ScenarioBundle), onError func(error)) (*ScenarioWatcher, error) {
	if onChange == nil {
		return nil, errors.New("config: watch scenarios requires a change callback")
	}
	suite := cfg.Suite
	if suite.ScenariosFile == "" && suite.ScenariosFolder == "" {
		return nil, errors.New("config: no scenario source configured for watching")
	}
	report := func(err error) {
		if err != nil && onError != nil {
			onError(err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch scenarios: %w", err)
	}

	inline := cloneScenarioMap(cfg.InlineScenarios)
	bundle, err := buildScenarioBundle(watchCtx, inline, suite)
	if err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			report(fmt.Errorf("config: watch scenarios close: %w", closeErr))
		}
		cancel()
		return nil, err
	}
	onChange(bundle)

	targetFile := ""
	dirs := map[string]struct{}{}
	addDir := func(dir string) {
		dir = filepath.Clean(dir)
		if _, ok := dirs[dir]; ok {
			return
		}
		if err := watcher.Add(dir); err != nil {
			report(fmt.Errorf("config: watch add %s: %w", dir, err))
			return
		}
		dirs[dir] = struct{}{}
	}
	if suite.ScenariosFile != "" {
		resolved, err := filepath.Abs(suite.ScenariosFile)
		if err != nil {
			report(fmt.Errorf("config: resolve scenarios file: %w", err))
			resolved = suite.ScenariosFile
		}
		targetFile = filepath.Clean(resolved)
		addDir(filepath.Dir(targetFile))
	} else {
		root, err := filepath.Abs(suite.ScenariosFolder)
		if err != nil {
			report(fmt.Errorf("config: resolve scenarios folder: %w", err))
			root = suite.ScenariosFolder
		}
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				report(fmt.Errorf("config: walk watcher %s: %w", path, err))
				return nil
			}
			if d.IsDir() {
				addDir(path)
			}
			return nil
		})
		report(walkErr)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil {
				report(fmt.Errorf("config: watch scenarios close: %w", err))
			}
		}()

		reload := func() {
			bundle, err := buildScenarioBundle(watchCtx, inline, suite)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					report(err)
				}
				return
			}
			onChange(bundle)
		}

		timer := time.NewTimer(time.Hour)
		timer.Stop()
		defer timer.Stop()
		relevant := fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-timer.C:
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Clean(event.Name)
				if targetFile != "" {
					if name != targetFile {
						continue
					}
					if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
						report(fmt.Errorf("config: scenarios file %s removed", targetFile))
					}
				} else {
					if event.Op&fsnotify.Create != 0 {
						if info, err := os.Stat(name); err == nil && info.IsDir() {
							addDir(name)
							continue
						}
					}
					if !isSupportedScenarioFile(name) {
						continue
					}
				}
				if event.Op&relevant == 0 {
					continue
				}
				timer.Reset(watchDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				report(fmt.Errorf("config: watch error: %w", err))
			}
		}
	}()

	return &ScenarioWatcher{cancel: cancel, done: done}, nil
}
