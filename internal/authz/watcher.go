package authz

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 200 * time.Millisecond

// PolicyWatcher reloads an Authorizer when its policy file changes on disk.
type PolicyWatcher struct {
	authz   *Authorizer
	path    string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPolicyWatcher creates a watcher for the authorizer's policy file.
func NewPolicyWatcher(a *Authorizer) (*PolicyWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PolicyWatcher{
		authz:   a,
		path:    filepath.Clean(a.PolicyPath()),
		watcher: fsWatcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins watching. Editors often replace files instead of writing
// them in place, so the parent directory is watched.
func (w *PolicyWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.running = true
	w.wg.Add(1)
	go w.eventLoop()

	log.Info().Str("path", w.path).Msg("Policy watcher started")
	return nil
}

// Stop stops the watcher
func (w *PolicyWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.cancel()
	w.watcher.Close()
	w.wg.Wait()

	log.Info().Msg("Policy watcher stopped")
}

func (w *PolicyWatcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Policy watcher error")
		}
	}
}

func (w *PolicyWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *PolicyWatcher) reload() {
	if err := w.authz.Reload(); err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("Keeping previous policy")
		return
	}
	log.Info().Str("path", w.path).Msg("Policy reloaded")
}
