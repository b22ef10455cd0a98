package config

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration file on write/create events and
// publishes successfully-parsed reloads on a buffered channel.
// Grounded on the teacher's pkg/config.Watcher, adapted to emit *Config
// instead of a proto snapshot and to log through zap instead of the
// standard log package.
type Watcher struct {
	path    string
	log     *zap.Logger
	updates chan *Config
	fsw     *fsnotify.Watcher
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    path,
		log:     log,
		updates: make(chan *Config, 10),
		fsw:     fsw,
	}, nil
}

// Updates returns the channel new configurations are published on.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Start begins watching the config file, blocking until the
// underlying fsnotify watcher is closed or its event channel closes.
// Callers should run it in its own goroutine.
func (w *Watcher) Start() error {
	defer w.fsw.Close()

	if err := w.fsw.Add(w.path); err != nil {
		return err
	}
	w.log.Info("watching config file", zap.String("path", w.path))

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("reloading config", zap.Error(err))
		return
	}

	select {
	case w.updates <- cfg:
		w.log.Info("config reloaded", zap.String("path", w.path))
	default:
		w.log.Warn("config update channel full, dropping reload")
	}
}
