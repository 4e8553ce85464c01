package shaderpack

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slog"
)

// Debounce is how long a Watcher waits after the last relevant file event
// before reporting a change. Editors and compilers tend to write a file in
// several steps.
var Debounce = 150 * time.Millisecond

// Watcher reports changes to a shader program's descriptor and to the
// bytecode files it lists.
type Watcher struct {
	dir        string
	descriptor string
	log        *slog.Logger
	watch      *fsnotify.Watcher
	files      map[string]bool
}

// NewWatcher starts watching dir. Events are delivered once Run is called.
func NewWatcher(dir, descriptor string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if descriptor == "" {
		descriptor = DefaultDescriptor
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating shader watcher")
	}
	// Watch the directory rather than the files: editors often replace a file
	// by renaming a temporary over it, which drops a per-file watch.
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watching %s", dir)
	}
	w := &Watcher{dir: dir, descriptor: descriptor, log: log, watch: fw}
	w.refresh()
	return w, nil
}

// refresh re-reads the descriptor to learn which bytecode files matter.
func (w *Watcher) refresh() {
	files := map[string]bool{w.descriptor: true}
	f, err := os.Open(filepath.Join(w.dir, w.descriptor))
	if err == nil {
		stages, _ := Parse(f, w.descriptor, w.log)
		f.Close()
		for _, st := range stages {
			files[filepath.Clean(st.File)] = true
		}
	}
	w.files = files
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove) {
		return false
	}
	rel, err := filepath.Rel(w.dir, ev.Name)
	if err != nil {
		return false
	}
	return w.files[rel]
}

// Run calls onChange once per burst of relevant file events until ctx is
// done. It always returns nil after ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
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

		case ev, ok := <-w.watch.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("shader file changed", slog.String("file", ev.Name), slog.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.refresh()
			onChange()

		case err, ok := <-w.watch.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("shader watcher error", slog.Any("error", err))
		}
	}
}

// Close stops watching. Run returns once its event channel is closed.
func (w *Watcher) Close() error {
	return w.watch.Close()
}

// Watch watches the shader program in dir and calls onChange after it is
// modified, until ctx is done.
func Watch(ctx context.Context, dir, descriptor string, log *slog.Logger, onChange func()) error {
	w, err := NewWatcher(dir, descriptor, log)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx, onChange)
}
