package sharedtasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/helloagents/rlm/pkg/models"
)

// ErrDisabled is returned by operations that need collaboration enabled.
var ErrDisabled = errors.New("sharedtasks: collaboration disabled")

// Watch emits the task list once immediately and again every time the
// document is rewritten, by this or any other process. Only the latest
// snapshot is buffered; a slow reader skips intermediate states. The
// channel closes when ctx is done.
func (c *Coordinator) Watch(ctx context.Context) (<-chan []models.SharedTask, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(c.path), err)
	}

	out := make(chan []models.SharedTask, 1)
	name := filepath.Base(c.path)

	publish := func() {
		tasks := c.Tasks(ctx)
		select {
		case <-out:
		default:
		}
		out <- tasks
	}

	go func() {
		defer close(out)
		defer w.Close()

		publish()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					publish()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				c.log.Warn("task list watcher error", "list", c.listID, "error", err)
			}
		}
	}()

	return out, nil
}
