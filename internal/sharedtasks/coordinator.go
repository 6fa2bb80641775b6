// Package sharedtasks lets independent processes collaborate on one task
// list stored as a JSON document on a shared filesystem. The document is
// the unit of mutual exclusion: reads take a shared lock, mutations hold an
// exclusive lock across read-modify-write and rewrite the whole file.
//
// Collaboration is opt-in. Without a list ID every operation is a no-op
// returning its zero value.
package sharedtasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/helloagents/rlm/internal/filelock"
	"github.com/helloagents/rlm/pkg/models"
)

// EnvListID names the environment variable that enables collaboration.
const EnvListID = "hellotasks"

// TimestampLayout matches the ISO form other implementations write.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Coordinator manages one shared task list.
type Coordinator struct {
	listID string
	path   string
	lock   filelock.Locker
	now    func() time.Time
	log    *slog.Logger

	lockOpts []filelock.Option
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLocker replaces the file lock.
func WithLocker(l filelock.Locker) Option {
	return func(c *Coordinator) { c.lock = l }
}

// WithLockOptions tunes the default file lock's retry budget.
func WithLockOptions(opts ...filelock.Option) Option {
	return func(c *Coordinator) { c.lockOpts = append(c.lockOpts, opts...) }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// TasksDir returns the directory holding every list of a project.
func TasksDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".helloagents", "tasks")
}

// New returns a coordinator for listID under projectRoot. An empty listID
// yields a disabled coordinator. The document is created if missing.
func New(ctx context.Context, projectRoot, listID string, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		listID: listID,
		now:    time.Now,
		log:    slog.New(slog.DiscardHandler),
	}
	if listID != "" {
		c.path = filepath.Join(TasksDir(projectRoot), listID+".json")
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.path != "" && c.lock == nil {
		c.lock = filelock.New(c.path, c.lockOpts...)
	}
	if !c.Enabled() {
		return c, nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return nil, fmt.Errorf("create tasks directory: %w", err)
	}
	if err := c.init(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// FromEnv returns a coordinator for the list named by $hellotasks.
func FromEnv(ctx context.Context, projectRoot string, opts ...Option) (*Coordinator, error) {
	return New(ctx, projectRoot, os.Getenv(EnvListID), opts...)
}

func (c *Coordinator) init(ctx context.Context) error {
	release, err := c.lock.Lock(ctx, true)
	if err != nil {
		return fmt.Errorf("lock task list: %w", err)
	}
	defer release()

	if _, err := os.Stat(c.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat task list: %w", err)
	}

	ts := c.timestamp()
	return c.writeFile(&models.TaskDocument{
		ListID:    c.listID,
		CreatedAt: ts,
		Tasks:     []models.SharedTask{},
	})
}

// Enabled reports whether collaboration is on.
func (c *Coordinator) Enabled() bool {
	return c.listID != ""
}

// ListID returns the shared list identifier.
func (c *Coordinator) ListID() string {
	return c.listID
}

// Path returns the document path, or "" when disabled.
func (c *Coordinator) Path() string {
	return c.path
}

func (c *Coordinator) timestamp() string {
	return c.now().Format(TimestampLayout)
}

// read loads the document under a shared lock. On failure it returns an
// empty document for the list together with the error.
func (c *Coordinator) read(ctx context.Context) (models.TaskDocument, error) {
	empty := models.TaskDocument{ListID: c.listID, Tasks: []models.SharedTask{}}

	release, err := c.lock.Lock(ctx, false)
	if err != nil {
		c.log.Warn("shared lock failed", "list", c.listID, "error", err)
		return empty, fmt.Errorf("acquire shared lock: %w", err)
	}
	defer release()

	doc, err := c.readFile()
	if err != nil {
		c.log.Warn("read task list failed", "list", c.listID, "error", err)
		return empty, err
	}
	return doc, nil
}

func (c *Coordinator) readFile() (models.TaskDocument, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.TaskDocument{ListID: c.listID, Tasks: []models.SharedTask{}}, nil
	}
	if err != nil {
		return models.TaskDocument{}, fmt.Errorf("read task list: %w", err)
	}

	var doc models.TaskDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.TaskDocument{}, fmt.Errorf("decode task list: %w", err)
	}
	return doc, nil
}

// writeFile stamps last_updated and replaces the document atomically.
// The caller must hold the exclusive lock.
func (c *Coordinator) writeFile(doc *models.TaskDocument) error {
	doc.LastUpdated = c.timestamp()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode task list: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace task list: %w", err)
	}
	return nil
}

// mutate runs fn against the current document under the exclusive lock
// and writes the result when fn reports a change. A document that could
// not be read is never overwritten.
func (c *Coordinator) mutate(ctx context.Context, op string, fn func(doc *models.TaskDocument) bool) bool {
	if !c.Enabled() {
		return false
	}

	release, err := c.lock.Lock(ctx, true)
	if err != nil {
		c.log.Warn("exclusive lock failed", "op", op, "list", c.listID, "error", err)
		return false
	}
	defer release()

	doc, err := c.readFile()
	if err != nil {
		c.log.Warn("read before write failed", "op", op, "list", c.listID, "error", err)
		return false
	}
	if !fn(&doc) {
		return false
	}
	if err := c.writeFile(&doc); err != nil {
		c.log.Warn("write failed", "op", op, "list", c.listID, "error", err)
		return false
	}
	c.log.Debug("task list updated", "op", op, "list", c.listID)
	return true
}
