// Package controller holds the task list state machine: the active tab, the
// editor, and the derived view of the tasks shown for the active tab.
//
// The view is fed by exactly one repository subscription at a time. Every
// subscription is tagged with a generation number; switching tabs bumps the
// generation and cancels the previous subscription, and emissions carrying an
// older generation are dropped.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"todome/internal/logging"
	"todome/internal/task"
)

// Repository is the task source the controller drives.
type Repository interface {
	TasksFor(ctx context.Context, tab task.Tab) <-chan task.Snapshot
	Add(ctx context.Context, t task.Task) (task.Task, error)
	Update(ctx context.Context, t task.Task) error
	Delete(ctx context.Context, t task.Task) error
}

// EditTarget is either Creating or Editing.
type EditTarget interface {
	editTarget()
}

// Creating means the editor adds a new task on save.
type Creating struct{}

// Editing means the editor rewrites Task on save.
type Editing struct {
	Task task.Task
}

func (Creating) editTarget() {}
func (Editing) editTarget()  {}

// View is the derived state of the active tab.
type View struct {
	Generation uint64
	Tab        task.Tab
	Loading    bool
	Tasks      []task.Task
	Groups     []task.Group
	Err        error
}

type Option func(*Controller)

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithInitialTab sets the tab subscribed by Start. Invalid tabs are ignored.
func WithInitialTab(tab task.Tab) Option {
	return func(c *Controller) {
		if tab.Valid() {
			c.tab = tab
		}
	}
}

type Controller struct {
	repo   Repository
	logger *log.Logger
	now    func() time.Time

	// opMu serializes mutations against each other.
	opMu sync.Mutex

	mu         sync.Mutex
	ctx        context.Context
	stop       context.CancelFunc
	closed     bool
	tab        task.Tab
	editorOpen bool
	target     EditTarget
	gen        uint64
	cancelSub  context.CancelFunc
	current    View
	views      chan View
}

func New(repo Repository, opts ...Option) *Controller {
	c := &Controller{
		repo:   repo,
		logger: logging.Discard(),
		now:    time.Now,
		tab:    task.TabTodo,
		target: Creating{},
		views:  make(chan View, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current = View{Tab: c.tab, Loading: true}
	return c
}

// Start subscribes to the active tab. The subscription lives until ctx is done
// or Close is called.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil || c.closed {
		return
	}
	c.ctx, c.stop = context.WithCancel(ctx)
	c.subscribeLocked()
}

// Close cancels the active subscription and closes the Views channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.stop != nil {
		c.stop()
	}
	close(c.views)
}

// Views streams view updates. Only the latest unread view is kept.
func (c *Controller) Views() <-chan View {
	return c.views
}

// Current returns the most recently published view.
func (c *Controller) Current() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) Tab() task.Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab
}

// SwitchTab makes tab active and replaces the view subscription. Selecting the
// tab that is already active does nothing.
func (c *Controller) SwitchTab(tab task.Tab) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tab == c.tab && c.cancelSub != nil {
		return
	}
	c.tab = tab
	if c.ctx == nil || c.closed {
		c.current = View{Tab: tab, Loading: true}
		return
	}
	c.subscribeLocked()
}

func (c *Controller) subscribeLocked() {
	if c.cancelSub != nil {
		c.cancelSub()
	}
	c.gen++
	gen, tab := c.gen, c.tab
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelSub = cancel

	c.logger.Debug("subscribing", "tab", tab, "generation", gen)
	c.publishLocked(View{Generation: gen, Tab: tab, Loading: true})
	go c.forward(ctx, gen, tab, c.repo.TasksFor(ctx, tab))
}

func (c *Controller) forward(ctx context.Context, gen uint64, tab task.Tab, ch <-chan task.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			c.deliver(gen, tab, snap)
		}
	}
}

func (c *Controller) deliver(gen uint64, tab task.Tab, snap task.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debug("dropping stale emission", "tab", tab, "generation", gen, "current", c.gen)
		return
	}
	if snap.Err != nil {
		c.logger.Error("loading tasks failed", "tab", tab, "err", snap.Err)
	}
	tasks := task.Sort(snap.Tasks)
	c.publishLocked(View{
		Generation: gen,
		Tab:        tab,
		Tasks:      tasks,
		Groups:     task.GroupByDate(tasks),
		Err:        snap.Err,
	})
}

func (c *Controller) publishLocked(v View) {
	if c.closed {
		return
	}
	c.current = v
	select {
	case <-c.views:
	default:
	}
	c.views <- v
}

// StartAdd opens the editor for a new task.
func (c *Controller) StartAdd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = Creating{}
	c.editorOpen = true
}

// StartEdit opens the editor on t. Done tasks cannot be edited; for them it
// changes nothing and returns false.
func (c *Controller) StartEdit(t task.Task) bool {
	if t.Done() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = Editing{Task: t}
	c.editorOpen = true
	return true
}

// CloseEditor hides the editor. The edit target is kept until the next
// StartAdd or StartEdit.
func (c *Controller) CloseEditor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editorOpen = false
}

func (c *Controller) closeEditorFor(target EditTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == target {
		c.editorOpen = false
	}
}

func targetID(target EditTarget) int64 {
	if e, ok := target.(Editing); ok {
		return e.Task.ID
	}
	return 0
}

func (c *Controller) Editor() (open bool, target EditTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editorOpen, c.target
}

// Save validates the editor input and inserts or updates a task. The edit
// target is the one open when Save is called, even if Save has to wait for
// another mutation to finish. Invalid input is rejected before the repository
// is called and leaves the editor open. Otherwise the editor is closed once the
// repository call returns, whether it failed or not, unless it has been
// reopened on another target in the meantime.
func (c *Controller) Save(ctx context.Context, content string, priority task.Priority, date string) error {
	_, target := c.Editor()
	content, err := task.ValidateContent(content)
	if err != nil {
		return err
	}
	date, err = task.ParseDate(date)
	if err != nil {
		return err
	}
	if !priority.Valid() {
		return fmt.Errorf("%w: %d", task.ErrInvalidPriority, int(priority))
	}

	c.logger.Debug("saving task", "id", targetID(target))
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch tg := target.(type) {
	case Editing:
		t := tg.Task
		t.Content = content
		t.Priority = priority
		t.Date = date
		t.Status = task.StatusPending
		err = c.repo.Update(ctx, t)
		if err == nil {
			c.logger.Info("task updated", "id", t.ID)
		}
	default:
		var added task.Task
		added, err = c.repo.Add(ctx, task.Task{
			Date:      date,
			Content:   content,
			Status:    task.StatusPending,
			Priority:  priority,
			CreatedAt: c.now(),
		})
		if err == nil {
			c.logger.Info("task added", "id", added.ID)
		}
	}
	c.closeEditorFor(target)
	if err != nil {
		c.logger.Error("saving task failed", "err", err)
		return err
	}
	return nil
}

// MarkDone flips t to done. Other fields are written back unchanged.
func (c *Controller) MarkDone(ctx context.Context, t task.Task) error {
	t.Status = task.StatusDone
	return c.update(ctx, "mark done", t)
}

// Restore flips t back to pending.
func (c *Controller) Restore(ctx context.Context, t task.Task) error {
	t.Status = task.StatusPending
	return c.update(ctx, "restore", t)
}

func (c *Controller) Delete(ctx context.Context, t task.Task) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.repo.Delete(ctx, t); err != nil {
		c.logger.Error("delete failed", "id", t.ID, "err", err)
		return err
	}
	c.logger.Info("task deleted", "id", t.ID)
	return nil
}

func (c *Controller) update(ctx context.Context, op string, t task.Task) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.repo.Update(ctx, t); err != nil {
		c.logger.Error(op+" failed", "id", t.ID, "err", err)
		return err
	}
	c.logger.Info(op, "id", t.ID)
	return nil
}
