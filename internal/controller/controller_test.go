package controller

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todome/internal/repository"
	"todome/internal/storage"
	"todome/internal/task"
)

type fakeSub struct {
	tab task.Tab
	ctx context.Context
	ch  chan task.Snapshot
}

type fakeRepo struct {
	mu      sync.Mutex
	subs    []*fakeSub
	added   []task.Task
	updated []task.Task
	deleted []task.Task
	err     error

	// when gate is set, Update signals entered and waits for gate to close
	gate    chan struct{}
	entered chan struct{}
}

func (r *fakeRepo) TasksFor(ctx context.Context, tab task.Tab) <-chan task.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := &fakeSub{tab: tab, ctx: ctx, ch: make(chan task.Snapshot, 8)}
	r.subs = append(r.subs, sub)
	return sub.ch
}

func (r *fakeRepo) Add(_ context.Context, t task.Task) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return task.Task{}, r.err
	}
	t.ID = int64(len(r.added) + 1)
	r.added = append(r.added, t)
	return t, nil
}

func (r *fakeRepo) Update(_ context.Context, t task.Task) error {
	if r.gate != nil {
		r.entered <- struct{}{}
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.updated = append(r.updated, t)
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, t task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, t)
	return nil
}

func (r *fakeRepo) sub(t *testing.T, i int) *fakeSub {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Greater(t, len(r.subs), i, "subscription %d not made", i)
	return r.subs[i]
}

func (r *fakeRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.added) + len(r.updated) + len(r.deleted)
}

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestController(t *testing.T, repo Repository, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	c := New(repo, opts...)
	c.Start(context.Background())
	t.Cleanup(c.Close)
	return c
}

func waitView(t *testing.T, c *Controller, match func(View) bool) View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-c.Views():
			require.True(t, ok, "views channel closed")
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("no matching view; last was %+v", c.Current())
			return View{}
		}
	}
}

func loaded(tab task.Tab) func(View) bool {
	return func(v View) bool { return v.Tab == tab && !v.Loading }
}

func contents(tasks []task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Content)
	}
	return out
}

func TestStartPublishesLoadingThenTasks(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)

	first := waitView(t, c, func(View) bool { return true })
	assert.True(t, first.Loading)
	assert.Equal(t, task.TabTodo, first.Tab)

	repo.sub(t, 0).ch <- task.Snapshot{Tasks: []task.Task{
		{ID: 1, Date: "2024-01-01", Content: "plan", Priority: task.PriorityPlan},
		{ID: 2, Date: "2024-01-01", Content: "urgent", Priority: task.PriorityUrgent},
	}}
	v := waitView(t, c, loaded(task.TabTodo))
	assert.Equal(t, []string{"urgent", "plan"}, contents(v.Tasks))
	require.Len(t, v.Groups, 1)
	assert.Equal(t, "2024-01-01", v.Groups[0].Date)
}

func TestSwitchTabLastSubscriptionWins(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)

	c.SwitchTab(task.TabDone)
	c.SwitchTab(task.TabAll)
	assert.Equal(t, task.TabAll, c.Tab())

	todo, done, all := repo.sub(t, 0), repo.sub(t, 1), repo.sub(t, 2)
	assert.Equal(t, task.TabTodo, todo.tab)
	assert.Equal(t, task.TabDone, done.tab)
	assert.Equal(t, task.TabAll, all.tab)
	assert.Error(t, todo.ctx.Err())
	assert.Error(t, done.ctx.Err())
	assert.NoError(t, all.ctx.Err())

	todo.ch <- task.Snapshot{Tasks: []task.Task{{ID: 1, Date: "2024-01-01", Content: "stale todo"}}}
	done.ch <- task.Snapshot{Tasks: []task.Task{{ID: 2, Date: "2024-01-01", Content: "stale done"}}}
	all.ch <- task.Snapshot{Tasks: []task.Task{{ID: 3, Date: "2024-01-01", Content: "fresh all"}}}

	v := waitView(t, c, func(v View) bool { return !v.Loading })
	assert.Equal(t, task.TabAll, v.Tab)
	assert.Equal(t, []string{"fresh all"}, contents(v.Tasks))

	done.ch <- task.Snapshot{Tasks: []task.Task{{ID: 4, Date: "2024-01-01", Content: "late done"}}}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"fresh all"}, contents(c.Current().Tasks))
}

func TestSwitchTabSameTabKeepsSubscription(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)

	c.SwitchTab(task.TabTodo)
	repo.mu.Lock()
	n := len(repo.subs)
	repo.mu.Unlock()
	assert.Equal(t, 1, n)
	assert.NoError(t, repo.sub(t, 0).ctx.Err())
}

func TestStartUsesInitialTab(t *testing.T) {
	repo := &fakeRepo{}
	newTestController(t, repo, WithInitialTab(task.TabDone))
	assert.Equal(t, task.TabDone, repo.sub(t, 0).tab)
}

func TestInvalidInitialTabIgnored(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo, WithInitialTab(task.Tab(9)))
	assert.Equal(t, task.TabTodo, c.Tab())
	assert.Equal(t, task.TabTodo, repo.sub(t, 0).tab)
}

func TestStartAddAndEdit(t *testing.T) {
	c := newTestController(t, &fakeRepo{})

	open, target := c.Editor()
	assert.False(t, open)
	assert.Equal(t, Creating{}, target)

	pending := task.Task{ID: 5, Date: "2024-01-01", Content: "x"}
	require.True(t, c.StartEdit(pending))
	open, target = c.Editor()
	assert.True(t, open)
	assert.Equal(t, Editing{Task: pending}, target)

	c.StartAdd()
	open, target = c.Editor()
	assert.True(t, open)
	assert.Equal(t, Creating{}, target)
}

func TestStartEditDoneIsNoop(t *testing.T) {
	c := newTestController(t, &fakeRepo{})

	done := task.Task{ID: 5, Date: "2024-01-01", Content: "x", Status: task.StatusDone}
	assert.False(t, c.StartEdit(done))
	open, target := c.Editor()
	assert.False(t, open)
	assert.Equal(t, Creating{}, target)
}

func TestCloseEditorKeepsTarget(t *testing.T) {
	c := newTestController(t, &fakeRepo{})

	tk := task.Task{ID: 8, Date: "2024-01-01", Content: "x"}
	c.StartEdit(tk)
	c.CloseEditor()
	open, target := c.Editor()
	assert.False(t, open)
	assert.Equal(t, Editing{Task: tk}, target)
}

func TestSaveRejectsBlankContent(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)
	c.StartAdd()

	for _, blank := range []string{"", "   ", "\n\t"} {
		err := c.Save(context.Background(), blank, task.PriorityNormal, "2024-01-01")
		assert.ErrorIs(t, err, task.ErrEmptyContent)
	}
	assert.Zero(t, repo.calls())
	open, _ := c.Editor()
	assert.True(t, open)
}

func TestSaveRejectsBadDateAndPriority(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)
	c.StartAdd()

	assert.ErrorIs(t, c.Save(context.Background(), "x", task.PriorityNormal, "tomorrow"), task.ErrInvalidDate)
	assert.ErrorIs(t, c.Save(context.Background(), "x", task.Priority(7), "2024-01-01"), task.ErrInvalidPriority)
	assert.Zero(t, repo.calls())
}

func TestSaveCreatesPendingTask(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)
	c.StartAdd()

	require.NoError(t, c.Save(context.Background(), "  buy milk ", task.PriorityUrgent, "2024-01-03"))

	require.Len(t, repo.added, 1)
	got := repo.added[0]
	assert.Equal(t, "buy milk", got.Content)
	assert.Equal(t, task.PriorityUrgent, got.Priority)
	assert.Equal(t, "2024-01-03", got.Date)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.True(t, fixedNow.Equal(got.CreatedAt))
	assert.Empty(t, repo.updated)

	open, _ := c.Editor()
	assert.False(t, open)
}

func TestSaveEditKeepsIDAndResetsStatus(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)

	created := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	orig := task.Task{ID: 11, Date: "2024-01-01", Content: "old", Priority: task.PriorityPlan, CreatedAt: created}
	require.True(t, c.StartEdit(orig))
	require.NoError(t, c.Save(context.Background(), "new", task.PriorityNormal, "2024-02-02"))

	require.Len(t, repo.updated, 1)
	got := repo.updated[0]
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, "new", got.Content)
	assert.Equal(t, task.PriorityNormal, got.Priority)
	assert.Equal(t, "2024-02-02", got.Date)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Empty(t, repo.added)
}

func TestSaveClosesEditorOnFailure(t *testing.T) {
	boom := errors.New("disk full")
	repo := &fakeRepo{err: boom}
	c := newTestController(t, repo)
	c.StartAdd()

	err := c.Save(context.Background(), "x", task.PriorityNormal, "2024-01-01")
	assert.ErrorIs(t, err, boom)
	open, _ := c.Editor()
	assert.False(t, open)
}

// logSignal fires ch when a log line containing match is written.
type logSignal struct {
	match string
	ch    chan struct{}
}

func (s *logSignal) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte(s.match)) {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func TestSaveUsesTargetOpenWhenCalled(t *testing.T) {
	ctx := context.Background()
	saving := &logSignal{match: "saving task", ch: make(chan struct{}, 1)}
	repo := &fakeRepo{gate: make(chan struct{}), entered: make(chan struct{}, 3)}
	c := newTestController(t, repo,
		WithLogger(log.NewWithOptions(saving, log.Options{Level: log.DebugLevel})))

	a := task.Task{ID: 1, Date: "2024-01-01", Content: "A", Priority: task.PriorityNormal}
	b := task.Task{ID: 2, Date: "2024-01-02", Content: "B", Priority: task.PriorityPlan}
	other := task.Task{ID: 3, Date: "2024-01-03", Content: "other", Priority: task.PriorityUrgent}

	errs := make(chan error, 2)
	go func() { errs <- c.MarkDone(ctx, other) }()
	<-repo.entered

	require.True(t, c.StartEdit(a))
	go func() { errs <- c.Save(ctx, "A edited", task.PriorityUrgent, "2024-02-02") }()
	<-saving.ch

	c.CloseEditor()
	require.True(t, c.StartEdit(b))
	close(repo.gate)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	repo.mu.Lock()
	updated := append([]task.Task(nil), repo.updated...)
	repo.mu.Unlock()
	require.Len(t, updated, 2)
	assert.Equal(t, int64(3), updated[0].ID)
	assert.Equal(t, int64(1), updated[1].ID)
	assert.Equal(t, "A edited", updated[1].Content)

	open, target := c.Editor()
	assert.True(t, open)
	assert.Equal(t, Editing{Task: b}, target)
}

func TestStatusFlipsKeepOtherFields(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)
	ctx := context.Background()

	tk := task.Task{ID: 3, Date: "2024-01-05", Content: "c", Priority: task.PriorityPlan}
	require.NoError(t, c.MarkDone(ctx, tk))
	tk.Status = task.StatusDone
	require.NoError(t, c.Restore(ctx, tk))
	require.NoError(t, c.Delete(ctx, tk))

	require.Len(t, repo.updated, 2)
	assert.Equal(t, task.StatusDone, repo.updated[0].Status)
	assert.Equal(t, task.StatusPending, repo.updated[1].Status)
	for _, u := range repo.updated {
		assert.Equal(t, "2024-01-05", u.Date)
		assert.Equal(t, task.PriorityPlan, u.Priority)
		assert.Equal(t, "c", u.Content)
	}
	require.Len(t, repo.deleted, 1)
	assert.Equal(t, int64(3), repo.deleted[0].ID)
}

func TestMutationErrorsPropagate(t *testing.T) {
	boom := errors.New("locked")
	c := newTestController(t, &fakeRepo{err: boom})
	ctx := context.Background()
	tk := task.Task{ID: 1}

	assert.ErrorIs(t, c.MarkDone(ctx, tk), boom)
	assert.ErrorIs(t, c.Restore(ctx, tk), boom)
	assert.ErrorIs(t, c.Delete(ctx, tk), boom)
}

func TestSnapshotErrorReachesView(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestController(t, repo)

	boom := errors.New("query failed")
	repo.sub(t, 0).ch <- task.Snapshot{Err: boom}
	v := waitView(t, c, loaded(task.TabTodo))
	assert.ErrorIs(t, v.Err, boom)
}

func TestCloseClosesViews(t *testing.T) {
	c := New(&fakeRepo{})
	c.Start(context.Background())
	c.Close()
	c.Close()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.Views():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

// End-to-end against SQLite.

func newStoreController(t *testing.T) *Controller {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "todo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newTestController(t, repository.New(store))
}

func viewOf(t *testing.T, c *Controller, tab task.Tab) View {
	t.Helper()
	c.SwitchTab(tab)
	cur := c.Current()
	if cur.Tab == tab && !cur.Loading {
		return cur
	}
	return waitView(t, c, loaded(tab))
}

func addTask(t *testing.T, c *Controller, content string) task.Task {
	t.Helper()
	c.StartAdd()
	require.NoError(t, c.Save(context.Background(), content, task.PriorityNormal, "2024-01-01"))
	c.SwitchTab(task.TabAll)
	v := waitView(t, c, func(v View) bool {
		if v.Tab != task.TabAll || v.Loading {
			return false
		}
		for _, tk := range v.Tasks {
			if tk.Content == content {
				return true
			}
		}
		return false
	})
	for _, tk := range v.Tasks {
		if tk.Content == content {
			return tk
		}
	}
	return task.Task{}
}

func TestMarkDoneAndRestoreMoveBetweenTabs(t *testing.T) {
	c := newStoreController(t)
	ctx := context.Background()

	tk := addTask(t, c, "water plants")
	assert.Equal(t, []string{"water plants"}, contents(viewOf(t, c, task.TabTodo).Tasks))

	require.NoError(t, c.MarkDone(ctx, tk))
	v := waitView(t, c, func(v View) bool { return v.Tab == task.TabTodo && !v.Loading && len(v.Tasks) == 0 })
	assert.Empty(t, v.Tasks)
	assert.Equal(t, []string{"water plants"}, contents(viewOf(t, c, task.TabDone).Tasks))

	tk.Status = task.StatusDone
	require.NoError(t, c.Restore(ctx, tk))
	waitView(t, c, func(v View) bool { return v.Tab == task.TabDone && !v.Loading && len(v.Tasks) == 0 })
	assert.Equal(t, []string{"water plants"}, contents(viewOf(t, c, task.TabTodo).Tasks))
}

func TestDeleteRemovesFromEveryTab(t *testing.T) {
	c := newStoreController(t)
	ctx := context.Background()

	keep := addTask(t, c, "keep")
	gone := addTask(t, c, "gone")
	require.NoError(t, c.MarkDone(ctx, keep))
	require.NoError(t, c.Delete(ctx, gone))

	assert.Empty(t, viewOf(t, c, task.TabTodo).Tasks)
	assert.Equal(t, []string{"keep"}, contents(viewOf(t, c, task.TabDone).Tasks))
	assert.Equal(t, []string{"keep"}, contents(viewOf(t, c, task.TabAll).Tasks))
}

func TestEditThroughStore(t *testing.T) {
	c := newStoreController(t)

	tk := addTask(t, c, "draft")
	require.True(t, c.StartEdit(tk))
	require.NoError(t, c.Save(context.Background(), "final", task.PriorityUrgent, "2024-03-03"))

	v := waitView(t, c, func(v View) bool {
		return v.Tab == task.TabAll && !v.Loading && len(v.Tasks) == 1 && v.Tasks[0].Content == "final"
	})
	assert.Equal(t, tk.ID, v.Tasks[0].ID)
	assert.Equal(t, "2024-03-03", v.Tasks[0].Date)
	assert.Equal(t, task.StatusPending, v.Tasks[0].Status)
}
