// Package repository maps task tabs onto storage queries and forwards mutations.
package repository

import (
	"context"

	"todome/internal/storage"
	"todome/internal/task"
)

// Store is the storage surface the repository needs. *storage.Store satisfies it.
type Store interface {
	Watch(ctx context.Context, q storage.Query) <-chan task.Snapshot
	Insert(ctx context.Context, t task.Task) (task.Task, error)
	Update(ctx context.Context, t task.Task) error
	Delete(ctx context.Context, id int64) error
}

type Repository struct {
	store Store
}

func New(store Store) *Repository {
	return &Repository{store: store}
}

// QueryFor returns the storage query backing tab.
func QueryFor(tab task.Tab) storage.Query {
	switch tab {
	case task.TabTodo:
		return storage.QueryPending
	case task.TabDone:
		return storage.QueryDone
	default:
		return storage.QueryAll
	}
}

// TasksFor subscribes to the list shown on tab. The stream ends when ctx is done.
func (r *Repository) TasksFor(ctx context.Context, tab task.Tab) <-chan task.Snapshot {
	return r.store.Watch(ctx, QueryFor(tab))
}

func (r *Repository) Add(ctx context.Context, t task.Task) (task.Task, error) {
	return r.store.Insert(ctx, t)
}

func (r *Repository) Update(ctx context.Context, t task.Task) error {
	return r.store.Update(ctx, t)
}

func (r *Repository) Delete(ctx context.Context, t task.Task) error {
	return r.store.Delete(ctx, t.ID)
}
