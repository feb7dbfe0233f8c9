// Package task holds the to-do domain model shared by storage, controller and ui.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrEmptyContent    = errors.New("task content is empty")
	ErrInvalidDate     = errors.New("task date must be YYYY-MM-DD")
	ErrInvalidPriority = errors.New("unknown task priority")
)

type Status int

const (
	StatusPending Status = iota
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Priority int

const (
	PriorityUrgent Priority = iota
	PriorityNormal
	PriorityPlan
)

var priorities = []Priority{PriorityUrgent, PriorityNormal, PriorityPlan}

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityNormal:
		return "normal"
	case PriorityPlan:
		return "plan"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func (p Priority) Valid() bool {
	return p >= PriorityUrgent && p <= PriorityPlan
}

// Next cycles urgent -> normal -> plan -> urgent.
func (p Priority) Next() Priority {
	return priorities[wrap(int(p)+1, len(priorities))]
}

func (p Priority) Prev() Priority {
	return priorities[wrap(int(p)-1, len(priorities))]
}

func ParsePriority(v string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "urgent", "0":
		return PriorityUrgent, nil
	case "normal", "1", "":
		return PriorityNormal, nil
	case "plan", "2":
		return PriorityPlan, nil
	}
	return PriorityNormal, fmt.Errorf("%w: %q", ErrInvalidPriority, v)
}

type Task struct {
	ID        int64
	Date      string
	Content   string
	Status    Status
	Priority  Priority
	CreatedAt time.Time
}

func (t Task) Done() bool {
	return t.Status == StatusDone
}

// Snapshot is one emission of a continuously-updating task query.
type Snapshot struct {
	Tasks []Task
	Err   error
}

// ValidateContent trims v and rejects blank content.
func ValidateContent(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrEmptyContent
	}
	return v, nil
}

// ParseDate accepts a calendar date in YYYY-MM-DD form and returns it normalized.
func ParseDate(v string) (string, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(v))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, v)
	}
	return parsed.Format(DateLayout), nil
}

func Today(now time.Time) string {
	return now.Local().Format(DateLayout)
}
