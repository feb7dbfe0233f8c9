package task

import (
	"fmt"
	"strings"
)

// Tab selects which of the three task views is active.
type Tab int

const (
	TabTodo Tab = iota
	TabDone
	TabAll
)

var Tabs = []Tab{TabTodo, TabDone, TabAll}

func (t Tab) String() string {
	switch t {
	case TabTodo:
		return "todo"
	case TabDone:
		return "done"
	case TabAll:
		return "all"
	default:
		return fmt.Sprintf("tab(%d)", int(t))
	}
}

// Title is the label shown in the tab bar.
func (t Tab) Title() string {
	switch t {
	case TabTodo:
		return "To-Do"
	case TabDone:
		return "Done"
	case TabAll:
		return "All"
	default:
		return t.String()
	}
}

func (t Tab) Valid() bool {
	return t >= TabTodo && t <= TabAll
}

// Next and Prev wrap around. Out-of-range tabs are folded back into range
// first.
func (t Tab) Next() Tab {
	return Tabs[wrap(int(t)+1, len(Tabs))]
}

func (t Tab) Prev() Tab {
	return Tabs[wrap(int(t)-1, len(Tabs))]
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}

func ParseTab(v string) (Tab, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "todo", "to-do", "pending", "":
		return TabTodo, nil
	case "done", "completed":
		return TabDone, nil
	case "all":
		return TabAll, nil
	}
	return TabTodo, fmt.Errorf("unknown tab %q", v)
}
