package task

import (
	"slices"
	"sort"
)

// Group is the set of tasks sharing one date.
type Group struct {
	Date  string
	Tasks []Task
}

// Sort orders tasks by date descending, then priority ascending. Equal keys keep
// their input order.
func Sort(tasks []Task) []Task {
	out := slices.Clone(tasks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// GroupByDate sorts tasks and splits them into per-date groups, newest date first.
func GroupByDate(tasks []Task) []Group {
	var groups []Group
	for _, t := range Sort(tasks) {
		if n := len(groups); n > 0 && groups[n-1].Date == t.Date {
			groups[n-1].Tasks = append(groups[n-1].Tasks, t)
			continue
		}
		groups = append(groups, Group{Date: t.Date, Tasks: []Task{t}})
	}
	return groups
}
