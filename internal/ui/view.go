package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"todome/internal/config"
	"todome/internal/task"
)

type palette struct {
	urgent, normal, plan lipgloss.Color
	accent, muted, text  lipgloss.Color
}

var (
	darkPalette = palette{
		urgent: lipgloss.Color("#E53935"),
		normal: lipgloss.Color("#FB8C00"),
		plan:   lipgloss.Color("#43A047"),
		accent: lipgloss.Color("62"),
		muted:  lipgloss.Color("241"),
		text:   lipgloss.Color("230"),
	}
	lightPalette = palette{
		urgent: lipgloss.Color("#C62828"),
		normal: lipgloss.Color("#EF6C00"),
		plan:   lipgloss.Color("#2E7D32"),
		accent: lipgloss.Color("25"),
		muted:  lipgloss.Color("244"),
		text:   lipgloss.Color("235"),
	}
)

func (m Model) palette() palette {
	if m.dark {
		return darkPalette
	}
	return lightPalette
}

func (p palette) priority(pr task.Priority) lipgloss.Color {
	switch pr {
	case task.PriorityUrgent:
		return p.urgent
	case task.PriorityPlan:
		return p.plan
	default:
		return p.normal
	}
}

func (m Model) View() string {
	p := m.palette()
	var b strings.Builder

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(p.text).Render("Todo"))
	b.WriteString("\n")
	b.WriteString(m.renderTabBar(p))
	b.WriteString("\n\n")

	switch {
	case m.view.Loading:
		b.WriteString(m.spinner.View() + " Loading…")
	case len(m.rows) == 0:
		b.WriteString(lipgloss.NewStyle().Foreground(p.muted).Render(emptyMessage(m.view.Tab, m.cfg.Keys)))
	default:
		b.WriteString(m.renderTaskList(p))
	}
	b.WriteString("\n")

	if m.mode == modeEditor {
		b.WriteString("\n")
		b.WriteString(m.renderEditor(p))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.status)
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(p.muted).Render(renderHelp(m.cfg.Keys, m.view.Tab)))
	return b.String()
}

func (m Model) renderTabBar(p palette) string {
	active := lipgloss.NewStyle().Bold(true).Underline(true).Foreground(p.accent).Padding(0, 1)
	inactive := lipgloss.NewStyle().Foreground(p.muted).Padding(0, 1)
	parts := make([]string, 0, len(task.Tabs))
	for i, tab := range task.Tabs {
		label := fmt.Sprintf("%d %s", i+1, tab.Title())
		if tab == m.view.Tab {
			parts = append(parts, active.Render(label))
		} else {
			parts = append(parts, inactive.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderTaskList(p palette) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(p.text)
	selected := lipgloss.NewStyle().Background(p.accent).Foreground(lipgloss.Color("230"))

	var b strings.Builder
	for i, r := range m.rows {
		cursor := "  "
		if i == m.cursor && m.mode == modeList {
			cursor = "> "
		}
		var line string
		if r.header {
			arrow := "▾"
			if m.collapsed[r.date] {
				arrow = "▸"
			}
			line = header.Render(fmt.Sprintf("%s %s (%d)", arrow, r.date, r.count))
		} else {
			style := lipgloss.NewStyle().Foreground(p.priority(r.task.Priority))
			checkbox := "[ ]"
			if r.task.Done() {
				checkbox = "[x]"
				style = style.Strikethrough(true).Faint(true)
			}
			line = "  " + style.Render(fmt.Sprintf("%s %s", checkbox, r.task.Content))
		}
		if i == m.cursor && m.mode == modeList {
			line = selected.Render(cursor) + line
		} else {
			line = cursor + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderEditor(p palette) string {
	title := "New task"
	if m.editor.editing {
		title = "Edit task"
	}
	label := func(field int, name string) string {
		style := lipgloss.NewStyle().Width(10).Foreground(p.muted)
		if m.editor.focus == field {
			style = style.Foreground(p.accent).Bold(true)
		}
		return style.Render(name)
	}

	var prio []string
	for _, pr := range []task.Priority{task.PriorityUrgent, task.PriorityNormal, task.PriorityPlan} {
		style := lipgloss.NewStyle().Foreground(p.priority(pr)).Padding(0, 1)
		if pr == m.editor.priority {
			style = style.Reverse(true)
		}
		prio = append(prio, style.Render(pr.String()))
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(title))
	b.WriteString("\n\n")
	b.WriteString(label(fieldContent, "Content") + m.editor.content.View() + "\n")
	b.WriteString(label(fieldDate, "Date") + m.editor.date.View() + "\n")
	b.WriteString(label(fieldPriority, "Priority") + lipgloss.JoinHorizontal(lipgloss.Top, prio...))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.accent).
		Padding(0, 1).
		Render(b.String())
}

func emptyMessage(tab task.Tab, k config.Keymap) string {
	switch tab {
	case task.TabDone:
		return "Nothing completed yet."
	default:
		return fmt.Sprintf("No tasks yet. Press '%s' to add one.", k.Add)
	}
}

func renderHelp(k config.Keymap, tab task.Tab) string {
	parts := []string{
		fmt.Sprintf("%s/%s move", k.Up, k.Down),
		fmt.Sprintf("%s/1-3 tabs", k.NextTab),
		fmt.Sprintf("%s add", k.Add),
		fmt.Sprintf("%s edit", k.Edit),
	}
	switch tab {
	case task.TabTodo:
		parts = append(parts, fmt.Sprintf("%s done", k.Complete))
	case task.TabDone:
		parts = append(parts, fmt.Sprintf("%s restore", k.Restore))
	}
	parts = append(parts,
		fmt.Sprintf("%s delete", k.Delete),
		fmt.Sprintf("%s fold", k.Collapse),
		fmt.Sprintf("%s theme", k.Theme),
		fmt.Sprintf("%s quit", k.Quit),
	)
	return strings.Join(parts, " • ")
}
