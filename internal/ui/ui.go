package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"todome/internal/config"
	"todome/internal/controller"
	"todome/internal/task"
)

type mode int

const (
	modeList mode = iota
	modeEditor
	modeConfirmDelete
)

const (
	fieldContent = iota
	fieldDate
	fieldPriority
	fieldCount
)

type viewMsg controller.View

type viewsClosedMsg struct{}

type opResultMsg struct {
	op  string
	err error
}

type saveResultMsg struct {
	err error
}

// row is one line of the task list: either a date header or a task.
type row struct {
	header bool
	date   string
	count  int
	task   task.Task
}

type editorState struct {
	content  textinput.Model
	date     textinput.Model
	priority task.Priority
	focus    int
	editing  bool
	saving   bool
}

type Model struct {
	ctx        context.Context
	ctrl       *controller.Controller
	cfg        config.Config
	now        func() time.Time
	view       controller.View
	rows       []row
	cursor     int
	mode       mode
	editor     editorState
	spinner    spinner.Model
	status     string
	pendingDel *task.Task
	collapsed  map[string]bool
	dark       bool
	width      int
	newPrio    task.Priority // preselected for new tasks
}

// Run starts the terminal UI on an already started controller and blocks until
// the user quits.
func Run(ctx context.Context, ctrl *controller.Controller, cfg config.Config) error {
	program := tea.NewProgram(New(ctx, ctrl, cfg), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func New(ctx context.Context, ctrl *controller.Controller, cfg config.Config) Model {
	content := textinput.New()
	content.Placeholder = "What needs doing?"
	content.CharLimit = 256
	content.Width = 40

	date := textinput.New()
	date.Placeholder = task.DateLayout
	date.CharLimit = len(task.DateLayout)
	date.Width = 12

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// unknown values fall back to normal
	prio, _ := task.ParsePriority(cfg.DefaultPriority)

	m := Model{
		ctx:       ctx,
		ctrl:      ctrl,
		cfg:       cfg,
		now:       time.Now,
		view:      ctrl.Current(),
		mode:      modeList,
		editor:    editorState{content: content, date: date, priority: prio},
		spinner:   sp,
		status:    fmt.Sprintf("Press '%s' to add a task.", cfg.Keys.Add),
		collapsed: map[string]bool{},
		dark:      !strings.EqualFold(cfg.Theme, "light"),
		newPrio:   prio,
	}
	m.rows = m.buildRows()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForView(m.ctrl.Views()), m.spinner.Tick)
}

func waitForView(ch <-chan controller.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return viewsClosedMsg{}
		}
		return viewMsg(v)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case viewMsg:
		if msg.Generation < m.view.Generation {
			return m, waitForView(m.ctrl.Views())
		}
		m.view = controller.View(msg)
		m.rows = m.buildRows()
		m.cursor = clampCursor(m.cursor, len(m.rows))
		if m.view.Err != nil {
			m.status = fmt.Sprintf("Loading tasks failed: %v", m.view.Err)
		}
		return m, waitForView(m.ctrl.Views())
	case viewsClosedMsg:
		return m, nil
	case opResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		} else {
			m.status = msg.op
		}
		return m, nil
	case saveResultMsg:
		return m.handleSaveResult(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.editor.content.Width = max(20, msg.Width-20)
		return m, nil
	case tea.KeyMsg:
		switch m.mode {
		case modeEditor:
			return m.updateEditorMode(msg)
		case modeConfirmDelete:
			return m.updateDeleteConfirm(msg.String())
		default:
			return m.updateListMode(msg.String())
		}
	}
	return m, nil
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	k := m.cfg.Keys
	switch key {
	case "ctrl+c", k.Quit:
		return m, tea.Quit
	case k.Down, "down":
		m.cursor = clampCursor(m.cursor+1, len(m.rows))
	case k.Up, "up":
		m.cursor = clampCursor(m.cursor-1, len(m.rows))
	case k.NextTab, "right":
		m.switchTab(m.view.Tab.Next())
	case k.PrevTab, "left":
		m.switchTab(m.view.Tab.Prev())
	case "1", "2", "3":
		m.switchTab(task.Tabs[int(key[0]-'1')])
	case k.Add:
		m.ctrl.StartAdd()
		return m.openEditor(nil)
	case k.Edit:
		t, ok := m.selectedTask()
		if !ok {
			m.status = "No task selected"
			return m, nil
		}
		if !m.ctrl.StartEdit(t) {
			m.status = "Completed tasks cannot be edited; restore it first"
			return m, nil
		}
		return m.openEditor(&t)
	case k.Complete:
		t, ok := m.selectedTask()
		if !ok || m.view.Tab != task.TabTodo {
			return m, nil
		}
		return m, m.markDoneCmd(t)
	case k.Restore:
		t, ok := m.selectedTask()
		if !ok || m.view.Tab != task.TabDone {
			return m, nil
		}
		return m, m.restoreCmd(t)
	case k.Delete:
		t, ok := m.selectedTask()
		if !ok {
			return m, nil
		}
		m.pendingDel = &t
		m.mode = modeConfirmDelete
		m.status = fmt.Sprintf("Delete \"%s\"? y/n", t.Content)
	case k.Collapse:
		if len(m.rows) == 0 {
			return m, nil
		}
		date := m.rows[clampCursor(m.cursor, len(m.rows))].date
		m.collapsed[date] = !m.collapsed[date]
		m.rows = m.buildRows()
		m.cursor = m.headerIndex(date)
	case k.Theme:
		m.dark = !m.dark
	case k.Confirm:
		if t, ok := m.selectedTask(); ok {
			m.status = describe(t)
		}
	}
	return m, nil
}

func (m *Model) switchTab(tab task.Tab) {
	m.ctrl.SwitchTab(tab)
	m.view = m.ctrl.Current()
	m.rows = m.buildRows()
	m.cursor = 0
}

func (m Model) updateDeleteConfirm(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "y", "Y":
		t := m.pendingDel
		m.pendingDel = nil
		m.mode = modeList
		if t == nil {
			m.status = "Nothing to delete"
			return m, nil
		}
		return m, m.deleteCmd(*t)
	case "n", "N", m.cfg.Keys.Cancel:
		m.pendingDel = nil
		m.mode = modeList
		m.status = "Delete cancelled"
	}
	return m, nil
}

func (m Model) openEditor(t *task.Task) (tea.Model, tea.Cmd) {
	m.editor.editing = t != nil
	m.editor.saving = false
	m.editor.focus = fieldContent
	if t != nil {
		m.editor.content.SetValue(t.Content)
		m.editor.date.SetValue(t.Date)
		m.editor.priority = t.Priority
	} else {
		m.editor.content.SetValue("")
		m.editor.date.SetValue(task.Today(m.now()))
		m.editor.priority = m.newPrio
	}
	m.editor.date.Blur()
	m.mode = modeEditor
	m.status = "enter to save, tab to change field, esc to cancel"
	cmd := m.editor.content.Focus()
	return m, cmd
}

func (m Model) updateEditorMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// the pending save still belongs to this editor
	if m.editor.saving {
		return m, nil
	}
	switch msg.String() {
	case m.cfg.Keys.Cancel, "esc":
		m.ctrl.CloseEditor()
		m.closeEditorInputs()
		m.status = "Cancelled"
		return m, nil
	case "tab", "down":
		return m.focusField((m.editor.focus + 1) % fieldCount)
	case "shift+tab", "up":
		return m.focusField((m.editor.focus + fieldCount - 1) % fieldCount)
	case m.cfg.Keys.Confirm, "enter":
		if strings.TrimSpace(m.editor.content.Value()) == "" {
			m.status = "Content cannot be empty"
			return m, nil
		}
		m.editor.saving = true
		return m, m.saveCmd(m.editor.content.Value(), m.editor.priority, m.editor.date.Value())
	}

	if m.editor.focus == fieldPriority {
		switch msg.String() {
		case "left", "h", "-":
			m.editor.priority = m.editor.priority.Prev()
		case "right", "l", "+", " ":
			m.editor.priority = m.editor.priority.Next()
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.editor.focus == fieldDate {
		m.editor.date, cmd = m.editor.date.Update(msg)
	} else {
		m.editor.content, cmd = m.editor.content.Update(msg)
	}
	return m, cmd
}

func (m Model) focusField(field int) (tea.Model, tea.Cmd) {
	m.editor.focus = field
	m.editor.content.Blur()
	m.editor.date.Blur()
	var cmd tea.Cmd
	switch field {
	case fieldContent:
		cmd = m.editor.content.Focus()
	case fieldDate:
		cmd = m.editor.date.Focus()
	}
	return m, cmd
}

func (m *Model) closeEditorInputs() {
	m.editor.content.Blur()
	m.editor.date.Blur()
	m.editor.saving = false
	m.mode = modeList
}

func (m Model) handleSaveResult(msg saveResultMsg) (tea.Model, tea.Cmd) {
	m.editor.saving = false
	open, _ := m.ctrl.Editor()
	if !open {
		m.closeEditorInputs()
	}
	switch {
	case msg.err == nil && m.editor.editing:
		m.status = "Task updated"
	case msg.err == nil:
		m.status = "Task added"
	case errors.Is(msg.err, task.ErrInvalidDate):
		m.status = "Date must be YYYY-MM-DD"
	default:
		m.status = fmt.Sprintf("Save failed: %v", msg.err)
	}
	return m, nil
}

func (m Model) saveCmd(content string, priority task.Priority, date string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return saveResultMsg{err: ctrl.Save(ctx, content, priority, date)}
	}
}

func (m Model) markDoneCmd(t task.Task) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opResultMsg{op: "Completed", err: ctrl.MarkDone(ctx, t)}
	}
}

func (m Model) restoreCmd(t task.Task) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opResultMsg{op: "Restored", err: ctrl.Restore(ctx, t)}
	}
}

func (m Model) deleteCmd(t task.Task) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opResultMsg{op: "Deleted", err: ctrl.Delete(ctx, t)}
	}
}

func (m Model) buildRows() []row {
	if m.view.Loading {
		return nil
	}
	var rows []row
	for _, g := range m.view.Groups {
		rows = append(rows, row{header: true, date: g.Date, count: len(g.Tasks)})
		if m.collapsed[g.Date] {
			continue
		}
		for _, t := range g.Tasks {
			rows = append(rows, row{date: g.Date, task: t})
		}
	}
	return rows
}

func (m Model) selectedTask() (task.Task, bool) {
	if len(m.rows) == 0 {
		return task.Task{}, false
	}
	r := m.rows[clampCursor(m.cursor, len(m.rows))]
	if r.header {
		return task.Task{}, false
	}
	return r.task, true
}

func (m Model) headerIndex(date string) int {
	for i, r := range m.rows {
		if r.header && r.date == date {
			return i
		}
	}
	return clampCursor(m.cursor, len(m.rows))
}

func describe(t task.Task) string {
	return fmt.Sprintf("Task #%d • %s • %s • %s • %s", t.ID, t.Content, t.Date, t.Priority, t.Status)
}

func clampCursor(cur, n int) int {
	if n <= 0 {
		return 0
	}
	if cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}
