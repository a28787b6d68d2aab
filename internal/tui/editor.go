// Package tui holds the terminal front ends of the admin CLI: a checkbox
// editor for the headless settings and a markdown summary of them.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/aabbtree77/headless/internal/settings"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type savedMsg struct{ err error }

type model struct {
	ctx    context.Context
	store  settings.Store
	rec    settings.Record
	cursor int
	dirty  bool
	status string
	err    error
	done   bool
}

func newModel(ctx context.Context, s settings.Store, rec settings.Record) model {
	return model{ctx: ctx, store: s, rec: rec}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case savedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
			return m, nil
		}
		m.err = nil
		m.dirty = false
		m.status = "Settings saved."
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(settings.Fields)-1 {
				m.cursor++
			}
		case " ", "enter", "x":
			f := settings.Fields[m.cursor]
			f.Set(&m.rec, !f.Get(m.rec))
			m.dirty = true
			m.status = ""
		case "d":
			m.rec = settings.Defaults()
			m.dirty = true
			m.status = ""
		case "s":
			return m, m.save()
		case "q", "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) save() tea.Cmd {
	ctx, s, rec := m.ctx, m.store, m.rec
	return func() tea.Msg {
		return savedMsg{err: settings.Set(ctx, s, rec)}
	}
}

func (m model) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Headless Mode Settings"))
	b.WriteString("\n\n")
	for i, f := range settings.Fields {
		pointer := "  "
		if i == m.cursor {
			pointer = cursorStyle.Render("> ")
		}
		box := "[ ]"
		if f.Get(m.rec) {
			box = "[x]"
		}
		fmt.Fprintf(&b, "%s%s %s\n", pointer, box, f.Label)
	}
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render("save failed: " + m.err.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(m.status + "\n")
	case m.dirty:
		b.WriteString(mutedStyle.Render("unsaved changes") + "\n")
	}
	b.WriteString(mutedStyle.Render("space toggle • d defaults • s save • q quit"))
	return b.String()
}

// Edit opens the editor on the stored record and blocks until the user quits.
func Edit(ctx context.Context, s settings.Store) error {
	rec, _, err := settings.Get(ctx, s)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(newModel(ctx, s, rec), tea.WithContext(ctx)).Run()
	return err
}

// Markdown describes rec as a markdown table. found=false marks a record
// that was never written.
func Markdown(rec settings.Record, found bool) string {
	var b strings.Builder
	b.WriteString("# Headless Mode Settings\n\n")
	if !found {
		b.WriteString("_No settings stored yet. Run the daemon or `settings reset` to activate._\n\n")
	}
	b.WriteString("| Setting | Key | Enabled |\n|---|---|---|\n")
	for _, f := range settings.Fields {
		on := "no"
		if f.Get(rec) {
			on = "yes"
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s |\n", f.Label, f.Key, on)
	}
	return b.String()
}

// Render runs Markdown through glamour for the terminal.
func Render(rec settings.Record, found bool) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return "", err
	}
	return r.Render(Markdown(rec, found))
}
