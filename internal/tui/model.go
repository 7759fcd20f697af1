// Package tui is the terminal editing surface. It renders a document
// controller and forwards edits and commands to it.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jun/cote/internal/document"
	"github.com/jun/cote/internal/session"
)

const opTimeout = 30 * time.Second

// Auth is the part of the session client the surface drives.
type Auth interface {
	InitiateAuth(ctx context.Context, opts session.AuthOptions)
	CheckStatus(ctx context.Context)
	Logout(ctx context.Context) error
	Session() *session.Session
}

// Controller is the document the surface edits.
type Controller interface {
	Snapshot() document.Snapshot
	Edit(body string)
	Rename(ctx context.Context, name string) error
	ToggleStar(ctx context.Context) error
	Flush(ctx context.Context) error
	Language() string
}

// Changes turns controller notifications into a channel the model can
// wait on. Notifications are coalesced; the model always reads the latest
// snapshot.
type Changes chan struct{}

// NewChanges returns a Changes ready for use with document.WithOnChange.
func NewChanges() Changes {
	return make(Changes, 1)
}

// Notify signals a change without blocking.
func (c Changes) Notify(document.Snapshot) {
	select {
	case c <- struct{}{}:
	default:
	}
}

type changedMsg struct{}

type opDoneMsg struct {
	op  string
	err error
}

type quitMsg struct{}

// Model is the bubbletea model for one document.
type Model struct {
	ctrl    Controller
	auth    Auth
	changes Changes
	keys    keyMap

	snap       document.Snapshot
	authorized bool
	editor     textarea.Model
	// readOnly explains why the editor cannot hold the body unchanged.
	readOnly string
	rename   textinput.Model
	renaming bool
	status   string
	width    int
	height   int

	unsubscribe func()
}

// NewModel builds the surface for ctrl.
func NewModel(ctrl Controller, auth Auth, changes Changes) Model {
	editor := textarea.New()
	editor.ShowLineNumbers = true
	editor.CharLimit = 0
	editor.MaxHeight = maxEditorLines
	editor.Placeholder = "Start typing..."
	editor.Focus()

	rename := textinput.New()
	rename.Prompt = ""
	rename.CharLimit = 255

	m := Model{
		ctrl:    ctrl,
		auth:    auth,
		changes: changes,
		keys:    defaultKeyMap(),
		snap:    ctrl.Snapshot(),
		editor:  editor,
		rename:  rename,
	}
	sess := auth.Session()
	m.authorized = sess.Authorized()
	if changes != nil {
		m.unsubscribe = sess.Subscribe(func(session.State) { changes.Notify(document.Snapshot{}) })
	}
	m.load(m.snap.Body)
	return m
}

// load puts body into the editor. The textarea expands tabs, normalizes
// line endings and keeps at most maxEditorLines lines; a body it would
// alter is shown read-only so the altered text is never saved.
func (m *Model) load(body string) {
	m.editor.SetValue(body)
	m.readOnly = ""
	if m.editor.Value() != body {
		m.readOnly = readOnlyReason(body)
		m.editor.Blur()
	} else if !m.renaming {
		m.editor.Focus()
	}
}

const maxEditorLines = 10000

func readOnlyReason(body string) string {
	switch {
	case strings.Count(body, "\n")+1 > maxEditorLines:
		return fmt.Sprintf("read-only: more than %d lines", maxEditorLines)
	case strings.Contains(body, "\t"):
		return "read-only: tab characters cannot be edited here"
	case strings.Contains(body, "\r"):
		return "read-only: CRLF line endings cannot be edited here"
	}
	return "read-only: contains characters the editor would change"
}

// signInRequired reports whether a remote document is waiting for, or has
// lost, its session.
func (m Model) signInRequired() bool {
	if m.snap.Mode != document.ModeRemote {
		return false
	}
	switch m.snap.Phase {
	case document.PhaseAwaitingAuth:
		return true
	case document.PhaseReady:
		return !m.authorized
	}
	return false
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForChange())
}

func (m Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.editor.SetWidth(msg.Width)
		m.editor.SetHeight(max(msg.Height-4, 3))
		m.rename.Width = max(msg.Width/2, 20)
		return m, nil

	case changedMsg:
		m.sync()
		return m, m.waitForChange()

	case opDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		} else {
			m.status = ""
		}
		m.sync()
		return m, nil

	case quitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	if m.snap.Phase.Editable() && m.readOnly == "" {
		m.editor, cmd = m.editor.Update(msg)
	}
	return m, cmd
}

// sync pulls the controller state. The editor is reloaded only when the
// document becomes editable, so typing is never overwritten.
func (m *Model) sync() {
	prev := m.snap
	m.snap = m.ctrl.Snapshot()
	m.authorized = m.auth.Session().Authorized()
	if !prev.Phase.Editable() && m.snap.Phase.Editable() {
		m.load(m.snap.Body)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, m.quit()
	}

	if m.renaming {
		switch {
		case key.Matches(msg, m.keys.Submit):
			m.renaming = false
			m.rename.Blur()
			m.focusEditor()
			name := strings.TrimSpace(m.rename.Value())
			if name == "" || name == m.snap.Name {
				return m, nil
			}
			return m, m.run("rename", func(ctx context.Context) error {
				return m.ctrl.Rename(ctx, name)
			})
		case key.Matches(msg, m.keys.Cancel):
			m.renaming = false
			m.rename.Blur()
			m.focusEditor()
			return m, nil
		}
		var cmd tea.Cmd
		m.rename, cmd = m.rename.Update(msg)
		return m, cmd
	}

	if m.signInRequired() {
		if key.Matches(msg, m.keys.Login) {
			m.status = "Opening sign-in..."
			auth, hint := m.auth, m.snap.RequestedUserID
			return m, m.run("sign in", func(ctx context.Context) error {
				auth.InitiateAuth(ctx, session.AuthOptions{LoginHint: hint})
				auth.CheckStatus(ctx)
				return nil
			})
		}
		return m, nil
	}

	switch m.snap.Phase {
	case document.PhaseLocal, document.PhaseReady:
	default:
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Rename):
		m.renaming = true
		m.rename.SetValue(m.snap.Name)
		m.rename.CursorEnd()
		m.editor.Blur()
		return m, m.rename.Focus()
	case key.Matches(msg, m.keys.Star):
		return m, m.run("star", m.ctrl.ToggleStar)
	case key.Matches(msg, m.keys.Save):
		return m, m.run("save", m.ctrl.Flush)
	case key.Matches(msg, m.keys.Logout) && m.snap.Mode == document.ModeRemote:
		return m, m.run("sign out", m.auth.Logout)
	}

	if m.readOnly != "" {
		return m, nil
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if body := m.editor.Value(); body != m.snap.Body {
		m.snap.Body = body
		m.ctrl.Edit(body)
	}
	return m, cmd
}

func (m *Model) focusEditor() {
	if m.readOnly == "" {
		m.editor.Focus()
	}
}

func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

// quit persists a pending autosave before leaving.
func (m Model) quit() tea.Cmd {
	ctrl, unsubscribe := m.ctrl, m.unsubscribe
	return func() tea.Msg {
		if unsubscribe != nil {
			unsubscribe()
		}
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_ = ctrl.Flush(ctx)
		return quitMsg{}
	}
}

func (m Model) View() string {
	if m.signInRequired() {
		return m.authView()
	}
	switch m.snap.Phase {
	case document.PhaseErrored:
		return m.errorView()
	case document.PhaseInit, document.PhaseFetching:
		return mutedStyle.Render("Loading file...") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(m.headerView()))
	b.WriteString("\n")
	b.WriteString(m.editor.View())
	b.WriteString("\n")
	help := helpLine(m.keys.Rename, m.keys.Star, m.keys.Save, m.keys.Quit)
	if m.snap.Mode == document.ModeRemote {
		help = helpLine(m.keys.Rename, m.keys.Star, m.keys.Save, m.keys.Logout, m.keys.Quit)
	}
	if m.status != "" {
		help = errorStyle.Render(m.status) + "  " + help
	}
	if m.readOnly != "" {
		help = savingStyle.Render(m.readOnly) + "  " + help
	}
	b.WriteString(mutedStyle.Render(help))
	return b.String()
}

func (m Model) headerView() string {
	name := titleStyle.Render(m.snap.Name)
	if m.renaming {
		name = m.rename.View()
	}

	star := "☆"
	if m.snap.Starred {
		star = "★"
	}

	parts := []string{name, starStyle.Render(star), mutedStyle.Render(m.ctrl.Language()), saveStatusText(m.snap)}
	return strings.Join(parts, "  ")
}

func saveStatusText(s document.Snapshot) string {
	if s.Mode == document.ModeLocal {
		return mutedStyle.Render("Local file")
	}
	switch s.SaveState {
	case document.Saving:
		return savingStyle.Render("Saving...")
	case document.SaveError:
		return errorStyle.Render("Error saving")
	default:
		return savedStyle.Render("Saved to Drive")
	}
}

func (m Model) errorView() string {
	var b strings.Builder
	e := m.snap.Err
	if e == nil {
		e = &document.FileError{Title: "Error", Message: "Something went wrong."}
	}
	b.WriteString(errorStyle.Render(e.Title))
	b.WriteString("\n\n")
	b.WriteString(e.Message)
	b.WriteString("\n")
	if e.Details != "" {
		b.WriteString("\n")
		b.WriteString(detailsStyle.Render(e.Details))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(helpLine(m.keys.Quit)))
	return b.String()
}

func (m Model) authView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sign in with Google"))
	b.WriteString("\n\n")
	b.WriteString("Please sign in with your Google account to access this application.\n")
	if m.snap.NeedsReauth {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("This file was opened for account %s.", m.snap.RequestedUserID)))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(helpLine(m.keys.Login, m.keys.Quit)))
	return b.String()
}
