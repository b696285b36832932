package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// previewLines is how much generated text the progress view shows.
const previewLines = 8

// Source is the server side of one processing session.
type Source interface {
	Next() (models.Event, error)
	Decide(d models.DecisionMessage) error
}

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConnectingView ViewState = iota
	ProgressView
	DecisionView
	ResultView
)

// Options configures the decision sent after a remote download.
type Options struct {
	OutputFormat string
	OutputPath   string
}

// Model represents the TUI application state.
type Model struct {
	source    Source
	opts      Options
	view      ViewState
	sessionID string
	tasks     []models.SubTask
	speed     float64
	download  models.Event
	generator string
	content   string
	output    string
	err       error
	width     int
	progress  progress.Model
	spinner   spinner.Model
	help      help.Model
	keys      keyMap
}

// NewModel creates a new TUI model reading from source.
func NewModel(source Source, opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.warn

	return &Model{
		source:   source,
		opts:     opts,
		view:     ConnectingView,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:  s,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Run drives model until the session ends or the user quits, returning the session error.
func Run(ctx context.Context, source Source, opts Options) (*Model, error) {
	m := NewModel(source, opts)
	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return m, fmt.Errorf("terminal UI failed: %w", err)
	}
	if fm, ok := final.(*Model); ok {
		m = fm
	}
	return m, m.err
}

// Init starts the spinner and the first read.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(min(msg.Width-30, 60), 10)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		if m.view == DecisionView {
			return m.handleDecisionKeys(msg)
		}
		if m.view == ResultView {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgServerEvent:
		e := msg.data.(models.Event)
		m.apply(e)
		switch {
		case e.Terminal():
			m.view = ResultView
			return m, nil
		case e.Type == models.MsgDownloadComplete:
			m.view = DecisionView
			return m, nil
		}
		return m, m.next()

	case MsgSessionEnded:
		if m.view != ResultView {
			err, _ := msg.data.(error)
			if err == nil {
				err = errors.New("connection closed before the task finished")
			}
			m.err = err
			m.view = ResultView
		}
		return m, nil

	case MsgDecisionSent:
		data := msg.data.(struct {
			action models.Action
			err    error
		})
		if data.err != nil {
			m.err = data.err
			m.view = ResultView
			return m, nil
		}
		m.view = ProgressView
		return m, m.next()
	}
	return m, nil
}

func (m *Model) handleDecisionKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var action models.Action
	switch {
	case key.Matches(msg, m.keys.course):
		action = models.ActionCreateCourse
	case key.Matches(msg, m.keys.summary):
		action = models.ActionCreateSummary
	case key.Matches(msg, m.keys.done):
		action = models.ActionDone
	default:
		return m, nil
	}
	return m, m.decide(action)
}

// apply folds one server event into the model.
func (m *Model) apply(e models.Event) {
	switch e.Type {
	case models.MsgConnected:
		m.sessionID = e.SessionID()
		m.view = ProgressView
	case models.MsgInit:
		m.tasks = e.Tasks
		m.speed = 0
	case models.MsgStatus:
		if idx, ok := m.index(e); ok {
			m.tasks[idx].Status = e.Status
			if e.Progress != nil {
				m.tasks[idx].Progress = *e.Progress
			}
		}
	case models.MsgProgress:
		if idx, ok := m.index(e); ok && e.Progress != nil {
			m.tasks[idx].Progress = *e.Progress
		}
		if e.DownloadSpeed != nil {
			m.speed = *e.DownloadSpeed
		}
	case models.MsgDownloadComplete:
		m.download = e
	case models.MsgGenerationStart:
		m.generator = e.Prompt
	case models.MsgGenerationToken, models.MsgGenerationContent:
		m.content = e.Content
	case models.MsgError:
		m.err = errors.New(e.Message)
		if idx, ok := m.index(e); ok {
			m.tasks[idx].Status = models.StatusError
		}
	case models.MsgComplete:
		m.output = e.OutputPath
	}
}

func (m *Model) index(e models.Event) (int, bool) {
	idx, ok := e.Index()
	if !ok || idx < 0 || idx >= len(m.tasks) {
		return 0, false
	}
	return idx, true
}

func (m *Model) next() tea.Cmd {
	return func() tea.Msg {
		e, err := m.source.Next()
		if err != nil {
			return sessionEndedMsg(err)
		}
		return serverEventMsg(e)
	}
}

func (m *Model) decide(action models.Action) tea.Cmd {
	d := models.DecisionMessage{ContinueAction: action, OutputFormat: m.opts.OutputFormat, OutputPath: m.opts.OutputPath}
	return func() tea.Msg {
		return decisionSentMsg(action, m.source.Decide(d))
	}
}

// Err returns the session error, if any.
func (m *Model) Err() error {
	return m.err
}

// Output returns the path reported by the final "complete" message.
func (m *Model) Output() string {
	return m.output
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConnectingView:
		return fmt.Sprintf("%s Connecting...\n", m.spinner.View())
	case ProgressView:
		return m.renderProgress()
	case DecisionView:
		return m.renderDecision()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderTasks() string {
	var b strings.Builder
	for _, st := range m.tasks {
		switch st.Status {
		case models.StatusCompleted:
			fmt.Fprintf(&b, "%s %s\n", styles.ok.Render("✓"), st.Name)
		case models.StatusError:
			fmt.Fprintf(&b, "%s %s\n", styles.err.Render("✗"), st.Name)
		case models.StatusRunning:
			fmt.Fprintf(&b, "%s %-28s %s\n", m.spinner.View(), st.Name, m.progress.ViewAs(float64(st.Progress)/100))
		default:
			fmt.Fprintf(&b, "%s %s\n", styles.muted.Render("·"), styles.muted.Render(st.Name))
		}
	}
	return b.String()
}

func (m *Model) renderProgress() string {
	title := styles.title.Render("MacScribe")
	body := m.renderTasks()

	if m.speed > 0 {
		body += styles.muted.Render(fmt.Sprintf("download speed: %s/s", formatBytes(m.speed))) + "\n"
	}
	if m.generator != "" {
		body += "\n" + styles.help.Render(m.generator) + "\n"
	}
	if m.content != "" {
		body += "\n" + styles.box.Render(tail(m.content, previewLines)) + "\n"
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, body, helpView)
}

func (m *Model) renderDecision() string {
	title := styles.title.Render("Download complete")
	name := m.download.Title
	if name == "" {
		name = filepath.Base(m.download.VideoPath)
	}
	info := fmt.Sprintf("%s\n%s\n", styles.ok.Render(name), styles.muted.Render(m.download.VideoPath))

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.course, m.keys.summary, m.keys.done, m.keys.quit})
	return fmt.Sprintf("%s\n%s\nWhat next?\n\n%s", title, info, helpView)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Task failed: %v", m.err)) + "\n\n" + m.renderTasks() + "\nPress q to quit\n"
	}

	title := styles.ok.Render("✓ Task Complete!")
	return fmt.Sprintf("%s\n\n%s\nOutput: %s\n\nPress q to quit\n", title, m.renderTasks(), m.output)
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func formatBytes(n float64) string {
	units := []string{"B", "KiB", "MiB", "GiB"}
	i := 0
	for n >= 1024 && i < len(units)-1 {
		n /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", n, units[i])
}
