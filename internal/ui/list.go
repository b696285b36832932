package ui

import (
	"fmt"
	"path/filepath"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	_ list.Item = jobItem{}
)

// jobItem wraps [models.Job] to implement [list.Item].
type jobItem struct {
	job *models.Job
}

func (i jobItem) FilterValue() string { return i.job.Input + " " + i.job.Title }
func (i jobItem) Title() string {
	if i.job.Title != "" {
		return i.job.Title
	}
	return filepath.Base(i.job.Input)
}
func (i jobItem) Description() string {
	desc := fmt.Sprintf("#%d • %s • %s • %s", i.job.Sequence, i.job.Status, i.job.Action, i.job.FinishedAt.Local().Format("2006-01-02 15:04"))
	if i.job.Status == models.JobFailed && i.job.ErrorMessage != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.job.ErrorMessage)
	} else if i.job.OutputPath != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.job.OutputPath)
	}
	return desc
}

// HistoryModel browses job history in a filterable list.
type HistoryModel struct {
	list list.Model
}

// NewHistoryModel creates a [HistoryModel] over jobs, newest first.
func NewHistoryModel(jobs []*models.Job) *HistoryModel {
	items := make([]list.Item, len(jobs))
	for i, job := range jobs {
		items[i] = jobItem{job: job}
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Job History"
	return &HistoryModel{list: l}
}

func (m *HistoryModel) Init() tea.Cmd {
	return nil
}

func (m *HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-4)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || (msg.String() == "q" && m.list.FilterState() != list.Filtering) {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *HistoryModel) View() string {
	return m.list.View()
}

// Selected returns the highlighted job, or nil for an empty list.
func (m *HistoryModel) Selected() *models.Job {
	if item, ok := m.list.SelectedItem().(jobItem); ok {
		return item.job
	}
	return nil
}
