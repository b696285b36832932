package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	course  key.Binding
	summary key.Binding
	done    key.Binding
	up      key.Binding
	down    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		course:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "create course")),
		summary: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "create summary")),
		done:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "keep video, stop")),
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.course, k.summary, k.done},
		{k.up, k.down, k.quit},
	}
}
