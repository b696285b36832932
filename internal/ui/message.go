package ui

import (
	"github.com/Nexgear75/MacScribe/internal/models"
	tea "github.com/charmbracelet/bubbletea"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgServerEvent MsgKind = iota
	MsgSessionEnded
	MsgDecisionSent
)

// serverEventMsg is the constructor for [MsgServerEvent]
func serverEventMsg(e models.Event) Msg {
	return Msg{kind: MsgServerEvent, data: e}
}

// sessionEndedMsg is the constructor for [MsgSessionEnded]
func sessionEndedMsg(err error) Msg {
	return Msg{kind: MsgSessionEnded, data: err}
}

// decisionSentMsg is the constructor for [MsgDecisionSent]
func decisionSentMsg(action models.Action, err error) Msg {
	return Msg{
		kind: MsgDecisionSent,
		data: struct {
			action models.Action
			err    error
		}{action, err},
	}
}
