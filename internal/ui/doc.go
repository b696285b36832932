// Package ui implements an interactive terminal client using bubbletea's Elm architecture.
//
// The [Model] follows one processing session through its views:
//  1. [ConnectingView] : waiting for the server to announce the session
//  2. [ProgressView] : subtask list with a progress bar on the running step and a preview of generated text
//  3. [DecisionView] : after a remote download, choose course (c), summary (s) or stop (d)
//  4. [ResultView] : output path or the failure message
//
// Server messages arrive through a [Source] one read at a time, each delivered to Update as a Msg.
// [HistoryModel] browses finished jobs with a filterable bubbles list.
package ui
