// Package models defines the records shared by the processing server, its terminal client, and job history.
//
// The package contains three categories of types:
//
// 1. Session state, held in memory for the lifetime of one connection
//   - [TaskState] : the request, its ordered subtasks, and the terminal flags
//   - [SubTask] : one client-visible step with a [SubTaskStatus] and 0-100 progress
//
// 2. Wire messages, one struct per "type" value (see [MessageType])
//   - [ProcessRequest] and [DecisionMessage] are sent by clients
//   - [ConnectedMessage] through [CompleteMessage] are sent by the server
//   - [Event] decodes any server message on the client side
//
// 3. History
//   - [Job] : a finished session, written once at teardown
package models
