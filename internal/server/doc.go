// Package server provides HTTP routing, middleware, and the WebSocket transport for processing sessions.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Endpoints
//
//   - GET /health : {"message":"Online"}
//   - GET /ws/process : WebSocket upgrade, one pipeline session per connection
//
// # Process Sessions
//
// [ProcessHandler] reads the first client message as a [models.ProcessRequest], opens a task
// and registers the connection with the [Hub] under the new session id. The handler then
// blocks in [tasks.Pipeline.Serve] until teardown closes the connection.
//
// # Hub
//
// [Hub] implements [tasks.Channel]. A read pump per connection feeds a bounded inbox that
// [Hub.ReceiveNext] drains, so the pipeline can wait for the post-download decision while
// disconnects are noticed immediately and cancel the session context.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
