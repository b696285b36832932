package server

import (
	"net/http"
	"slices"
	"strings"
	"sync"
)

// BasicRouter implements [Router] on top of the method-aware patterns of [http.ServeMux].
//
// Middleware wraps the whole mux, so unmatched paths (404) and wrong methods (405) are
// logged and get CORS headers like any other request.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	routes      []string

	once    sync.Once
	handler http.Handler
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends middleware; the first added runs outermost. Calls after the first request
// are ignored.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method and path. Other methods on path get 405 with an
// Allow header from the mux.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	pattern := strings.ToUpper(method) + " " + path
	r.mux.Handle(pattern, handler)
	r.routes = append(r.routes, pattern)
}

// Handler registers a [Handler] for GET on each of its routes. Processing sessions are
// WebSocket upgrades, which always arrive as GET.
func (r *BasicRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.Handle(http.MethodGet, route, handler)
	}
}

// Routes lists the registered "METHOD /path" patterns in sorted order.
func (r *BasicRouter) Routes() []string {
	routes := slices.Clone(r.routes)
	slices.Sort(routes)
	return routes
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.once.Do(func() { r.handler = r.Apply(r.mux) })
	r.handler.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler
	for _, mw := range slices.Backward(r.middlewares) {
		wrapped = mw(wrapped)
	}
	return wrapped
}
