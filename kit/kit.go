// Package kit is the transport-agnostic endpoint layer: a session
// operation is an Endpoint, middleware wraps endpoints, and the same
// endpoint is exposed over HTTP and MCP without transport-specific code
// in the session itself.
package kit

import "context"

// Endpoint is one request/response operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middleware left to right: the first middleware is the
// outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
