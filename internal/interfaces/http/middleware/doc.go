// Package middleware provides the gin middleware of the HTTP API: request ids,
// bearer token and admin token authentication, body limits, per-user rate
// limiting, request validation helpers, tracing and HTTP metrics.
package middleware
