// Package server hosts the ChildService API from a single HTTP server.
//
// The server builds a consistent middleware chain of request IDs, logging,
// CORS, metrics, rate limiting, and the token auth guard so handlers all
// share common protections and instrumentation. The write timeout is left
// unset on purpose: stream connections stay open indefinitely.
package server
