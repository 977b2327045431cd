// Package api defines the shared types exchanged between the flow engine,
// its stores, and the transport layer: session and node identifiers,
// execution state with per-field merge policies, checkpoints, and the
// request/response payloads of the HTTP API.
package api
