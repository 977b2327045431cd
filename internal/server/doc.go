// Package server implements the HTTP API for the flow engine
//
// This package provides REST endpoints for delivering messages into
// sessions, resuming interrupted sessions, inspecting session state and
// records, health checks, and WebSocket checkpoint streaming
package server
