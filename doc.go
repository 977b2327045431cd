// Package app identifies the Convoflow engine build
package app

const (
	// Name is the service name reported in logs and health responses
	Name = "convoflow"

	// Version is the engine release version
	Version = "0.3.0"
)
