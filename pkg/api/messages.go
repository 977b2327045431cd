package api

import "time"

type (
	// MessageRequest delivers a channel message into a session's flow
	MessageRequest struct {
		Text  string `json:"text"`
		Input State  `json:"input,omitempty"`
	}

	// MessageResponse is returned when a run or resume finishes
	MessageResponse struct {
		State     State        `json:"state"`
		SessionID SessionID    `json:"session_id"`
		Status    ResultStatus `json:"status"`
		Node      NodeID       `json:"node"`
		Reply     string       `json:"reply,omitempty"`
		Error     string       `json:"error,omitempty"`
	}

	// SessionResponse is the latest checkpoint view of a session
	SessionResponse struct {
		CreatedAt time.Time        `json:"created_at"`
		State     State            `json:"state"`
		SessionID SessionID        `json:"session_id"`
		Status    CheckpointStatus `json:"status"`
		Next      NodeID           `json:"next"`
		Seq       int64            `json:"seq"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}

	// ErrorResponse is the standard error payload for API failures
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}

	// CallRequest is a single external model/tool invocation
	CallRequest struct {
		Model    string    `json:"model"`
		System   string    `json:"system,omitempty"`
		Messages []Message `json:"messages"`
	}

	// CallResponse is the payload returned by an external model/tool call.
	// Fields carries structured values the call contributes to flow state
	CallResponse struct {
		Fields  State  `json:"fields,omitempty"`
		Content string `json:"content"`
	}
)
