package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

type (
	// State is the scratchpad a flow accumulates as it executes: conversation
	// history, intermediate tool results, and routing flags, keyed by field
	// name
	State map[Name]any

	// MergePolicy controls how a delta value is merged into an existing
	// state field
	MergePolicy string

	// Policies maps state fields to their merge policies. The mapping is
	// declared once at graph build time and is total over declared fields
	Policies map[Name]MergePolicy

	// Message is a single conversation history entry
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
)

const (
	// MergeReplace overwrites the existing value with the delta value
	MergeReplace MergePolicy = "replace"

	// MergeAppend appends the delta value to the existing list value.
	// History-like fields use this policy so replay stays deterministic
	MergeAppend MergePolicy = "append"
)

// Messages is the conventional Append-policy field holding conversation
// history
const Messages = Name("messages")

var ErrMarshalState = errors.New("failed to marshal state")

// Set creates a new State with the specified name-value pair added
func (s State) Set(name Name, value any) State {
	if s == nil {
		return State{name: value}
	}
	res := maps.Clone(s)
	res[name] = value
	return res
}

// Merge returns a new State with the delta applied field-wise under the
// given policies. Append fields accumulate; all other fields are replaced.
// The receiver is never modified
func (s State) Merge(delta State, policies Policies) State {
	if len(delta) == 0 {
		return s
	}
	res := maps.Clone(s)
	if res == nil {
		res = State{}
	}
	for name, value := range delta {
		if policies[name] == MergeAppend {
			res[name] = appendValue(res[name], value)
			continue
		}
		res[name] = value
	}
	return res
}

func appendValue(existing, value any) any {
	base := asList(existing)
	return append(base, asList(value)...)
}

func asList(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// GetString retrieves a string value from state, returning defaultValue if
// not found or wrong type
func (s State) GetString(name Name, defaultValue string) string {
	val, ok := s[name]
	if !ok {
		return defaultValue
	}
	str, ok := val.(string)
	if !ok {
		return defaultValue
	}
	return str
}

// GetBool retrieves a boolean value from state, returning defaultValue if
// not found or wrong type
func (s State) GetBool(name Name, defaultValue bool) bool {
	val, ok := s[name]
	if !ok {
		return defaultValue
	}
	b, ok := val.(bool)
	if !ok {
		return defaultValue
	}
	return b
}

// GetInt retrieves an integer value from state, returning defaultValue if
// not found or wrong type. Supports both int and float64 (converting from
// JSON numbers)
func (s State) GetInt(name Name, defaultValue int) int {
	val, ok := s[name]
	if !ok {
		return defaultValue
	}
	if i, ok := val.(int); ok {
		return i
	}
	if f, ok := val.(float64); ok {
		return int(f)
	}
	return defaultValue
}

// JSON returns the canonical JSON form of the state, used for edge-guard
// evaluation and persistence
func (s State) JSON() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarshalState, err)
	}
	return data, nil
}

// GetMessages decodes the conversation history field. Entries that do not
// look like messages are skipped
func (s State) GetMessages() []Message {
	list, ok := s[Messages].([]any)
	if !ok {
		return nil
	}

	res := make([]Message, 0, len(list))
	for _, entry := range list {
		if msg, ok := decodeMessage(entry); ok {
			res = append(res, msg)
		}
	}
	return res
}

// LastMessage returns the most recent history entry with the given role
func (s State) LastMessage(role string) (Message, bool) {
	msgs := s.GetMessages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i], true
		}
	}
	return Message{}, false
}

func decodeMessage(entry any) (Message, bool) {
	switch v := entry.(type) {
	case Message:
		return v, true
	case map[string]any:
		role, _ := v["role"].(string)
		content, _ := v["content"].(string)
		if role == "" {
			return Message{}, false
		}
		return Message{Role: role, Content: content}, true
	default:
		return Message{}, false
	}
}

// UserMessage wraps content as a single-entry history delta from the user
func UserMessage(content string) State {
	return State{Messages: []any{Message{Role: "user", Content: content}}}
}

// AssistantMessage wraps content as a single-entry history delta from the
// assistant
func AssistantMessage(content string) State {
	return State{Messages: []any{Message{Role: "assistant", Content: content}}}
}
