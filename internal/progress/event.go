package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type names the kind of event; it doubles as the SSE event name.
type Type string

// Supported event types.
const (
	TypeJobID       Type = "job_id"
	TypeMessage     Type = "message"
	TypeURLProgress Type = "url_progress"
	TypeProgress    Type = "progress"
	TypeResult      Type = "result"
	TypeError       Type = "error"
	TypeCancelled   Type = "cancelled"
	TypeAborted     Type = "aborted"
)

// Event is one entry of a job's event sequence.
type Event struct {
	// JobToken correlates the event with its job. Empty before a token is minted.
	JobToken string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Type selects how the payload is interpreted.
	Type Type
	// Text is the plain-text payload of job_id and message events.
	Text string
	// Payload is JSON-encoded for every other event type.
	Payload any
}

// Counter is the payload of url_progress and progress events.
type Counter struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// PreviewRow is a report row without classification fields.
type PreviewRow struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	StaffCount       string `json:"staff_count"`
	RelatedLinks     string `json:"related_links"`
	RelatedLinkCount int    `json:"related_link_count"`
	URL              string `json:"url"`
}

// Result is the payload of the terminal result event.
type Result struct {
	FileName         string       `json:"file_name"`
	ExcludedFileName string       `json:"excluded_file_name,omitempty"`
	PreviewRows      []PreviewRow `json:"preview_rows"`
	TargetCount      int          `json:"target_count"`
	ExcludedCount    int          `json:"excluded_count"`
}

// Failure is the payload of error and aborted events.
type Failure struct {
	Message string `json:"message"`
}

// JobID announces the token minted for a job.
func JobID(token string) Event {
	return Event{JobToken: token, Type: TypeJobID, Text: token}
}

// Message builds a free-text status event.
func Message(token, text string) Event {
	return Event{JobToken: token, Type: TypeMessage, Text: text}
}

// URLProgress reports listing-page completions.
func URLProgress(token string, current, total int) Event {
	return Event{JobToken: token, Type: TypeURLProgress, Payload: Counter{Current: current, Total: total}}
}

// Progress reports record-extraction completions.
func Progress(token string, current, total int) Event {
	return Event{JobToken: token, Type: TypeProgress, Payload: Counter{Current: current, Total: total}}
}

// Done builds the terminal result event.
func Done(token string, res Result) Event {
	if res.PreviewRows == nil {
		res.PreviewRows = []PreviewRow{}
	}
	return Event{JobToken: token, Type: TypeResult, Payload: res}
}

// Error builds the terminal error event.
func Error(token, msg string) Event {
	return Event{JobToken: token, Type: TypeError, Payload: Failure{Message: msg}}
}

// Cancelled builds the terminal cancellation event.
func Cancelled(token string) Event {
	return Event{JobToken: token, Type: TypeCancelled, Payload: struct{}{}}
}

// Aborted builds the terminal event for a job whose upstream was unreachable.
func Aborted(token, msg string) Event {
	return Event{JobToken: token, Type: TypeAborted, Payload: Failure{Message: msg}}
}

// Terminal reports whether the event ends a job's stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case TypeResult, TypeError, TypeCancelled, TypeAborted:
		return true
	default:
		return false
	}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	switch e.Type {
	case TypeJobID:
		if e.Text == "" {
			return errors.New("job_id event requires a token")
		}
	case TypeMessage:
	case TypeURLProgress, TypeProgress:
		c, ok := e.Payload.(Counter)
		if !ok {
			return fmt.Errorf("%s event requires a counter payload", e.Type)
		}
		if c.Current < 0 || c.Total < 0 {
			return errors.New("counter values must be >= 0")
		}
	case TypeResult:
		if _, ok := e.Payload.(Result); !ok {
			return errors.New("result event requires a result payload")
		}
	case TypeError, TypeAborted, TypeCancelled:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Data renders the wire payload: plain text for job_id and message events,
// JSON for everything else.
func (e Event) Data() (string, error) {
	switch e.Type {
	case TypeJobID, TypeMessage:
		return e.Text, nil
	}
	payload := e.Payload
	if payload == nil {
		payload = struct{}{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	return string(b), nil
}
