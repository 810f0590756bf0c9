package offline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return PriorityLow, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PriorityFor is the queueing priority of a deferred call: deletions first,
// creates and updates after.
func PriorityFor(method string) Priority {
	if strings.EqualFold(method, http.MethodDelete) {
		return PriorityHigh
	}
	return PriorityMedium
}

// IsAuthPath reports whether path is an authentication endpoint. Those are
// never queued; a credential exchange replayed later is meaningless.
func IsAuthPath(path string) bool {
	return path == "/auth" || strings.HasPrefix(path, "/auth/")
}

// QueuedRequest is a deferred mutating call waiting for replay.
type QueuedRequest struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	RetryCount int               `json:"retryCount"`
	MaxRetries int               `json:"maxRetries"`
	Priority   Priority          `json:"priority"`
}

func (r QueuedRequest) clone() QueuedRequest {
	if r.Data != nil {
		r.Data = append(json.RawMessage(nil), r.Data...)
	}
	if r.Headers != nil {
		headers := make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			headers[k] = v
		}
		r.Headers = headers
	}
	return r
}

// NewRequest describes a call to defer. MaxRetries of zero uses the
// manager's default.
type NewRequest struct {
	URL        string
	Method     string
	Data       json.RawMessage
	Headers    map[string]string
	Priority   Priority
	MaxRetries int
}
