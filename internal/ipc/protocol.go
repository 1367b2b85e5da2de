package ipc

import (
	"encoding/json"
	"fmt"
	"time"
)

// Command names are the shell's IPC channel names.
type Command string

const (
	CommandShowNotification        Command = "show-notification"
	CommandTestNotification        Command = "test-notification"
	CommandGetNotificationsEnabled Command = "get-notifications-enabled"
	CommandSetNotificationsEnabled Command = "set-notifications-enabled"
	CommandCheckNotificationStatus Command = "check-notification-status"
	CommandQueueStatus             Command = "queue-status"
	CommandCheckForUpdates         Command = "check-for-updates"
	CommandUpdateLastVisitedURL    Command = "update-last-visited-url"
	CommandGetSettings             Command = "get-settings"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request is one line sent by a client.
type Request struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is one line sent back by the server.
type Response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ShowNotificationPayload carries a typed notification. Data follows the
// notifier.Payload JSON shape.
type ShowNotificationPayload struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
	Wait bool            `json:"wait,omitempty"`
}

type TestNotificationPayload struct {
	Type string `json:"type"`
	Wait bool   `json:"wait,omitempty"`
}

type EnabledPayload struct {
	Enabled bool `json:"enabled"`
}

type URLPayload struct {
	URL string `json:"url"`
}

// ShowNotificationData is returned by show-notification and test-notification.
// Without wait only RequestID is set.
type ShowNotificationData struct {
	RequestID string `json:"requestId"`
	Outcome   string `json:"outcome,omitempty"`
	Shown     bool   `json:"shown"`
	Reason    string `json:"reason,omitempty"`
}

type NotificationStatusData struct {
	AppEnabled         bool   `json:"appEnabled"`
	SystemEnabled      bool   `json:"systemEnabled"`
	EffectivelyEnabled bool   `json:"effectivelyEnabled"`
	Error              string `json:"error,omitempty"`
}

type QueueStatusData struct {
	State   string        `json:"state"`
	Pending int           `json:"pending"`
	Delay   time.Duration `json:"delay_ns"`
	Timeout time.Duration `json:"timeout_ns"`
}

type UpdateData struct {
	Current   string    `json:"current"`
	Latest    string    `json:"latest,omitempty"`
	URL       string    `json:"url,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Available bool      `json:"available"`
	CheckedAt time.Time `json:"checkedAt"`
}

func NewOKResponse(data any) (*Response, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal response data: %w", err)
		}
		raw = b
	}
	return &Response{Status: StatusOK, Data: raw}, nil
}

func NewErrorResponse(msg string) *Response {
	return &Response{Status: StatusError, Error: msg}
}

func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("parse request: missing command")
	}
	return &req, nil
}

func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
