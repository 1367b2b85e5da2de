package notifier

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the server event a notification mirrors.
type Kind string

const (
	KindNewComment   Kind = "new-comment"
	KindMention      Kind = "mention"
	KindReply        Kind = "reply"
	KindTaskAssigned Kind = "task-assigned"
	KindTaskStatus   Kind = "task-status"
	KindGeneric      Kind = "generic"
)

var ErrInvalidRequest = errors.New("invalid notification request")

// actionText is the verb phrase placed after the creator's name.
var actionText = map[Kind]string{
	KindNewComment:   "commented on",
	KindMention:      "mentioned you in",
	KindReply:        "replied to your comment on",
	KindTaskAssigned: "assigned you to",
	KindTaskStatus:   "changed the status of",
}

// ParseKind accepts the wire names used by the shell's IPC bridge. An empty
// string means generic.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindGeneric, nil
	}
	if k == KindGeneric {
		return k, nil
	}
	if _, ok := actionText[k]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, s)
}

// Payload is the event data sent by the web application.
type Payload struct {
	Creator string    `json:"creatorName"`
	Message string    `json:"message,omitempty"`
	Target  string    `json:"target"`
	Info    string    `json:"info,omitempty"`
	URL     string    `json:"url,omitempty"`
	Icon    string    `json:"icon,omitempty"`
	At      time.Time `json:"date,omitempty"`
	// Status is the new task status for task-status events.
	Status string `json:"status,omitempty"`
}

// Request is one unit of work for the Queue. It is passed and stored by
// value; the queue never modifies it.
type Request struct {
	ID    string    `json:"id"`
	Kind  Kind      `json:"kind"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Icon  string    `json:"icon,omitempty"`
	URL   string    `json:"url,omitempty"`
	At    time.Time `json:"at,omitempty"`
}

// NewRequest validates p for kind and composes the display title and body.
func NewRequest(kind Kind, p Payload) (Request, error) {
	creator := strings.TrimSpace(p.Creator)
	target := strings.TrimSpace(p.Target)
	if creator == "" {
		return Request{}, fmt.Errorf("%w: creatorName is required", ErrInvalidRequest)
	}
	if target == "" {
		return Request{}, fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}

	var title, body string
	switch kind {
	case KindGeneric:
		msg := strings.TrimSpace(p.Message)
		if msg == "" {
			return Request{}, fmt.Errorf("%w: message is required for generic notifications", ErrInvalidRequest)
		}
		title = creator + " " + msg
		body = target
		if info := strings.TrimSpace(p.Info); info != "" {
			body += " - " + info
		}
	default:
		verb, ok := actionText[kind]
		if !ok {
			return Request{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, kind)
		}
		title = creator + " " + verb
		body = target
		if kind == KindTaskStatus {
			if st := strings.TrimSpace(p.Status); st != "" {
				body += " to " + st
			}
		}
	}

	return Request{
		ID:    uuid.NewString(),
		Kind:  kind,
		Title: title,
		Body:  body,
		Icon:  strings.TrimSpace(p.Icon),
		URL:   strings.TrimSpace(p.URL),
		At:    p.At,
	}, nil
}

// Simple builds a generic request from already formatted text, used for
// locally generated notices such as update announcements.
func Simple(title, body, url string) Request {
	return Request{ID: uuid.NewString(), Kind: KindGeneric, Title: title, Body: body, URL: url, At: time.Now()}
}

func (r Request) notification() Notification {
	return Notification{ID: r.ID, Title: r.Title, Body: r.Body, Icon: r.Icon}
}
