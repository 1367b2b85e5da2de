package notifier

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled     = errors.New("notifications disabled")
	ErrPresentation = errors.New("notification presentation failed")
	ErrTimeout      = errors.New("notification completion timed out")
	ErrStopped      = errors.New("notifier stopped")
)

const (
	DefaultDelay   = 250 * time.Millisecond
	DefaultTimeout = 5 * time.Second
	historySize    = 100
)

// Config controls queue timing.
type Config struct {
	// Delay is the minimum gap between one display's completion and the next
	// display's start.
	Delay time.Duration
	// Timeout bounds how long a display waits for a click/close signal.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// State is the queue's drain state.
type State int

const (
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// Outcome is how a single request finished.
type Outcome string

const (
	OutcomeClicked  Outcome = "clicked"
	OutcomeClosed   Outcome = "closed"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeDisabled Outcome = "disabled"
	OutcomeFailed   Outcome = "failed"
	OutcomeStopped  Outcome = "stopped"
)

// Displayed reports whether the presenter actually showed the request.
func (o Outcome) Displayed() bool {
	return o == OutcomeClicked || o == OutcomeClosed || o == OutcomeTimeout
}

// Result is delivered exactly once per enqueued request.
type Result struct {
	RequestID  string    `json:"request_id"`
	Kind       Kind      `json:"kind"`
	Outcome    Outcome   `json:"outcome"`
	Shown      bool      `json:"shown"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Notification is what the presenter renders.
type Notification struct {
	ID    string
	Title string
	Body  string
	Icon  string
}

// Signal is a lifecycle signal emitted by a presented notification.
type Signal int

const (
	SignalShow Signal = iota + 1
	SignalClick
	SignalClose
)

func (s Signal) String() string {
	switch s {
	case SignalShow:
		return "show"
	case SignalClick:
		return "click"
	case SignalClose:
		return "close"
	default:
		return "unknown"
	}
}

// Handle is a notification on screen. Signals is closed once the
// notification is gone; a closed channel counts as SignalClose.
type Handle interface {
	Signals() <-chan Signal
	Dismiss() error
}

// Releaser is implemented by handles that keep presenter state until the
// queue is done with them. The queue calls Release once per handle.
type Releaser interface {
	Release()
}

// Presenter shows native notifications.
type Presenter interface {
	Present(ctx context.Context, n Notification) (Handle, error)
}

// Settings exposes the application-level notification switch.
type Settings interface {
	NotificationsEnabled(ctx context.Context) bool
}

// SoundPlayer plays the alert sound. Implementations must not block.
type SoundPlayer interface {
	PlayAlert()
}

// Focuser brings the shell window forward and navigates to url when non-empty.
type Focuser interface {
	Focus(url string) error
}

// SettingsFunc adapts a plain function to Settings.
type SettingsFunc func(ctx context.Context) bool

func (f SettingsFunc) NotificationsEnabled(ctx context.Context) bool { return f(ctx) }

// NotificationEvent is published on the event bus for queue lifecycle events.
type NotificationEvent struct {
	RequestID string    `json:"request_id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Pending   int       `json:"pending"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
