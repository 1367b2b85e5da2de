package settings

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("settings store closed")

// Well-known keys.
const (
	KeyNotificationsEnabled = "notificationsEnabled"
	KeyLastVisitedURL       = "lastVisitedUrl"
)

// Config configures the backing store.
//
// If Driver is empty, "file" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the raw persistence API.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	Close() error
}

// Change is published on the event bus when a value changes.
type Change struct {
	Key   string    `json:"key"`
	Value string    `json:"value"`
	At    time.Time `json:"at"`
}
