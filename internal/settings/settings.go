package settings

import (
	"context"
	"strconv"
	"sync"
	"time"

	"deskshell/internal/eventbus"
	logx "deskshell/pkg/logx"
)

// Settings adds typed accessors and change events on top of a Store.
type Settings struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	// serializes read-modify-publish so events follow write order
	mu sync.Mutex
}

func New(store Store, bus eventbus.Bus, log logx.Logger) *Settings {
	if log.IsZero() {
		log = logx.Nop()
	}
	if store == nil {
		store = NewMemory()
	}
	return &Settings{store: store, bus: bus, log: log}
}

func (s *Settings) Store() Store { return s.store }

func (s *Settings) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}

func (s *Settings) SetBool(ctx context.Context, key string, v bool) error {
	return s.SetString(ctx, key, strconv.FormatBool(v))
}

func (s *Settings) GetString(ctx context.Context, key, def string) (string, error) {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// SetString persists value and publishes settings.changed when it differs
// from the stored one.
func (s *Settings) SetString(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if had && prev == value {
		return nil
	}
	if err := s.store.Set(ctx, key, value); err != nil {
		return err
	}
	s.log.Info("setting changed", logx.String("key", key), logx.String("value", value))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.SettingsChanged,
			Time: time.Now(),
			Data: Change{Key: key, Value: value, At: time.Now()},
		})
	}
	return nil
}

// Snapshot returns every stored value.
func (s *Settings) Snapshot(ctx context.Context) (map[string]string, error) {
	return s.store.All(ctx)
}

// NotificationsEnabled reports the user's opt-in. Missing or unreadable
// values count as disabled.
func (s *Settings) NotificationsEnabled(ctx context.Context) bool {
	v, err := s.GetBool(ctx, KeyNotificationsEnabled, false)
	if err != nil {
		s.log.Warn("read notificationsEnabled failed", logx.Err(err))
		return false
	}
	return v
}

func (s *Settings) SetNotificationsEnabled(ctx context.Context, v bool) error {
	return s.SetBool(ctx, KeyNotificationsEnabled, v)
}

func (s *Settings) Close() error { return s.store.Close() }
