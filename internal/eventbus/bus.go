package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by deskshell components.
const (
	NotifyQueued   = "notify.queued"
	NotifyShown    = "notify.shown"
	NotifyClicked  = "notify.clicked"
	NotifyClosed   = "notify.closed"
	NotifyTimeout  = "notify.timeout"
	NotifyDisabled = "notify.disabled"
	NotifyFailed   = "notify.failed"
	NotifyStopped  = "notify.stopped"

	SettingsChanged = "settings.changed"
	UpdateAvailable = "update.available"
	UpdateFailed    = "update.failed"
)

// Event is an in-memory signal used to decouple components.
//
// Publish never blocks; a subscriber whose buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch     chan Event
	prefix string
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*sub
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.prefix != "" && !strings.HasPrefix(e.Type, s.prefix) {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	return b.subscribe(buffer, "")
}

// SubscribePrefix subscribes to events whose Type starts with prefix
// (e.g. "notify."). Buses that don't support filtering get a plain Subscribe.
func SubscribePrefix(bus Bus, buffer int, prefix string) (<-chan Event, func()) {
	if mb, ok := bus.(*memBus); ok {
		return mb.subscribe(buffer, prefix)
	}
	return bus.Subscribe(buffer)
}

func (b *memBus) subscribe(buffer int, prefix string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer), prefix: prefix}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			// Holding the write lock excludes in-flight Publish calls, so the
			// close can't race a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}
