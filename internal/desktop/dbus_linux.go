//go:build linux

package desktop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"deskshell/internal/notifier"
	logx "deskshell/pkg/logx"
)

const (
	notifyDest      = "org.freedesktop.Notifications"
	notifyPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyInterface = "org.freedesktop.Notifications"

	signalActionInvoked      = notifyInterface + ".ActionInvoked"
	signalNotificationClosed = notifyInterface + ".NotificationClosed"

	defaultActionKey = "default"

	// Signals for ids with no handle yet are parked briefly, since a fast
	// click can beat the Notify reply. Other applications' notifications
	// land here too, hence the bounds.
	maxEarlySignals = 64
	earlySignalTTL  = 5 * time.Second
)

// DBusConfig configures the freedesktop notification presenter.
type DBusConfig struct {
	AppName    string
	ActionText string        // label of the default action. "" means "Open"
	Expire     time.Duration // server-side expiry; 0 lets the server decide
}

// DBusPresenter speaks the freedesktop.org notification protocol over the
// session bus.
type DBusPresenter struct {
	cfg  DBusConfig
	log  logx.Logger
	conn *dbus.Conn
	obj  dbus.BusObject

	sigs chan *dbus.Signal
	done chan struct{}

	mu      sync.Mutex
	handles map[uint32]*signalHandle
	early   map[uint32][]earlySignal
}

type earlySignal struct {
	sig *dbus.Signal
	at  time.Time
}

// NewDBus connects to the session bus and subscribes to notification signals.
func NewDBus(cfg DBusConfig, log logx.Logger) (*DBusPresenter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.AppName == "" {
		cfg.AppName = "deskshell"
	}
	if cfg.ActionText == "" {
		cfg.ActionText = "Open"
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("dbus session bus: %w", err)
	}
	p := &DBusPresenter{
		cfg:     cfg,
		log:     log,
		conn:    conn,
		obj:     conn.Object(notifyDest, notifyPath),
		sigs:    make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
		handles: map[uint32]*signalHandle{},
		early:   map[uint32][]earlySignal{},
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notifyPath),
		dbus.WithMatchInterface(notifyInterface),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("dbus match: %w", err)
	}
	conn.Signal(p.sigs)
	go p.route()
	return p, nil
}

func (p *DBusPresenter) Present(ctx context.Context, n notifier.Notification) (notifier.Handle, error) {
	expire := int32(-1)
	if p.cfg.Expire > 0 {
		expire = int32(p.cfg.Expire / time.Millisecond)
	}
	actions := []string{defaultActionKey, p.cfg.ActionText}
	hints := map[string]dbus.Variant{}

	call := p.obj.CallWithContext(ctx, notifyInterface+".Notify", 0,
		p.cfg.AppName, uint32(0), n.Icon, n.Title, n.Body, actions, hints, expire)
	if call.Err != nil {
		return nil, call.Err
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return nil, err
	}

	h := newSignalHandle(func() error { return p.dismiss(id) })
	h.release = func() { p.forget(id) }
	h.emit(notifier.SignalShow)

	p.mu.Lock()
	p.handles[id] = h
	parked := p.early[id]
	delete(p.early, id)
	for _, e := range parked {
		if !p.deliverLocked(id, h, e.sig) {
			break
		}
	}
	p.mu.Unlock()

	p.log.Debug("dbus notification shown", logx.Int64("id", int64(id)), logx.String("request_id", n.ID))
	return h, nil
}

func (p *DBusPresenter) forget(id uint32) {
	p.mu.Lock()
	delete(p.handles, id)
	p.mu.Unlock()
}

func (p *DBusPresenter) dismiss(id uint32) error {
	p.forget(id)
	return p.obj.Call(notifyInterface+".CloseNotification", 0, id).Err
}

func (p *DBusPresenter) route() {
	for {
		select {
		case <-p.done:
			return
		case sig, ok := <-p.sigs:
			if !ok {
				return
			}
			p.handleSignal(sig)
		}
	}
}

func (p *DBusPresenter) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.handles[id]
	if h == nil {
		p.parkLocked(id, sig, time.Now())
		return
	}
	p.deliverLocked(id, h, sig)
}

// deliverLocked forwards sig to h and reports whether h is still live.
func (p *DBusPresenter) deliverLocked(id uint32, h *signalHandle, sig *dbus.Signal) bool {
	switch sig.Name {
	case signalActionInvoked:
		key, _ := sig.Body[1].(string)
		if key != defaultActionKey {
			return true
		}
		h.emit(notifier.SignalClick)
	case signalNotificationClosed:
		reason, _ := sig.Body[1].(uint32)
		p.log.Debug("dbus notification closed", logx.Int64("id", int64(id)), logx.Int("reason", int(reason)))
	default:
		return true
	}
	delete(p.handles, id)
	h.close()
	return false
}

func (p *DBusPresenter) parkLocked(id uint32, sig *dbus.Signal, now time.Time) {
	n := 0
	for k, list := range p.early {
		if now.Sub(list[len(list)-1].at) > earlySignalTTL {
			delete(p.early, k)
			continue
		}
		n += len(list)
	}
	if n >= maxEarlySignals {
		return
	}
	p.early[id] = append(p.early[id], earlySignal{sig: sig, at: now})
}

// Available reports whether a notification server owns the well-known name.
func (p *DBusPresenter) Available(ctx context.Context) bool {
	var caps []string
	if err := p.obj.CallWithContext(ctx, notifyInterface+".GetCapabilities", 0).Store(&caps); err != nil {
		return false
	}
	return true
}

func (p *DBusPresenter) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	default:
		close(p.done)
	}
	p.conn.RemoveSignal(p.sigs)
	p.mu.Lock()
	for id, h := range p.handles {
		delete(p.handles, id)
		h.close()
	}
	p.mu.Unlock()
	return p.conn.Close()
}
