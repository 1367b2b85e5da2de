package desktop

import (
	"sync"

	"deskshell/internal/notifier"
)

// signalHandle is the Handle shared by the presenters. The signal channel
// is closed exactly once when the notification goes away.
type signalHandle struct {
	mu      sync.Mutex
	ch      chan notifier.Signal
	closed  bool
	dismiss func() error
	release func()
}

func newSignalHandle(dismiss func() error) *signalHandle {
	return &signalHandle{ch: make(chan notifier.Signal, 4), dismiss: dismiss}
}

func (h *signalHandle) Signals() <-chan notifier.Signal { return h.ch }

func (h *signalHandle) Dismiss() error {
	var err error
	if h.dismiss != nil {
		err = h.dismiss()
	}
	h.close()
	return err
}

// Release drops presenter bookkeeping once the queue is done with h.
func (h *signalHandle) Release() {
	if h.release != nil {
		h.release()
	}
}

// emit delivers s unless the handle is already closed.
func (h *signalHandle) emit(s notifier.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.ch <- s:
	default:
	}
}

func (h *signalHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.ch)
}
