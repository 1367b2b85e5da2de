package notifier

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"deskshell/internal/eventbus"
	logx "deskshell/pkg/logx"
)

// Deps are the queue's collaborators. Only Presenter and Settings are
// required for notifications to appear; Sound and Focus may be nil.
type Deps struct {
	Presenter Presenter
	Settings  Settings
	Sound     SoundPlayer
	Focus     Focuser
	Bus       eventbus.Bus
	Log       logx.Logger
}

type entry struct {
	req      Request
	done     chan Result
	queuedAt time.Time
}

// Queue is a FIFO dispatch queue with at most one request in flight.
//
// It is safe for concurrent use. A drain goroutine exists only while the
// queue is draining; it exits when the pending list becomes empty.
type Queue struct {
	mu         sync.Mutex
	cfg        Config
	pending    []entry
	displaying bool
	stopped    bool
	drainDone  chan struct{} // non-nil while a drain goroutine is alive

	ctx    context.Context
	cancel context.CancelFunc

	presenter Presenter
	settings  Settings
	sound     SoundPlayer
	focus     Focuser
	bus       eventbus.Bus
	log       logx.Logger

	hmu     sync.Mutex
	history []Result
}

func New(cfg Config, deps Deps) *Queue {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:       cfg.withDefaults(),
		ctx:       ctx,
		cancel:    cancel,
		presenter: deps.Presenter,
		settings:  deps.Settings,
		sound:     deps.Sound,
		focus:     deps.Focus,
		bus:       deps.Bus,
		log:       deps.Log,
	}
}

// Apply swaps queue timing. The in-flight item keeps the timing it started with.
func (q *Queue) Apply(cfg Config) {
	q.mu.Lock()
	q.cfg = cfg.withDefaults()
	q.mu.Unlock()
}

func (q *Queue) Config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

// Enqueue appends req to the tail of the queue and starts draining if the
// queue was idle. It never blocks. The returned channel receives exactly one
// Result; callers that don't care may drop it.
func (q *Queue) Enqueue(req Request) <-chan Result {
	e := entry{req: req, done: make(chan Result, 1), queuedAt: time.Now()}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.finish(e, Result{Outcome: OutcomeStopped, Err: ErrStopped})
		return e.done
	}
	q.pending = append(q.pending, e)
	pending := len(q.pending)
	var done chan struct{}
	if !q.displaying {
		q.displaying = true
		done = make(chan struct{})
		q.drainDone = done
	}
	q.mu.Unlock()

	q.publish(eventbus.NotifyQueued, e, pending, "")
	q.log.Debug("notification queued", logx.String("id", req.ID), logx.String("kind", string(req.Kind)), logx.Int("pending", pending))

	if done != nil {
		go q.drain(done)
	}
	return e.done
}

func (q *Queue) drain(done chan struct{}) {
	defer close(done)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.displaying = false
			q.drainDone = nil
			q.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending[0] = entry{}
		q.pending = q.pending[1:]
		cfg := q.cfg
		ctx := q.ctx
		q.mu.Unlock()

		q.finish(e, q.displaySafe(ctx, e, cfg.Timeout))

		t := time.NewTimer(cfg.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
}

func (q *Queue) displaySafe(ctx context.Context, e entry, timeout time.Duration) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("notification display panicked", logx.String("id", e.req.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			res = Result{StartedAt: res.StartedAt, Outcome: OutcomeFailed, Err: fmt.Errorf("%w: panic: %v", ErrPresentation, r)}
		}
	}()
	return q.display(ctx, e, timeout)
}

func (q *Queue) display(ctx context.Context, e entry, timeout time.Duration) Result {
	res := Result{StartedAt: time.Now()}
	if ctx.Err() != nil {
		res.Outcome, res.Err = OutcomeStopped, ErrStopped
		return res
	}
	if q.settings == nil || !q.settings.NotificationsEnabled(ctx) {
		q.log.Debug("notification suppressed; disabled in settings", logx.String("id", e.req.ID))
		res.Outcome, res.Err = OutcomeDisabled, ErrDisabled
		return res
	}
	if q.presenter == nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("%w: no presenter configured", ErrPresentation)
		return res
	}

	// The fallback timeout bounds the whole display, Present included.
	deadline := res.StartedAt.Add(timeout)
	presentCtx, cancel := context.WithDeadline(ctx, deadline)
	h, err := q.presenter.Present(presentCtx, e.req.notification())
	cancel()
	if err != nil && ctx.Err() != nil {
		res.Outcome, res.Err = OutcomeStopped, ErrStopped
		return res
	}
	if err != nil && !time.Now().Before(deadline) {
		q.log.Warn("notification presentation timed out", logx.String("id", e.req.ID), logx.Duration("timeout", timeout), logx.Err(err))
		res.Outcome, res.Err = OutcomeTimeout, ErrTimeout
		return res
	}
	if err != nil {
		q.log.Warn("notification presentation failed", logx.String("id", e.req.ID), logx.String("kind", string(e.req.Kind)), logx.Err(err))
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("%w: %w", ErrPresentation, err)
		return res
	}
	q.playSound()
	if r, ok := h.(Releaser); ok {
		defer r.Release()
	}

	outcome, shown := awaitCompletion(ctx, h.Signals(), time.Until(deadline), func() {
		q.publish(eventbus.NotifyShown, e, q.Len(), "")
	})
	res.Outcome, res.Shown = outcome, shown

	switch outcome {
	case OutcomeClicked:
		if q.focus != nil {
			if err := q.focus.Focus(e.req.URL); err != nil {
				q.log.Warn("focus on notification click failed", logx.String("id", e.req.ID), logx.String("url", e.req.URL), logx.Err(err))
			}
		}
	case OutcomeTimeout:
		res.Err = ErrTimeout
	case OutcomeStopped:
		res.Err = ErrStopped
		if err := h.Dismiss(); err != nil {
			q.log.Debug("dismiss on stop failed", logx.String("id", e.req.ID), logx.Err(err))
		}
	}
	return res
}

// awaitCompletion waits for the first of click, close, timeout or ctx
// cancellation. Show is recorded (onShow fires once) but doesn't complete the
// wait. A closed signal channel counts as close; a nil channel never fires.
func awaitCompletion(ctx context.Context, signals <-chan Signal, timeout time.Duration, onShow func()) (Outcome, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	shown := false
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return OutcomeClosed, shown
			}
			switch sig {
			case SignalShow:
				if !shown {
					shown = true
					if onShow != nil {
						onShow()
					}
				}
			case SignalClick:
				return OutcomeClicked, shown
			case SignalClose:
				return OutcomeClosed, shown
			}
		case <-timer.C:
			return OutcomeTimeout, shown
		case <-ctx.Done():
			return OutcomeStopped, shown
		}
	}
}

func (q *Queue) playSound() {
	if q.sound == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Warn("alert sound panicked", logx.Any("panic", r))
		}
	}()
	q.sound.PlayAlert()
}

func (q *Queue) finish(e entry, res Result) {
	res.RequestID = e.req.ID
	res.Kind = e.req.Kind
	res.QueuedAt = e.queuedAt
	res.FinishedAt = time.Now()
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	q.appendHistory(res)
	e.done <- res

	var typ string
	switch res.Outcome {
	case OutcomeClicked:
		typ = eventbus.NotifyClicked
	case OutcomeClosed:
		typ = eventbus.NotifyClosed
	case OutcomeTimeout:
		typ = eventbus.NotifyTimeout
	case OutcomeDisabled:
		typ = eventbus.NotifyDisabled
	case OutcomeFailed:
		typ = eventbus.NotifyFailed
	default:
		typ = eventbus.NotifyStopped
	}
	q.publish(typ, e, q.Len(), res.Error)
	q.log.Debug("notification finished", logx.String("id", e.req.ID), logx.String("outcome", string(res.Outcome)), logx.Duration("took", res.FinishedAt.Sub(e.queuedAt)))
}

func (q *Queue) publish(typ string, e entry, pending int, errStr string) {
	if q.bus == nil {
		return
	}
	now := time.Now()
	q.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: NotificationEvent{
		RequestID: e.req.ID,
		Kind:      e.req.Kind,
		Title:     e.req.Title,
		Pending:   pending,
		At:        now,
		Error:     errStr,
	}})
}

// Stop stops intake, resolves pending requests with OutcomeStopped, cancels
// the in-flight wait and waits for the drain goroutine until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.Lock()
	done := q.drainDone
	if q.stopped {
		q.mu.Unlock()
		return waitDone(ctx, done)
	}
	q.stopped = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	for _, e := range pending {
		q.finish(e, Result{Outcome: OutcomeStopped, Err: ErrStopped})
	}
	return waitDone(ctx, done)
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.displaying {
		return StateDraining
	}
	return StateIdle
}

// Len returns the number of requests waiting behind the in-flight one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Status is a point-in-time view for status output.
type Status struct {
	State   string        `json:"state"`
	Pending int           `json:"pending"`
	Delay   time.Duration `json:"delay"`
	Timeout time.Duration `json:"timeout"`
	Recent  []Result      `json:"recent,omitempty"`
}

func (q *Queue) Status() Status {
	q.mu.Lock()
	st := Status{State: StateIdle.String(), Pending: len(q.pending), Delay: q.cfg.Delay, Timeout: q.cfg.Timeout}
	if q.displaying {
		st.State = StateDraining.String()
	}
	q.mu.Unlock()
	st.Recent = q.History()
	return st
}

// History returns recent results, oldest first.
func (q *Queue) History() []Result {
	q.hmu.Lock()
	defer q.hmu.Unlock()
	return append([]Result(nil), q.history...)
}

func (q *Queue) appendHistory(r Result) {
	q.hmu.Lock()
	q.history = append(q.history, r)
	if len(q.history) > historySize {
		q.history = q.history[len(q.history)-historySize:]
	}
	q.hmu.Unlock()
}
