package desktop

import (
	"context"
	"sync/atomic"
	"time"

	"deskshell/internal/notifier"
	logx "deskshell/pkg/logx"
)

// LogPresenter "shows" notifications by logging them. It is used on
// headless hosts and wherever no native notification server is reachable.
//
// With AutoClose > 0 the notification reports closed after that long;
// otherwise it stays up until dismissed or the queue times it out.
type LogPresenter struct {
	Log       logx.Logger
	AutoClose time.Duration

	seq atomic.Uint64
}

func NewLogPresenter(log logx.Logger, autoClose time.Duration) *LogPresenter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPresenter{Log: log, AutoClose: autoClose}
}

func (p *LogPresenter) Present(ctx context.Context, n notifier.Notification) (notifier.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := p.seq.Add(1)
	var timer *time.Timer
	h := newSignalHandle(func() error {
		if timer != nil {
			timer.Stop()
		}
		return nil
	})

	p.Log.Info("notification",
		logx.Int64("id", int64(id)),
		logx.String("request_id", n.ID),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
	)
	h.emit(notifier.SignalShow)

	if p.AutoClose > 0 {
		timer = time.AfterFunc(p.AutoClose, h.close)
	}
	return h, nil
}

// Available is always true.
func (p *LogPresenter) Available(context.Context) bool { return true }

func (p *LogPresenter) Close() error { return nil }
