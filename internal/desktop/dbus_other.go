//go:build !linux

package desktop

import (
	"context"
	"time"

	"deskshell/internal/notifier"
	logx "deskshell/pkg/logx"
)

type DBusConfig struct {
	AppName    string
	ActionText string
	Expire     time.Duration
}

type DBusPresenter struct{}

func NewDBus(cfg DBusConfig, log logx.Logger) (*DBusPresenter, error) {
	return nil, ErrUnsupported
}

func (p *DBusPresenter) Present(ctx context.Context, n notifier.Notification) (notifier.Handle, error) {
	return nil, ErrUnsupported
}

func (p *DBusPresenter) Available(ctx context.Context) bool { return false }

func (p *DBusPresenter) Close() error { return nil }
