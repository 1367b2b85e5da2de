package desktop

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"

	logx "deskshell/pkg/logx"
)

// Opener brings a notification's target forward by handing the URL to the
// platform's default handler.
type Opener struct {
	log  logx.Logger
	run  Runner
	goos string

	// OnOpen is called after a successful open.
	OnOpen func(url string)
}

type OpenerOption func(*Opener)

func WithOpenerRunner(r Runner) OpenerOption { return func(o *Opener) { o.run = r } }

func WithOpenerGOOS(goos string) OpenerOption { return func(o *Opener) { o.goos = goos } }

func NewOpener(log logx.Logger, opts ...OpenerOption) *Opener {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Opener{log: log, run: execRunner, goos: runtime.GOOS}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func openCommand(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{target}
	}
}

// Focus opens target. An empty target is a no-op.
func (o *Opener) Focus(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("open %q: %w", target, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("open %q: unsupported scheme %q", target, u.Scheme)
	}

	name, args := openCommand(o.goos, u.String())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.run(ctx, name, args...); err != nil {
		return fmt.Errorf("open %q: %w", target, err)
	}
	o.log.Debug("opened url", logx.String("url", target), logx.String("command", name))
	if o.OnOpen != nil {
		o.OnOpen(target)
	}
	return nil
}
