package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"deskshell/internal/config"
	"deskshell/internal/desktop"
	"deskshell/internal/eventbus"
	"deskshell/internal/ipc"
	"deskshell/internal/notifier"
	"deskshell/internal/observability/pprof"
	"deskshell/internal/runtime/supervisor"
	"deskshell/internal/settings"
	"deskshell/internal/updater"
	logx "deskshell/pkg/logx"
)

// Version is stamped at build time with -ldflags "-X deskshell/internal/app.Version=...".
var Version = "dev"

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	prefs     *settings.Settings
	presenter presenter
	sound     *soundSwitch
	opener    *desktop.Opener
	queue     *notifier.Queue
	updates   *updater.Service
	ipc       *ipc.Server
	debug     *pprof.Server

	started time.Time
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLogging(cfg))
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	sc, err := mapSettingsConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := settings.Open(sc, log.With(logx.String("comp", "settings")))
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	prefs := settings.New(store, bus, log.With(logx.String("comp", "settings")))
	appLog.Info("settings ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	pres, err := buildPresenter(cfg, log.With(logx.String("comp", "presenter")))
	if err != nil {
		_ = prefs.Close()
		return nil, err
	}

	sound := &soundSwitch{}
	sound.Set(desktop.NewSound(mapSoundConfig(cfg), log.With(logx.String("comp", "sound"))))

	opener := desktop.NewOpener(log.With(logx.String("comp", "opener")))
	opener.OnOpen = func(u string) {
		if err := prefs.SetString(context.Background(), settings.KeyLastVisitedURL, u); err != nil {
			appLog.Warn("save last visited url failed", logx.Err(err))
		}
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = pres.Close()
		_ = prefs.Close()
		return nil, err
	}
	queue := notifier.New(ncfg, notifier.Deps{
		Presenter: pres,
		Settings:  prefs,
		Sound:     sound,
		Focus:     opener,
		Bus:       bus,
		Log:       log.With(logx.String("comp", "notifier")),
	})

	a := &App{
		cfgm:      cfgm,
		log:       appLog,
		logs:      logSvc,
		bus:       bus,
		prefs:     prefs,
		presenter: pres,
		sound:     sound,
		opener:    opener,
		queue:     queue,
	}

	if ucfg, checker, enabled, err := mapUpdater(cfg); err != nil {
		a.closeResources()
		return nil, err
	} else if enabled {
		a.updates = updater.NewService(ucfg, checker, queue, bus, log)
	}

	if cfg.IPC.Enabled {
		wait, err := mapIPCWait(cfg)
		if err != nil {
			a.closeResources()
			return nil, err
		}
		deps := ipc.Deps{
			Queue:    queue,
			Settings: prefs,
			System:   pres,
			Log:      log,
		}
		if a.updates != nil {
			deps.Updates = ipc.UpdatesFunc(a.checkUpdates)
		}
		a.ipc = ipc.NewServer(strings.TrimSpace(cfg.IPC.Socket), deps)
		a.ipc.WaitTimeout = wait
	}

	a.debug = pprof.New(mapDebug(cfg), a.status, log)
	return a, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (a *App) checkUpdates(ctx context.Context) (ipc.UpdateData, error) {
	res, err := a.updates.CheckNow(ctx)
	if err != nil {
		return ipc.UpdateData{}, err
	}
	return ipc.UpdateData{
		Current:   res.Current,
		Latest:    res.Latest.Version,
		URL:       res.Latest.URL,
		Notes:     res.Latest.Notes,
		Available: res.Available,
		CheckedAt: res.CheckedAt,
	}, nil
}

// StatusDoc is served at the debug server's /status.
type StatusDoc struct {
	Version    string              `json:"version"`
	Queue      notifier.Status     `json:"queue"`
	Update     *updater.Result     `json:"update,omitempty"`
	Started    time.Time           `json:"started"`
	Goroutines supervisor.Counters `json:"goroutines"`
}

func (a *App) status(context.Context) any {
	doc := StatusDoc{Version: Version, Queue: a.queue.Status(), Started: a.started, Goroutines: a.sup.Counters()}
	if a.updates != nil {
		if res, err := a.updates.Last(); err == nil && !res.CheckedAt.IsZero() {
			doc.Update = &res
		}
	}
	return doc
}

func (a *App) Queue() *notifier.Queue { return a.queue }

func (a *App) Settings() *settings.Settings { return a.prefs }

// SocketPath is "" when IPC is disabled.
func (a *App) SocketPath() string {
	if a.ipc == nil {
		return ""
	}
	return a.ipc.Path()
}

// Done is closed when the supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.started = time.Now()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSettingsConfig(cfg); err != nil {
			return err
		}
		if _, _, _, err := mapUpdater(cfg); err != nil {
			return err
		}
		_, err := mapIPCWait(cfg)
		return err
	})

	if a.ipc != nil {
		if err := a.ipc.Start(); err != nil {
			return err
		}
		a.sup.Go("ipc.serve", a.ipc.Serve)
	}
	if a.updates != nil {
		a.sup.GoRestart("updater", a.updates.Run,
			supervisor.WithRestartBackoff(time.Second, 30*time.Second),
			supervisor.WithMaxRestarts(5))
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if !a.log.Enabled(logx.LevelDebug) {
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if err := a.debug.Start(a.sup.Context()); err != nil {
		a.log.Warn("debug server not started", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				next = latest(sub, next)
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("app started",
		logx.String("version", Version),
		logx.Bool("ipc", a.ipc != nil),
		logx.Bool("updater", a.updates != nil),
	)
	return nil
}

// latest drains sub so bursts apply once.
func latest(sub <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cur
			}
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogging(next))

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.queue.Apply(ncfg)
	}
	a.sound.Set(desktop.NewSound(mapSoundConfig(next), a.log.With(logx.String("comp", "sound"))))
	if err := a.debug.Reconfigure(ctx, mapDebug(next)); err != nil {
		a.log.Warn("debug server reconfigure failed", logx.Err(err))
	}

	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop unwinds in reverse start order; each step is bounded so one stuck
// component can't hold up the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("debug", time.Second, a.debug.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("queue", 2*time.Second, a.queue.Stop)
	step("presenter", time.Second, func(context.Context) error { return a.presenter.Close() })
	step("settings", time.Second, func(context.Context) error { return a.prefs.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeResources() {
	if a.queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = a.queue.Stop(ctx)
		cancel()
	}
	if a.presenter != nil {
		_ = a.presenter.Close()
	}
	if a.prefs != nil {
		_ = a.prefs.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
