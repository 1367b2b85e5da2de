package app

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"deskshell/internal/config"
	"deskshell/internal/desktop"
	"deskshell/internal/notifier"
	"deskshell/internal/observability/pprof"
	"deskshell/internal/settings"
	"deskshell/internal/updater"
	logx "deskshell/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	delay, err := config.ParseDurationOrDefault("notifier.delay", cfg.Notifier.Delay, notifier.DefaultDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("notifier.timeout", cfg.Notifier.Timeout, notifier.DefaultTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{Delay: delay, Timeout: timeout}, nil
}

func mapSettingsConfig(cfg *config.Config) (settings.Config, error) {
	sc := cfg.Settings
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "file", "json":
		driver = "file"
		if path == "" {
			path = "./deskshell-settings.json"
		}
	case "sqlite", "sqlite3":
		driver = "sqlite"
	}
	busy, err := config.ParseDurationOrDefault("settings.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return settings.Config{}, err
	}
	return settings.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapSoundConfig(cfg *config.Config) desktop.SoundConfig {
	s := cfg.Sound
	return desktop.SoundConfig{
		Enabled:   s.Enabled,
		Command:   strings.TrimSpace(s.Command),
		File:      strings.TrimSpace(s.File),
		Platforms: s.Platforms,
		RatePerS:  s.RatePerSec,
		Burst:     s.Burst,
	}
}

func mapIPCWait(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("ipc.wait_timeout", cfg.IPC.WaitTimeout, 2*time.Minute)
}

func mapDebug(cfg *config.Config) pprof.Config {
	d := cfg.Debug
	return pprof.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
}

// presenter is what the app needs from a notification backend.
type presenter interface {
	notifier.Presenter
	Available(ctx context.Context) bool
	Close() error
}

// buildPresenter prefers D-Bus and falls back to the log presenter when
// the session bus or the platform can't provide one.
func buildPresenter(cfg *config.Config, log logx.Logger) (presenter, error) {
	pc := cfg.Presenter
	autoClose, err := config.ParseDurationField("presenter.auto_close", pc.AutoClose)
	if err != nil {
		return nil, err
	}
	expire, err := config.ParseDurationField("presenter.expire", pc.Expire)
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(strings.TrimSpace(pc.Driver))
	if driver == "" || driver == "dbus" {
		p, err := desktop.NewDBus(desktop.DBusConfig{
			AppName:    pc.AppName,
			ActionText: pc.ActionText,
			Expire:     expire,
		}, log)
		if err == nil {
			log.Info("presenter ready", logx.String("driver", "dbus"))
			return p, nil
		}
		log.Warn("dbus presenter unavailable; using log presenter", logx.Err(err))
	}
	log.Info("presenter ready", logx.String("driver", "log"), logx.Duration("auto_close", autoClose))
	return desktop.NewLogPresenter(log, autoClose), nil
}

func mapUpdater(cfg *config.Config) (updater.Config, *updater.Checker, bool, error) {
	u := cfg.Updater
	if u == nil || !u.Enabled {
		return updater.Config{}, nil, false, nil
	}
	timeout, err := config.ParseDurationOrDefault("updater.timeout", u.Timeout, 5*time.Second)
	if err != nil {
		return updater.Config{}, nil, false, err
	}
	schedule := strings.TrimSpace(u.Schedule)
	if schedule == "" {
		schedule = updater.DefaultSchedule
	}
	if err := updater.ValidateSchedule(schedule); err != nil {
		return updater.Config{}, nil, false, err
	}
	current := strings.TrimSpace(u.CurrentVersion)
	if current == "" {
		current = Version
	}
	checker := &updater.Checker{FeedURL: u.FeedURL, Current: current}
	checker.Client = newHTTPClient(timeout)
	return updater.Config{Schedule: schedule}, checker, true, nil
}

// soundSwitch lets config reloads replace the sound player under a running
// queue.
type soundSwitch struct {
	cur atomic.Pointer[desktop.Sound]
}

func (s *soundSwitch) Set(p *desktop.Sound) { s.cur.Store(p) }

func (s *soundSwitch) PlayAlert() {
	if p := s.cur.Load(); p != nil {
		p.PlayAlert()
	}
}
