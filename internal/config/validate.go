package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks values that decode fine but can't be applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	durations := []struct{ path, raw string }{
		{"notifier.delay", cfg.Notifier.Delay},
		{"notifier.timeout", cfg.Notifier.Timeout},
		{"presenter.expire", cfg.Presenter.Expire},
		{"presenter.auto_close", cfg.Presenter.AutoClose},
		{"settings.busy_timeout", cfg.Settings.BusyTimeout},
		{"ipc.wait_timeout", cfg.IPC.WaitTimeout},
	}
	if cfg.Updater != nil {
		durations = append(durations, struct{ path, raw string }{"updater.timeout", cfg.Updater.Timeout})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Presenter.Driver)) {
	case "", "dbus", "log":
	default:
		return fmt.Errorf("presenter.driver: unknown %q (want dbus or log)", cfg.Presenter.Driver)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Settings.Driver)) {
	case "", "file", "json", "memory", "mem":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Settings.Path) == "" {
			return errors.New("settings.path is required when settings.driver=sqlite")
		}
	default:
		return fmt.Errorf("settings.driver: unknown %q", cfg.Settings.Driver)
	}

	if cfg.Sound.RatePerSec < 0 {
		return errors.New("sound.rate_per_sec must be >= 0")
	}
	if cfg.Sound.Burst < 0 {
		return errors.New("sound.burst must be >= 0")
	}
	if cfg.Sound.Enabled && strings.TrimSpace(cfg.Sound.File) == "" {
		return errors.New("sound.file is required when sound.enabled=true")
	}

	if u := cfg.Updater; u != nil && u.Enabled {
		if strings.TrimSpace(u.FeedURL) == "" {
			return errors.New("updater.feed_url is required when updater.enabled=true")
		}
		p, err := url.Parse(u.FeedURL)
		if err != nil || (p.Scheme != "http" && p.Scheme != "https") || p.Host == "" {
			return fmt.Errorf("updater.feed_url: invalid %q", u.FeedURL)
		}
	}
	if addr := strings.TrimSpace(cfg.Debug.Addr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("debug.addr: %w", err)
		}
	}
	return nil
}
