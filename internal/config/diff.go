package config

import (
	"reflect"
	"strings"

	logx "deskshell/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// log fields describing the new values. Sections that can't hot-apply are
// also returned in restart.
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.delay", strings.TrimSpace(newCfg.Notifier.Delay)),
			logx.String("notifier.timeout", strings.TrimSpace(newCfg.Notifier.Timeout)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Sound, newCfg.Sound) {
		changed = append(changed, "sound")
		attrs = append(attrs, logx.Bool("sound.enabled", newCfg.Sound.Enabled))
	}
	if oldCfg.Presenter != newCfg.Presenter {
		changed = append(changed, "presenter")
		restart = append(restart, "presenter")
		attrs = append(attrs, logx.String("presenter.driver", newCfg.Presenter.Driver))
	}
	if oldCfg.Settings != newCfg.Settings {
		changed = append(changed, "settings")
		restart = append(restart, "settings")
		attrs = append(attrs, logx.String("settings.driver", newCfg.Settings.Driver))
	}
	if oldCfg.IPC != newCfg.IPC {
		changed = append(changed, "ipc")
		restart = append(restart, "ipc")
	}
	if !reflect.DeepEqual(oldCfg.Updater, newCfg.Updater) {
		changed = append(changed, "updater")
		restart = append(restart, "updater")
		if newCfg.Updater != nil {
			attrs = append(attrs,
				logx.Bool("updater.enabled", newCfg.Updater.Enabled),
				logx.String("updater.schedule", newCfg.Updater.Schedule),
			)
		}
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
		)
	}
	return changed, attrs, restart
}
