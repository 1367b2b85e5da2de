package config

// Config is the deskshelld configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "250ms", "5s", "1m").
// Unknown keys are rejected so typos surface on load and on hot reload.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Notifier  NotifierConfig  `json:"notifier"`
	Presenter PresenterConfig `json:"presenter"`
	Sound     SoundConfig     `json:"sound"`
	Settings  SettingsConfig  `json:"settings"`
	IPC       IPCConfig       `json:"ipc"`
	Updater   *UpdaterConfig  `json:"updater,omitempty"`
	Debug     DebugConfig     `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifierConfig controls the display queue. Both fields hot-reload.
//
// Defaults (when omitted or "0s"):
//   - delay: "250ms"
//   - timeout: "5s"
type NotifierConfig struct {
	Delay   string `json:"delay,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// PresenterConfig selects how notifications reach the screen.
//
//	"presenter": { "driver": "dbus", "app_name": "Assemble" }
//
// driver is "dbus" (linux session bus, falls back to log when unavailable)
// or "log". Changes need a restart.
type PresenterConfig struct {
	Driver     string `json:"driver,omitempty"`
	AppName    string `json:"app_name,omitempty"`
	ActionText string `json:"action_text,omitempty"`
	Expire     string `json:"expire,omitempty"`
	// AutoClose applies to the log driver only.
	AutoClose string `json:"auto_close,omitempty"`
}

// SoundConfig controls the alert sound played with each shown notification.
type SoundConfig struct {
	Enabled    bool     `json:"enabled"`
	Command    string   `json:"command,omitempty"`   // default: afplay
	File       string   `json:"file,omitempty"`
	Platforms  []string `json:"platforms,omitempty"` // default: ["darwin"]
	RatePerSec float64  `json:"rate_per_sec,omitempty"`
	Burst      int      `json:"burst,omitempty"`
}

// SettingsConfig controls where user settings persist.
//
//	"settings": { "driver": "sqlite", "path": "./deskshell.db" }
type SettingsConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default), sqlite, memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type IPCConfig struct {
	Enabled bool   `json:"enabled"`
	Socket  string `json:"socket,omitempty"` // default: $XDG_RUNTIME_DIR/deskshell.sock
	// WaitTimeout bounds show-notification requests sent with wait=true.
	WaitTimeout string `json:"wait_timeout,omitempty"`
}

// UpdaterConfig enables periodic release checks. Omit the section to
// disable them.
type UpdaterConfig struct {
	Enabled        bool   `json:"enabled"`
	FeedURL        string `json:"feed_url"`
	Schedule       string `json:"schedule,omitempty"` // default: "@every 30s"
	CurrentVersion string `json:"current_version,omitempty"`
	Timeout        string `json:"timeout,omitempty"` // per request, default 5s
}

// DebugConfig serves /debug/pprof/, /healthz and /status over HTTP. It
// hot-reloads; a non-loopback addr needs token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
