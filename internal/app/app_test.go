package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deskshell/internal/config"
	"deskshell/internal/ipc"
	"deskshell/internal/notifier"
	"deskshell/internal/settings"
)

const appConfig = `{
  "logging": {"level": "error", "console": true},
  "notifier": {"delay": "%s", "timeout": "2s"},
  "presenter": {"driver": "log", "auto_close": "50ms"},
  "settings": {"driver": "memory"},
  "ipc": {"enabled": true, "socket": %q, "wait_timeout": "5s"}
}`

// shortDir keeps unix socket paths under the sun_path limit.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ds")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func writeConfig(t *testing.T, path, delay, socket string) {
	t.Helper()
	body := fmt.Sprintf(appConfig, delay, socket)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func startApp(t *testing.T) (*App, string, string) {
	t.Helper()
	dir := shortDir(t)
	cfgPath := filepath.Join(dir, "config.json")
	sock := filepath.Join(dir, "d.sock")
	writeConfig(t, cfgPath, "10ms", sock)

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	})
	return a, cfgPath, sock
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func TestAppServesNotificationsOverIPC(t *testing.T) {
	a, _, sock := startApp(t)
	if a.SocketPath() != sock {
		t.Fatalf("socket = %q", a.SocketPath())
	}
	waitForSocket(t, sock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := ipc.NewClient(sock, 5*time.Second)
	payload := notifier.Payload{Creator: "Ana", Target: "Roadmap", URL: "https://example.com/t/1"}

	res, err := c.ShowNotification(ctx, string(notifier.KindNewComment), payload, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != string(notifier.OutcomeDisabled) || res.Shown {
		t.Fatalf("disabled result = %+v", res)
	}

	if err := c.SetNotificationsEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	st, err := c.NotificationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.AppEnabled || !st.SystemEnabled || !st.EffectivelyEnabled {
		t.Fatalf("status = %+v", st)
	}

	res, err = c.ShowNotification(ctx, string(notifier.KindNewComment), payload, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != string(notifier.OutcomeClosed) || !res.Shown {
		t.Fatalf("enabled result = %+v", res)
	}

	v, err := a.Settings().GetString(ctx, settings.KeyNotificationsEnabled, "")
	if err != nil || v != "true" {
		t.Fatalf("stored flag = %q err=%v", v, err)
	}

	qs, err := c.QueueStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if qs.Pending != 0 {
		t.Fatalf("queue status = %+v", qs)
	}

	doc, ok := a.status(ctx).(StatusDoc)
	if !ok || doc.Version != Version || doc.Goroutines.Active == 0 || doc.Goroutines.Started == 0 {
		t.Fatalf("status doc = %+v", doc)
	}
	if len(doc.Queue.Recent) != 2 {
		t.Fatalf("recent results = %d, want 2", len(doc.Queue.Recent))
	}
}

func TestAppHotReloadsNotifierTiming(t *testing.T) {
	a, cfgPath, sock := startApp(t)
	waitForSocket(t, sock)
	// Let the watcher register the directory.
	time.Sleep(100 * time.Millisecond)

	writeConfig(t, cfgPath, "400ms", sock)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a.Queue().Status().Delay == 400*time.Millisecond {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("delay = %v after reload", a.Queue().Status().Delay)
}

func TestStopWithoutStart(t *testing.T) {
	dir := shortDir(t)
	cfgPath := filepath.Join(dir, "config.json")
	writeConfig(t, cfgPath, "10ms", filepath.Join(dir, "d.sock"))

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	dir := shortDir(t)
	cfgPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(cfgPath, []byte(`{"notifier": {"delay": "later"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(cfgPath); err == nil {
		t.Fatal("expected error")
	}
}

func TestMapSettingsDefaults(t *testing.T) {
	sc, err := mapSettingsConfig(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if sc.Driver != "file" || sc.Path == "" || sc.BusyTimeout != time.Second {
		t.Fatalf("settings = %+v", sc)
	}
}

func TestMapUpdater(t *testing.T) {
	if _, _, enabled, err := mapUpdater(&config.Config{}); enabled || err != nil {
		t.Fatalf("enabled=%v err=%v", enabled, err)
	}
	cfg := &config.Config{Updater: &config.UpdaterConfig{Enabled: true, FeedURL: "https://example.com/latest.json"}}
	ucfg, checker, enabled, err := mapUpdater(cfg)
	if err != nil || !enabled {
		t.Fatalf("enabled=%v err=%v", enabled, err)
	}
	if ucfg.Schedule == "" || checker.Current != Version || checker.Client.Timeout != 5*time.Second {
		t.Fatalf("ucfg=%+v checker=%+v", ucfg, checker)
	}
	cfg.Updater.Schedule = "every so often"
	if _, _, _, err := mapUpdater(cfg); err == nil {
		t.Fatal("expected schedule error")
	}
}
