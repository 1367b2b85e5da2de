package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deskshell/internal/eventbus"
	logx "deskshell/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{"memory": NewMemory()}

	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "settings.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	out["file"] = fs

	ss, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "settings.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	out["sqlite"] = ss

	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func TestStoreDrivers(t *testing.T) {
	ctx := context.Background()
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("missing key: ok=%v err=%v", ok, err)
			}
			if err := st.Set(ctx, "a", "1"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := st.Set(ctx, "a", "2"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			v, ok, err := st.Get(ctx, "a")
			if err != nil || !ok || v != "2" {
				t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
			}
			all, err := st.All(ctx)
			if err != nil {
				t.Fatalf("all: %v", err)
			}
			if len(all) != 1 || all["a"] != "2" {
				t.Fatalf("all = %v", all)
			}
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, KeyLastVisitedURL, "https://example.test/x"); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	v, ok, err := st.Get(ctx, KeyLastVisitedURL)
	if err != nil || !ok || v != "https://example.test/x" {
		t.Fatalf("reopened: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Set(ctx, "k", "v"); err != nil {
				t.Fatal(err)
			}

			// Readers racing Close must see a value or ErrClosed, never a crash.
			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 50; i++ {
					if _, _, err := st.Get(ctx, "k"); err != nil && !errors.Is(err, ErrClosed) {
						// sql reports its own error if Close lands mid-query.
						if name != "sqlite" {
							t.Errorf("get during close: %v", err)
						}
						return
					}
				}
			}()
			if err := st.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			<-done

			if err := st.Close(); err != nil {
				t.Fatalf("second close: %v", err)
			}
			if _, _, err := st.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
				t.Fatalf("get err = %v, want ErrClosed", err)
			}
			if err := st.Set(ctx, "k", "v"); !errors.Is(err, ErrClosed) {
				t.Fatalf("set err = %v, want ErrClosed", err)
			}
			if _, err := st.All(ctx); !errors.Is(err, ErrClosed) {
				t.Fatalf("all err = %v, want ErrClosed", err)
			}
		})
	}
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(Config{Driver: "file", Path: path}, logx.Nop()); err == nil {
		t.Fatal("expected error for corrupt document")
	}
}

func TestOpenValidation(t *testing.T) {
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestNotificationsEnabledDefaultsFalse(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory(), nil, logx.Nop())
	if s.NotificationsEnabled(ctx) {
		t.Fatal("fresh store should be disabled")
	}
	if err := s.SetNotificationsEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	if !s.NotificationsEnabled(ctx) {
		t.Fatal("expected enabled after set")
	}
	if err := s.Store().Set(ctx, KeyNotificationsEnabled, "garbage"); err != nil {
		t.Fatal(err)
	}
	if s.NotificationsEnabled(ctx) {
		t.Fatal("unparsable value should read as disabled")
	}
}

type failingStore struct{ Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func TestNotificationsEnabledReadErrorIsFalse(t *testing.T) {
	mem := NewMemory()
	_ = mem.Set(context.Background(), KeyNotificationsEnabled, "true")
	s := New(failingStore{mem}, nil, logx.Nop())
	if s.NotificationsEnabled(context.Background()) {
		t.Fatal("read error should read as disabled")
	}
}

func TestSetPublishesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	s := New(NewMemory(), bus, logx.Nop())
	if err := s.SetBool(ctx, KeyNotificationsEnabled, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBool(ctx, KeyNotificationsEnabled, true); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-ch:
		c, ok := e.Data.(Change)
		if e.Type != eventbus.SettingsChanged || !ok || c.Key != KeyNotificationsEnabled || c.Value != "true" || e.Time.IsZero() {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no settings.changed event")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %+v", e)
	default:
	}
}

func TestGetStringDefault(t *testing.T) {
	s := New(nil, nil, logx.Nop())
	v, err := s.GetString(context.Background(), KeyLastVisitedURL, "about:blank")
	if err != nil || v != "about:blank" {
		t.Fatalf("v=%q err=%v", v, err)
	}
}
