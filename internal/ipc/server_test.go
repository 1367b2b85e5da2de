package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deskshell/internal/notifier"
	"deskshell/internal/settings"
	logx "deskshell/pkg/logx"
)

type fakeQueue struct {
	mu     sync.Mutex
	reqs   []notifier.Request
	result notifier.Outcome
	hold   chan struct{}
}

func (q *fakeQueue) Enqueue(req notifier.Request) <-chan notifier.Result {
	q.mu.Lock()
	q.reqs = append(q.reqs, req)
	q.mu.Unlock()
	ch := make(chan notifier.Result, 1)
	go func() {
		if q.hold != nil {
			<-q.hold
		}
		out := q.result
		if out == "" {
			out = notifier.OutcomeClosed
		}
		r := notifier.Result{RequestID: req.ID, Kind: req.Kind, Outcome: out, Shown: out.Displayed()}
		if out == notifier.OutcomeDisabled {
			r.Error = notifier.ErrDisabled.Error()
		}
		ch <- r
	}()
	return ch
}

func (q *fakeQueue) Status() notifier.Status {
	return notifier.Status{State: notifier.StateIdle.String(), Pending: 2, Delay: 250 * time.Millisecond, Timeout: 5 * time.Second}
}

func (q *fakeQueue) requests() []notifier.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]notifier.Request(nil), q.reqs...)
}

type systemCheck bool

func (s systemCheck) Available(context.Context) bool { return bool(s) }

// socketPath keeps the path short; unix socket names are length limited.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dsk")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func startServer(t *testing.T, deps Deps, opts ...func(*Server)) (*Server, *Client) {
	t.Helper()
	path := socketPath(t)
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	srv := NewServer(path, deps)
	for _, o := range opts {
		o(srv)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, NewClient(path, time.Second)
}

func newSettings() *settings.Settings { return settings.New(settings.NewMemory(), nil, logx.Nop()) }

func TestShowNotificationNoWait(t *testing.T) {
	q := &fakeQueue{}
	_, c := startServer(t, Deps{Queue: q})

	out, err := c.ShowNotification(context.Background(), "mention", notifier.Payload{Creator: "Ann", Target: "Spec"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if out.RequestID == "" || out.Outcome != "" {
		t.Fatalf("unexpected data %+v", out)
	}
	reqs := q.requests()
	if len(reqs) != 1 || reqs[0].Title != "Ann mentioned you in" || reqs[0].Body != "Spec" {
		t.Fatalf("requests = %+v", reqs)
	}
}

func TestShowNotificationWaitReportsDisabled(t *testing.T) {
	q := &fakeQueue{result: notifier.OutcomeDisabled}
	_, c := startServer(t, Deps{Queue: q})

	out, err := c.ShowNotification(context.Background(), "", notifier.Payload{Creator: "Ann", Message: "hi", Target: "T"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if out.Outcome != string(notifier.OutcomeDisabled) || out.Shown || out.Reason != "disabled" {
		t.Fatalf("unexpected data %+v", out)
	}
}

func TestResultReason(t *testing.T) {
	cases := []struct {
		res  notifier.Result
		want string
	}{
		{notifier.Result{Outcome: notifier.OutcomeDisabled, Error: notifier.ErrDisabled.Error()}, "disabled"},
		{notifier.Result{Outcome: notifier.OutcomeClosed}, ""},
		{notifier.Result{Outcome: notifier.OutcomeClicked}, ""},
		{notifier.Result{Outcome: notifier.OutcomeFailed, Error: "boom"}, "boom"},
		{notifier.Result{Outcome: notifier.OutcomeTimeout, Error: notifier.ErrTimeout.Error()}, notifier.ErrTimeout.Error()},
	}
	for _, c := range cases {
		if got := reason(c.res); got != c.want {
			t.Errorf("reason(%s) = %q, want %q", c.res.Outcome, got, c.want)
		}
	}
}

func TestShowNotificationValidation(t *testing.T) {
	_, c := startServer(t, Deps{Queue: &fakeQueue{}})
	ctx := context.Background()

	if _, err := c.ShowNotification(ctx, "bogus", notifier.Payload{Creator: "a", Target: "b"}, false); err == nil {
		t.Fatal("expected unknown kind error")
	}
	if _, err := c.ShowNotification(ctx, "reply", notifier.Payload{Creator: "a"}, false); err == nil {
		t.Fatal("expected missing target error")
	}
}

func TestWaitTimeout(t *testing.T) {
	q := &fakeQueue{hold: make(chan struct{})}
	defer close(q.hold)
	_, c := startServer(t, Deps{Queue: q}, func(s *Server) { s.WaitTimeout = 20 * time.Millisecond })

	_, err := c.ShowNotification(context.Background(), "reply", notifier.Payload{Creator: "a", Target: "b"}, true)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v", err)
	}
}

func TestTestNotification(t *testing.T) {
	q := &fakeQueue{}
	_, c := startServer(t, Deps{Queue: q})
	ctx := context.Background()

	var out ShowNotificationData
	if err := c.Call(ctx, CommandTestNotification, TestNotificationPayload{Type: "dummy", Wait: true}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Outcome != string(notifier.OutcomeClosed) {
		t.Fatalf("outcome = %q", out.Outcome)
	}
	if err := c.Call(ctx, CommandTestNotification, TestNotificationPayload{Type: "task-status"}, &out); err != nil {
		t.Fatal(err)
	}
	if err := c.Call(ctx, CommandTestNotification, TestNotificationPayload{Type: "nope"}, nil); err == nil {
		t.Fatal("expected error for unknown type")
	}

	reqs := q.requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d", len(reqs))
	}
	if reqs[0].Title != "John Doe created a new document" || reqs[0].Body != "Design Document - Project X" {
		t.Fatalf("dummy = %+v", reqs[0])
	}
	if reqs[1].Kind != notifier.KindTaskStatus {
		t.Fatalf("kind = %s", reqs[1].Kind)
	}
}

func TestNotificationSettingsRoundTrip(t *testing.T) {
	st := newSettings()
	_, c := startServer(t, Deps{Settings: st, System: systemCheck(true)})
	ctx := context.Background()

	var enabled bool
	if err := c.Call(ctx, CommandGetNotificationsEnabled, nil, &enabled); err != nil || enabled {
		t.Fatalf("default: enabled=%v err=%v", enabled, err)
	}
	status, err := c.NotificationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.AppEnabled || !status.SystemEnabled || status.EffectivelyEnabled {
		t.Fatalf("status = %+v", status)
	}

	if err := c.SetNotificationsEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	if !st.NotificationsEnabled(ctx) {
		t.Fatal("setting not persisted")
	}
	status, err = c.NotificationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.EffectivelyEnabled {
		t.Fatalf("status = %+v", status)
	}
}

func TestStatusWithoutSystemService(t *testing.T) {
	st := newSettings()
	_ = st.SetNotificationsEnabled(context.Background(), true)
	_, c := startServer(t, Deps{Settings: st, System: systemCheck(false)})

	status, err := c.NotificationStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !status.AppEnabled || status.SystemEnabled || status.EffectivelyEnabled {
		t.Fatalf("status = %+v", status)
	}
}

func TestQueueStatusAndSettingsCommands(t *testing.T) {
	st := newSettings()
	_, c := startServer(t, Deps{Queue: &fakeQueue{}, Settings: st})
	ctx := context.Background()

	qs, err := c.QueueStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if qs.State != "idle" || qs.Pending != 2 || qs.Delay != 250*time.Millisecond {
		t.Fatalf("queue status = %+v", qs)
	}

	if err := c.Call(ctx, CommandUpdateLastVisitedURL, URLPayload{URL: "https://example.com/p/1"}, nil); err != nil {
		t.Fatal(err)
	}
	var all map[string]string
	if err := c.Call(ctx, CommandGetSettings, nil, &all); err != nil {
		t.Fatal(err)
	}
	if all[settings.KeyLastVisitedURL] != "https://example.com/p/1" {
		t.Fatalf("settings = %v", all)
	}
}

func TestCheckForUpdates(t *testing.T) {
	var calls atomic.Int32
	up := UpdatesFunc(func(context.Context) (UpdateData, error) {
		if calls.Add(1) > 1 {
			return UpdateData{}, errors.New("feed down")
		}
		return UpdateData{Current: "1.0.0", Latest: "1.1.0", Available: true}, nil
	})
	_, c := startServer(t, Deps{Updates: up})
	ctx := context.Background()

	var d UpdateData
	if err := c.Call(ctx, CommandCheckForUpdates, nil, &d); err != nil {
		t.Fatal(err)
	}
	if !d.Available || d.Latest != "1.1.0" {
		t.Fatalf("data = %+v", d)
	}
	if err := c.Call(ctx, CommandCheckForUpdates, nil, &d); err == nil || !strings.Contains(err.Error(), "feed down") {
		t.Fatalf("err = %v", err)
	}
}

func TestUnknownCommandAndGarbage(t *testing.T) {
	srv, c := startServer(t, Deps{})
	ctx := context.Background()

	if err := c.Call(ctx, Command("nope"), nil, nil); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("err = %v", err)
	}

	conn, err := net.Dial("unix", srv.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("{not json\n")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 512)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(buf[:n]), `"status":"ERROR"`) {
		t.Fatalf("response = %s", buf[:n])
	}
}

func TestServeRemovesSocketOnShutdown(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path, Deps{Log: logx.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("socket never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("socket still present: %v", err)
	}
}

func TestClientWithoutDaemon(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"), 100*time.Millisecond)
	if err := c.Call(context.Background(), CommandQueueStatus, nil, nil); err == nil {
		t.Fatal("expected connect error")
	}
}
