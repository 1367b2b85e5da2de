package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"deskshell/internal/notifier"
	"deskshell/internal/settings"
	logx "deskshell/pkg/logx"
)

const (
	readTimeout        = 5 * time.Second
	defaultWaitTimeout = 2 * time.Minute
)

// Queue is the part of the notification queue the server drives.
type Queue interface {
	Enqueue(req notifier.Request) <-chan notifier.Result
	Status() notifier.Status
}

type Settings interface {
	NotificationsEnabled(ctx context.Context) bool
	SetNotificationsEnabled(ctx context.Context, v bool) error
	SetString(ctx context.Context, key, value string) error
	Snapshot(ctx context.Context) (map[string]string, error)
}

// SystemCheck reports whether the OS notification service is reachable.
type SystemCheck interface {
	Available(ctx context.Context) bool
}

type Updates interface {
	CheckNow(ctx context.Context) (UpdateData, error)
}

// UpdatesFunc adapts a function to Updates.
type UpdatesFunc func(ctx context.Context) (UpdateData, error)

func (f UpdatesFunc) CheckNow(ctx context.Context) (UpdateData, error) { return f(ctx) }

type Deps struct {
	Queue    Queue
	Settings Settings
	System   SystemCheck
	Updates  Updates
	Log      logx.Logger
}

// Server answers one newline-terminated JSON request per connection.
type Server struct {
	path string
	deps Deps
	log  logx.Logger

	// WaitTimeout bounds how long a wait=true request holds its connection.
	WaitTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// DefaultSocketPath is $XDG_RUNTIME_DIR/deskshell.sock, falling back to the
// temp dir.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "deskshell.sock")
}

func NewServer(path string, deps Deps) *Server {
	if path == "" {
		path = DefaultSocketPath()
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{path: path, deps: deps, log: log.With(logx.String("comp", "ipc")), WaitTimeout: defaultWaitTimeout}
}

func (s *Server) Path() string { return s.path }

// Start binds the socket. Serve calls it when needed.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	_ = os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("ipc listen %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("ipc socket permissions: %w", err)
	}
	s.listener = ln
	s.log.Info("ipc listening", logx.String("path", s.path))
	return nil
}

// Serve accepts connections until ctx is done, then closes the listener,
// waits for in-flight connections and removes the socket file.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closing atomic.Bool
	go func() {
		<-connCtx.Done()
		closing.Store(true)
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if closing.Load() {
				break
			}
			s.log.Warn("ipc accept error", logx.Err(err))
			if errors.Is(err, net.ErrClosed) {
				break
			}
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(connCtx, conn)
		}()
	}

	cancel()
	s.wg.Wait()
	_ = os.Remove(s.path)
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	data, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		s.log.Warn("ipc read error", logx.Err(err))
		return
	}

	var resp *Response
	req, err := ParseRequest(data)
	if err != nil {
		resp = NewErrorResponse(fmt.Sprintf("invalid request: %v", err))
	} else {
		s.log.Debug("ipc request", logx.String("command", string(req.Command)))
		resp = s.handleCommand(ctx, req)
	}

	out, err := resp.Marshal()
	if err != nil {
		s.log.Error("ipc marshal response", logx.Err(err))
		return
	}
	out = append(out, '\n')
	if _, err := conn.Write(out); err != nil {
		s.log.Warn("ipc write error", logx.Err(err))
	}
}

func (s *Server) handleCommand(ctx context.Context, req *Request) *Response {
	switch req.Command {
	case CommandShowNotification:
		return s.handleShow(ctx, req.Payload)
	case CommandTestNotification:
		return s.handleTest(ctx, req.Payload)
	case CommandGetNotificationsEnabled:
		if s.deps.Settings == nil {
			return ok(false)
		}
		return ok(s.deps.Settings.NotificationsEnabled(ctx))
	case CommandSetNotificationsEnabled:
		return s.handleSetEnabled(ctx, req.Payload)
	case CommandCheckNotificationStatus:
		return ok(s.notificationStatus(ctx))
	case CommandQueueStatus:
		if s.deps.Queue == nil {
			return NewErrorResponse("queue unavailable")
		}
		st := s.deps.Queue.Status()
		return ok(QueueStatusData{State: st.State, Pending: st.Pending, Delay: st.Delay, Timeout: st.Timeout})
	case CommandCheckForUpdates:
		if s.deps.Updates == nil {
			return NewErrorResponse("updates disabled")
		}
		d, err := s.deps.Updates.CheckNow(ctx)
		if err != nil {
			return NewErrorResponse(fmt.Sprintf("update check failed: %v", err))
		}
		return ok(d)
	case CommandUpdateLastVisitedURL:
		var p URLPayload
		if err := decode(req.Payload, &p); err != nil {
			return NewErrorResponse(err.Error())
		}
		if s.deps.Settings == nil {
			return NewErrorResponse("settings unavailable")
		}
		if err := s.deps.Settings.SetString(ctx, settings.KeyLastVisitedURL, p.URL); err != nil {
			return NewErrorResponse(fmt.Sprintf("save url: %v", err))
		}
		return ok(nil)
	case CommandGetSettings:
		if s.deps.Settings == nil {
			return NewErrorResponse("settings unavailable")
		}
		all, err := s.deps.Settings.Snapshot(ctx)
		if err != nil {
			return NewErrorResponse(fmt.Sprintf("read settings: %v", err))
		}
		return ok(all)
	default:
		return NewErrorResponse(fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func (s *Server) handleShow(ctx context.Context, raw json.RawMessage) *Response {
	var p ShowNotificationPayload
	if err := decode(raw, &p); err != nil {
		return NewErrorResponse(err.Error())
	}
	kind, err := notifier.ParseKind(p.Kind)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	var data notifier.Payload
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &data); err != nil {
			return NewErrorResponse(fmt.Sprintf("invalid data: %v", err))
		}
	}
	req, err := notifier.NewRequest(kind, data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.enqueue(ctx, req, p.Wait)
}

func (s *Server) handleTest(ctx context.Context, raw json.RawMessage) *Response {
	var p TestNotificationPayload
	if err := decode(raw, &p); err != nil {
		return NewErrorResponse(err.Error())
	}
	kind, data, okType := testPayload(p.Type)
	if !okType {
		return NewErrorResponse(fmt.Sprintf("unknown test notification type: %q", p.Type))
	}
	req, err := notifier.NewRequest(kind, data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.enqueue(ctx, req, p.Wait)
}

func (s *Server) enqueue(ctx context.Context, req notifier.Request, wait bool) *Response {
	if s.deps.Queue == nil {
		return NewErrorResponse("queue unavailable")
	}
	ch := s.deps.Queue.Enqueue(req)
	if !wait {
		return ok(ShowNotificationData{RequestID: req.ID})
	}

	timer := time.NewTimer(s.WaitTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return ok(ShowNotificationData{
			RequestID: res.RequestID,
			Outcome:   string(res.Outcome),
			Shown:     res.Shown,
			Reason:    reason(res),
		})
	case <-timer.C:
		return NewErrorResponse("timed out waiting for notification result")
	case <-ctx.Done():
		return NewErrorResponse("server shutting down")
	}
}

// reason is "disabled" for suppressed items and the error text for other
// incomplete ones. Clicked and closed items have none.
func reason(res notifier.Result) string {
	switch res.Outcome {
	case notifier.OutcomeClicked, notifier.OutcomeClosed:
		return ""
	case notifier.OutcomeDisabled:
		return string(notifier.OutcomeDisabled)
	}
	return res.Error
}

func (s *Server) handleSetEnabled(ctx context.Context, raw json.RawMessage) *Response {
	var p EnabledPayload
	if err := decode(raw, &p); err != nil {
		return NewErrorResponse(err.Error())
	}
	if s.deps.Settings == nil {
		return NewErrorResponse("settings unavailable")
	}
	if err := s.deps.Settings.SetNotificationsEnabled(ctx, p.Enabled); err != nil {
		return NewErrorResponse(fmt.Sprintf("save setting: %v", err))
	}
	if p.Enabled && s.deps.System != nil && !s.deps.System.Available(ctx) {
		s.log.Warn("notifications enabled but system notification service unavailable")
	}
	s.log.Info("notifications toggled", logx.Bool("enabled", p.Enabled))
	return ok(p.Enabled)
}

func (s *Server) notificationStatus(ctx context.Context) NotificationStatusData {
	var d NotificationStatusData
	if s.deps.Settings != nil {
		d.AppEnabled = s.deps.Settings.NotificationsEnabled(ctx)
	}
	if s.deps.System != nil {
		d.SystemEnabled = s.deps.System.Available(ctx)
	}
	d.EffectivelyEnabled = d.AppEnabled && d.SystemEnabled
	return d
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func ok(data any) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// testPayload returns canned data for test-notification. "dummy" is the
// generic sample; every notification kind has one too.
func testPayload(typ string) (notifier.Kind, notifier.Payload, bool) {
	base := notifier.Payload{
		Creator: "John Doe",
		Target:  "Design Document",
		Info:    "Project X",
		URL:     "https://example.com/documents/123",
	}
	switch typ {
	case "", "dummy":
		base.Message = "created a new document"
		return notifier.KindGeneric, base, true
	case string(notifier.KindTaskStatus):
		base.Status = "Done"
		return notifier.KindTaskStatus, base, true
	}
	kind, err := notifier.ParseKind(typ)
	if err != nil {
		return "", notifier.Payload{}, false
	}
	if kind == notifier.KindGeneric {
		base.Message = "created a new document"
	}
	return kind, base, true
}
