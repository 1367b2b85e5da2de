package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client talks to a running deskshelld.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient returns a client for path; "" means DefaultSocketPath. A zero
// timeout means 5s.
func NewClient(path string, timeout time.Duration) *Client {
	if path == "" {
		path = DefaultSocketPath()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{socketPath: path, timeout: timeout}
}

// Call sends one command and decodes the response data into out (when
// non-nil). ERROR responses come back as errors.
func (c *Client) Call(ctx context.Context, cmd Command, payload any, out any) error {
	req := Request{Command: cmd}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		req.Payload = b
	}

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w (is deskshelld running?)", err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.timeout))
	}

	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if _, err := conn.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if resp.Status != StatusOK {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}

// ShowNotification enqueues a typed notification. When wait is set the
// call returns after the notification completes, so ctx should allow for
// the queue's backlog.
func (c *Client) ShowNotification(ctx context.Context, kind string, data any, wait bool) (ShowNotificationData, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return ShowNotificationData{}, err
	}
	var out ShowNotificationData
	err = c.Call(ctx, CommandShowNotification, ShowNotificationPayload{Kind: kind, Data: raw, Wait: wait}, &out)
	return out, err
}

func (c *Client) NotificationStatus(ctx context.Context) (NotificationStatusData, error) {
	var out NotificationStatusData
	err := c.Call(ctx, CommandCheckNotificationStatus, nil, &out)
	return out, err
}

func (c *Client) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return c.Call(ctx, CommandSetNotificationsEnabled, EnabledPayload{Enabled: enabled}, nil)
}

func (c *Client) QueueStatus(ctx context.Context) (QueueStatusData, error) {
	var out QueueStatusData
	err := c.Call(ctx, CommandQueueStatus, nil, &out)
	return out, err
}
