package updater

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"deskshell/internal/eventbus"
	"deskshell/internal/notifier"
	logx "deskshell/pkg/logx"
)

const DefaultSchedule = "@every 30s"

// Enqueuer is the notification queue.
type Enqueuer interface {
	Enqueue(req notifier.Request) <-chan notifier.Result
}

type Config struct {
	Schedule string // cron spec or descriptor; "" means DefaultSchedule
	Location *time.Location
}

// Service runs the checker on a cron schedule and announces each new
// version once.
type Service struct {
	checker *Checker
	queue   Enqueuer
	bus     eventbus.Bus
	log     logx.Logger
	parser  cron.Parser
	cfg     Config

	mu           sync.Mutex
	c            *cron.Cron
	last         Result
	lastErr      error
	lastNotified string

	// serializes checks from cron and CheckNow
	checkMu sync.Mutex
}

func NewService(cfg Config, checker *Checker, queue Enqueuer, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		checker: checker,
		queue:   queue,
		bus:     bus,
		log:     log.With(logx.String("comp", "updater")),
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cfg:     cfg,
	}
}

// ValidateSchedule reports whether spec parses.
func ValidateSchedule(spec string) error {
	p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := p.Parse(spec); err != nil {
		return fmt.Errorf("invalid update schedule %q: %w", spec, err)
	}
	return nil
}

// Start registers the schedule. Scheduled checks run with ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { _, _ = s.CheckNow(ctx) }); err != nil {
		return fmt.Errorf("updater schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.c = c
	s.log.Info("update checks scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("current", s.checker.Current))
	return nil
}

// Stop halts the schedule and waits for a running check or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Run starts the schedule and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}

// CheckNow runs one check. A newer version not announced before is
// published on the bus and enqueued as an "Update available" notification.
func (s *Service) CheckNow(ctx context.Context) (Result, error) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	res, err := s.checker.Check(ctx)
	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.last = res
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("update check failed", logx.Err(err))
		s.publish(eventbus.UpdateFailed, err.Error())
		return res, err
	}
	if !res.Available {
		s.log.Debug("no update", logx.String("latest", res.Latest.Version))
		return res, nil
	}

	s.mu.Lock()
	fresh := s.lastNotified != res.Latest.Version
	if fresh {
		s.lastNotified = res.Latest.Version
	}
	s.mu.Unlock()
	if !fresh {
		return res, nil
	}

	s.log.Info("update available", logx.String("current", res.Current), logx.String("latest", res.Latest.Version))
	s.publish(eventbus.UpdateAvailable, res)
	if s.queue != nil {
		body := fmt.Sprintf("Version %s is available (you have %s).", res.Latest.Version, res.Current)
		s.queue.Enqueue(notifier.Simple("Update available", body, res.Latest.URL))
	}
	return res, nil
}

// Last returns the most recent successful result and the latest error.
func (s *Service) Last() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
