package desktop

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "deskshell/pkg/logx"
)

// Runner executes an external command and waits for it.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// SoundConfig configures the alert sound.
type SoundConfig struct {
	Enabled   bool
	Command   string   // player binary; "" means afplay
	File      string   // sound file path
	Platforms []string // GOOS values allowed to play; empty means darwin only
	RatePerS  float64  // max alerts per second; <= 0 means unlimited
	Burst     int
	Timeout   time.Duration // per playback; 0 means 10s
}

// Sound plays the configured alert in the background. PlayAlert never
// blocks and never reports errors; failures are logged.
type Sound struct {
	cfg     SoundConfig
	log     logx.Logger
	run     Runner
	goos    string
	limiter *rate.Limiter
}

type SoundOption func(*Sound)

// WithSoundRunner replaces the exec-based runner.
func WithSoundRunner(r Runner) SoundOption { return func(s *Sound) { s.run = r } }

// WithGOOS overrides the detected platform.
func WithGOOS(goos string) SoundOption { return func(s *Sound) { s.goos = goos } }

func NewSound(cfg SoundConfig, log logx.Logger, opts ...SoundOption) *Sound {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Command == "" {
		cfg.Command = "afplay"
	}
	if len(cfg.Platforms) == 0 {
		cfg.Platforms = []string{"darwin"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &Sound{cfg: cfg, log: log, run: execRunner, goos: runtime.GOOS}
	if cfg.RatePerS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerS), burst)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sound) platformAllowed() bool {
	for _, p := range s.cfg.Platforms {
		if strings.EqualFold(strings.TrimSpace(p), s.goos) {
			return true
		}
	}
	return false
}

func (s *Sound) PlayAlert() {
	if s == nil || !s.cfg.Enabled || !s.platformAllowed() {
		return
	}
	if strings.TrimSpace(s.cfg.File) == "" {
		return
	}
	if _, err := os.Stat(s.cfg.File); err != nil {
		s.log.Warn("alert sound missing", logx.String("file", s.cfg.File), logx.Err(err))
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.log.Debug("alert sound throttled")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		if err := s.run(ctx, s.cfg.Command, s.cfg.File); err != nil {
			s.log.Warn("alert sound failed", logx.String("command", s.cfg.Command), logx.Err(err))
		}
	}()
}
