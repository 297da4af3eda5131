package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"correctionwatch/internal/eventbus"
	kit "correctionwatch/internal/transport"
	logx "correctionwatch/pkg/logx"
)

var ErrEmptyMessage = errors.New("notifier: empty message")

// Service sends messages to the configured chat with rate limiting and
// bounded retry. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log,
		bus:    bus,
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps delivery settings. In-flight sends keep the old ones.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = 20 * time.Second
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 60 * time.Second
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) policy(cfg Config, lim *rate.Limiter, timeout time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.Attempts(),
		Base:           cfg.RetryBase,
		MaxDelay:       cfg.RetryMaxDelay,
		AttemptTimeout: timeout,
		Limiter:        lim,
	}
}

func (s *Service) SendText(ctx context.Context, text string) Delivery {
	if strings.TrimSpace(text) == "" {
		return Delivery{Outcome: Failed, Err: ErrEmptyMessage}
	}
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()

	opt := &kit.SendOptions{ParseMode: cfg.ParseMode, DisablePreview: cfg.DisablePreview}
	parts := []string{text}
	if sp, ok := sender.(kit.TextSplitter); ok {
		parts = sp.SplitText(text, opt)
	}
	// A retry resumes at the first part not yet accepted.
	next := 0
	d := Retry(ctx, s.policy(cfg, lim, cfg.TextTimeout), func(c context.Context) error {
		for next < len(parts) {
			if _, err := sender.SendText(c, cfg.Target, parts[next], opt); err != nil {
				return err
			}
			next++
		}
		return nil
	})
	s.record(cfg, "text", d)
	return d
}

func (s *Service) SendImage(ctx context.Context, image []byte, caption string) Delivery {
	if len(image) == 0 {
		return Delivery{Outcome: Failed, Err: ErrEmptyMessage}
	}
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()

	opt := &kit.SendOptions{ParseMode: cfg.ParseMode}
	d := Retry(ctx, s.policy(cfg, lim, cfg.ImageTimeout), func(c context.Context) error {
		_, err := sender.SendPhoto(c, cfg.Target, image, caption, opt)
		return err
	})
	s.record(cfg, "image", d)
	return d
}

func (s *Service) record(cfg Config, kind string, d Delivery) {
	now := time.Now()
	ev := DeliveryEvent{Kind: kind, ChatID: cfg.Target.ChatID, ThreadID: cfg.Target.ThreadID, Outcome: d.Outcome, Attempts: d.Attempts, At: now}
	topic := eventbus.TopicNotifierSent
	switch {
	case d.OK():
		s.log.Debug("notification delivered", logx.String("kind", kind), logx.Int("attempts", d.Attempts))
	case d.Outcome == Unconfirmed:
		topic = eventbus.TopicNotifierFailed
		ev.Error = d.Err.Error()
		s.log.Warn("notification unconfirmed; not resending", logx.String("kind", kind), logx.Int("attempts", d.Attempts), logx.Err(d.Err))
	default:
		topic = eventbus.TopicNotifierFailed
		if d.Err != nil {
			ev.Error = d.Err.Error()
		}
		s.log.Warn("notification failed", logx.String("kind", kind), logx.Int("attempts", d.Attempts), logx.Err(d.Err))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: topic, Time: now, Data: ev})
	}
}
