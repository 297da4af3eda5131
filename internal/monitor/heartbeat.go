package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"correctionwatch/internal/notifier"
	logx "correctionwatch/pkg/logx"
)

var heartbeatParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseHeartbeat validates a heartbeat cron spec. Empty disables it.
func ParseHeartbeat(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	sched, err := heartbeatParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("heartbeat %q: %w", spec, err)
	}
	return sched, nil
}

// StatusSource is implemented by *Monitor.
type StatusSource interface {
	Status() Status
}

// Heartbeat periodically sends a summary of the monitor's last status, so
// silence can be told apart from a dead process.
type Heartbeat struct {
	spec   string
	loc    *time.Location
	src    StatusSource
	notify Notifier
	format Formatter
	log    logx.Logger
	now    func() time.Time
}

func NewHeartbeat(spec string, loc *time.Location, src StatusSource, n Notifier, fm Formatter, log logx.Logger) (*Heartbeat, error) {
	if _, err := ParseHeartbeat(spec); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Heartbeat{
		spec:   strings.TrimSpace(spec),
		loc:    loc,
		src:    src,
		notify: n,
		format: fm,
		log:    log,
		now:    time.Now,
	}, nil
}

func (h *Heartbeat) Enabled() bool { return h != nil && h.spec != "" }

// Run fires Beat on the schedule until ctx is done.
func (h *Heartbeat) Run(ctx context.Context) error {
	if !h.Enabled() {
		<-ctx.Done()
		return ctx.Err()
	}
	c := cron.New(cron.WithParser(heartbeatParser), cron.WithLocation(h.loc))
	if _, err := c.AddFunc(h.spec, func() { h.Beat(ctx) }); err != nil {
		return err
	}
	c.Start()
	h.log.Info("heartbeat scheduled", logx.String("spec", h.spec), logx.String("tz", h.loc.String()))

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// Beat sends one status summary.
func (h *Heartbeat) Beat(ctx context.Context) notifier.Delivery {
	st := h.src.Status()
	d := h.notify.SendText(ctx, h.format.Heartbeat(st, h.now()))
	if !d.OK() {
		h.log.Warn("heartbeat not delivered", logx.Err(d.Err))
	}
	return d
}
