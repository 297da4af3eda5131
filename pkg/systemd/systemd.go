// Package systemd speaks the sd_notify protocol for Type=notify units.
// Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "correctionwatch/pkg/logx"
)

// Notifier sends service state to the service manager.
type Notifier struct {
	enabled bool
	log     logx.Logger
	notify  func(state string) (bool, error)
}

func New(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		enabled: enabled,
		log:     log,
		notify:  func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *Notifier) Ready()               { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping()            { n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Status(status string) { n.send("STATUS=" + status) }

// Watchdog pings the service manager at half the configured WatchdogSec for
// as long as healthy reports true. It returns immediately when the unit has
// no watchdog.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) error {
	if n == nil || !n.enabled {
		return nil
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	return n.watchdogLoop(ctx, interval/2, healthy)
}

func (n *Notifier) watchdogLoop(ctx context.Context, every time.Duration, healthy func() bool) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				// Withholding the ping lets systemd restart a wedged loop.
				n.log.Warn("watchdog ping withheld: monitor loop is stale")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
