package storage

import (
	"context"
	"time"

	"correctionwatch/internal/eventbus"
	"correctionwatch/internal/monitor"
	logx "correctionwatch/pkg/logx"
)

// Record consumes monitor events from bus and appends them to st until ctx
// is done. Write failures are logged and skipped.
func Record(ctx context.Context, bus eventbus.Bus, st Store, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	ch, unsub := bus.Subscribe(64, eventbus.TopicMonitorEvent)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			// Events already queued were dispatched before shutdown began.
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return ctx.Err()
					}
					appendEvent(context.WithoutCancel(ctx), st, ev, log)
				default:
					return ctx.Err()
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			appendEvent(ctx, st, ev, log)
		}
	}
}

func appendEvent(ctx context.Context, st Store, ev eventbus.Event, log logx.Logger) {
	rec, ok := ev.Data.(monitor.EventRecord)
	if !ok {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err := st.Append(wctx, EntryFromRecord(rec))
	cancel()
	if err != nil {
		log.Warn("journal append failed", logx.String("kind", string(rec.Kind)), logx.Err(err))
	}
}

func EntryFromRecord(r monitor.EventRecord) Entry {
	return Entry{
		At:        r.At,
		Kind:      string(r.Kind),
		Value:     r.Value,
		Detail:    r.Detail,
		Delivered: r.Delivered,
		Attempts:  r.Attempts,
		Error:     r.Error,
	}
}
