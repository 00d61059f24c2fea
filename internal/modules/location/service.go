// README: Courier feed polls the realtime database and emits reported positions as driver updates.
package location

import (
	"context"
	"log/slog"
	"time"

	"ordertrack/internal/modules/pushchan"
	"ordertrack/internal/types"
)

// Reader is the read side of Store.
type Reader interface {
	Latest(ctx context.Context, orderID types.ID) (*Fix, error)
}

type Feed struct {
	reader   Reader
	orderID  types.ID
	interval time.Duration
	log      *slog.Logger
}

func NewFeed(reader Reader, orderID types.ID, interval time.Duration, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Feed{reader: reader, orderID: orderID, interval: interval, log: logger}
}

// Run polls until ctx is cancelled. Each new fix becomes a DriverUpdateEvent; read errors
// are logged and the next poll proceeds.
func (f *Feed) Run(ctx context.Context, out chan<- pushchan.Event) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var last int64 = -1
	for {
		if ev, ok := f.poll(ctx, &last); ok {
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *Feed) poll(ctx context.Context, last *int64) (pushchan.Event, bool) {
	fix, err := f.reader.Latest(ctx, f.orderID)
	if err != nil {
		if ctx.Err() == nil {
			f.log.Warn("courier feed read failed", slog.String("order_id", string(f.orderID)), slog.String("error", err.Error()))
		}
		return nil, false
	}
	if fix == nil || fix.Timestamp == *last {
		return nil, false
	}
	*last = fix.Timestamp
	f.log.Debug("courier fix received",
		slog.String("order_id", string(f.orderID)), slog.Duration("age", time.Since(fix.RecordedAt())))
	return toEvent(f.orderID, *fix), true
}

func toEvent(orderID types.ID, fix Fix) pushchan.DriverUpdateEvent {
	pos := fix.Point()
	ev := pushchan.DriverUpdateEvent{OrderID: orderID, Position: &pos}
	if fix.TimeText != "" {
		ev.ETAText = &fix.TimeText
	}
	if fix.DistanceText != "" {
		ev.DistanceText = &fix.DistanceText
	}
	if fix.Message != "" {
		ev.Message = &fix.Message
	}
	return ev
}
