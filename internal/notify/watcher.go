package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/clawstreet/clawd/internal/domain"
	"github.com/clawstreet/clawd/internal/engine"
)

// Watcher bridges market events on the signal bus to operator notifications.
// Claims and verifications always notify; trades notify only when the event
// filter allows them, since busy markets would otherwise flood the channel.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over the given bus and notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run subscribes to the event channels and blocks until the context is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range []string{engine.ChannelTrades, engine.ChannelClaims, engine.ChannelVerified} {
		g.Go(func() error { return w.watch(ctx, ch) })
	}
	return g.Wait()
}

func (w *Watcher) watch(ctx context.Context, channel string) error {
	msgs, err := w.bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgs:
			if !ok {
				return nil
			}
			w.handle(ctx, data)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, data []byte) {
	var ev engine.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.WarnContext(ctx, "malformed event", slog.String("error", err.Error()))
		return
	}

	var title, message string
	switch ev.Type {
	case "trade":
		title = fmt.Sprintf("Trade: %s %s", ev.Direction, ev.MarketID)
		message = fmt.Sprintf("%s %s %d claws (gross %s, supply now %d)",
			ev.Wallet, ev.Direction, ev.Amount, ev.Gross, ev.SupplyAfter)
	case "claim":
		title = fmt.Sprintf("Fees claimed: %s", ev.MarketID)
		message = fmt.Sprintf("%s claimed %s", ev.Wallet, ev.Claimed)
	case "verified":
		title = fmt.Sprintf("Market verified: %s", ev.MarketID)
		message = fmt.Sprintf("owner %s", ev.Wallet)
	default:
		return
	}

	if err := w.notifier.Notify(ctx, ev.Type, title, message); err != nil {
		w.logger.WarnContext(ctx, "notify failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
