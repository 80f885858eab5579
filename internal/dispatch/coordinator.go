// Package dispatch fans one logical notification out to resolved targets
// and aggregates per-target outcomes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// previewLimit bounds notification body length so payloads stay small and
// full message content never lands in a system notification tray.
const previewLimit = 80

const defaultWidth = 8

// Coordinator routes each target to the gateway for its platform. It performs
// no resolution and no authorization; it trusts its input list completely.
type Coordinator struct {
	gateways map[relay.Platform]relay.Gateway
	store    relay.Store // may be nil; used only for stale-token cleanup
	width    int
	logger   *slog.Logger
}

// NewCoordinator creates the fan-out engine. width bounds concurrent sends;
// store enables deletion of delivery tokens the transport reports as dead.
func NewCoordinator(gateways map[relay.Platform]relay.Gateway, store relay.Store, width int, logger *slog.Logger) *Coordinator {
	if width <= 0 {
		width = defaultWidth
	}
	return &Coordinator{
		gateways: gateways,
		store:    store,
		width:    width,
		logger:   logger.With("component", "DispatchCoordinator"),
	}
}

// Dispatch builds a payload per target and sends them with bounded
// concurrency. A failed send is counted and logged, never raised: one bad
// token must not abort delivery to the rest. The report always carries
// exactly one outcome per input target.
func (c *Coordinator) Dispatch(ctx context.Context, targets []relay.DispatchTarget, build func(relay.DispatchTarget) relay.NotificationPayload) relay.DispatchReport {
	outcomes := make([]relay.DispatchOutcome, len(targets))
	sem := make(chan struct{}, c.width)
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target relay.DispatchTarget) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Each goroutine writes only its own slot.
			outcomes[i] = c.sendOne(ctx, target, build)
		}(i, target)
	}
	wg.Wait()

	report := relay.DispatchReport{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Delivered() {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	return report
}

func (c *Coordinator) sendOne(ctx context.Context, target relay.DispatchTarget, build func(relay.DispatchTarget) relay.NotificationPayload) relay.DispatchOutcome {
	payload := build(target)
	payload.Body = preview(payload.Body)

	gateway, ok := c.gateways[target.Platform]
	if !ok {
		err := fmt.Errorf("no gateway configured for platform %q", target.Platform)
		c.logger.Warn("send skipped", "recipient_id", target.RecipientID, "err", err)
		return relay.DispatchOutcome{Target: target, Err: err}
	}

	deliveryID, err := gateway.Send(ctx, target, payload)
	if err != nil {
		c.logger.Warn("send failed",
			"recipient_id", target.RecipientID,
			"platform", target.Platform,
			"err", err,
		)
		if errors.Is(err, relay.ErrStaleToken) {
			c.cleanupStaleToken(ctx, target)
		}
		return relay.DispatchOutcome{Target: target, Err: err}
	}

	return relay.DispatchOutcome{Target: target, DeliveryID: deliveryID}
}

// cleanupStaleToken removes a token the transport reported as dead so the
// next fan-out no longer attempts it. Best effort.
func (c *Coordinator) cleanupStaleToken(ctx context.Context, target relay.DispatchTarget) {
	if c.store == nil {
		return
	}
	device := relay.Device{Platform: target.Platform, Token: target.Token}
	if err := c.store.UnregisterDevice(ctx, target.RecipientID, device); err != nil {
		c.logger.Warn("stale token cleanup failed", "recipient_id", target.RecipientID, "err", err)
		return
	}
	c.logger.Info("stale token removed", "recipient_id", target.RecipientID, "platform", target.Platform)
}

// preview truncates s to previewLimit runes, marking the cut with an
// ellipsis.
func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit]) + "…"
}
