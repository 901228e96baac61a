// Package scheduler runs server-originated periodic work against the
// broker. A Heartbeat is the only job today: a cron-scheduled
// broadcast with no originating client role, so it calls
// Broker.Broadcast directly rather than going through Validate.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/relaybus/internal/broker"
	"github.com/nextlevelbuilder/relaybus/internal/validate"
)

const tickInterval = time.Second

// Heartbeat broadcasts an empty payload on Channel whenever Expr is
// due, as gronx evaluates it: a standard five-field expression, or a
// six-field one whose leading field is seconds.
type Heartbeat struct {
	Expr    string
	Channel string

	broker *broker.Broker
	logger *slog.Logger
	gron   gronx.Gronx
}

// NewHeartbeat constructs a Heartbeat bound to b. logger may be nil.
func NewHeartbeat(expr, channel string, b *broker.Broker, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{
		Expr:    expr,
		Channel: channel,
		broker:  b,
		logger:  logger,
		gron:    gronx.New(),
	}
}

// Run blocks, checking the cron expression once per second and
// broadcasting on Channel each time it is due, until ctx is canceled. A malformed expression is logged once
// and Run returns immediately rather than spinning forever on a job
// that can never fire.
func (h *Heartbeat) Run(ctx context.Context) {
	if !h.gron.IsValid(h.Expr) {
		h.logger.Error("scheduler: invalid heartbeat cron expression", "expr", h.Expr)
		return
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := h.gron.IsDue(h.Expr, now)
			if err != nil {
				h.logger.Warn("scheduler: heartbeat cron evaluation failed", "error", err)
				continue
			}
			if !due {
				continue
			}
			h.broker.Broadcast(h.Channel, validate.Payload{})
			h.logger.Debug("scheduler: heartbeat broadcast", "channel", h.Channel)
		}
	}
}
