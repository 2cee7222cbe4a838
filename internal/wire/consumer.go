package wire

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/renxuetao/cskefu/internal/metrics"
	"github.com/rs/zerolog"
)

// Consumer subscribes to the voice gateway's signaling channel and feeds
// decoded events to the state machine. Messages on one subscription are
// processed one at a time; tenant shards run one Consumer each.
type Consumer struct {
	rdb     *redis.Client
	channel string
	machine *Machine
	logger  zerolog.Logger
}

// NewConsumer creates a signaling consumer for one pub/sub channel.
func NewConsumer(rdb *redis.Client, channel string, machine *Machine, logger zerolog.Logger) *Consumer {
	return &Consumer{
		rdb:     rdb,
		channel: channel,
		machine: machine,
		logger:  logger,
	}
}

// Start subscribes and consumes until the context is cancelled. One
// malformed or failing event never stops the loop.
func (c *Consumer) Start(ctx context.Context) {
	sub := c.rdb.Subscribe(ctx, c.channel)
	defer sub.Close()

	c.logger.Info().Str("channel", c.channel).Msg("signaling consumer started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("channel", c.channel).Msg("signaling consumer stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				c.logger.Warn().Str("channel", c.channel).Msg("subscription channel closed")
				return
			}
			c.consume([]byte(msg.Payload))
		}
	}
}

// consume decodes and handles a single message, classifying failures by
// the engine error taxonomy. All failures are terminal for the event.
func (c *Consumer) consume(payload []byte) {
	event, err := Decode(payload)
	if err != nil {
		metrics.Get().RecordEventDropped()
		c.logger.Error().Err(err).Str("payload", string(payload)).Msg("dropping undecodable signaling message")
		return
	}

	metrics.Get().RecordEventConsumed(int(event.Kind))
	if err := c.machine.Handle(event); err != nil {
		metrics.Get().RecordEventFailed()
		log := c.logger.Error()
		switch {
		case errors.Is(err, ErrValidation):
			log = c.logger.Warn()
		case errors.Is(err, ErrAmbiguousDirectory), errors.Is(err, ErrUnknownReference):
			// Fatal for the event; no partial state was committed.
		}
		log.Err(err).
			Int("type", int(event.Kind)).
			Str("call_id", event.CallID).
			Str("channel", event.Channel).
			Msg("signaling event failed")
	}
}
