// internal/bus/bridge.go
package bus

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/messages"
)

// envelope is the wire form of a Message on the Redis channel.
type envelope struct {
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Type      messages.MessageType `json:"type"`
	Origin    string               `json:"origin"`
	Payload   json.RawMessage      `json:"payload"`
}

// Bridge relays messages between a local Bus and a Redis pub/sub channel so
// that contexts living in separate processes can talk. Redis pub/sub keeps the
// bus contract: messages published while nobody listens are lost.
type Bridge struct {
	bus     *Bus
	client  redis.UniversalClient
	channel string
	types   []messages.MessageType
	logger  *zap.Logger
	ready   chan struct{}
}

// NewBridge creates a bridge for the given message types. With no types every
// known type is relayed.
func NewBridge(b *Bus, client redis.UniversalClient, channel string, logger *zap.Logger, types ...messages.MessageType) *Bridge {
	if len(types) == 0 {
		types = messages.AllTypes
	}
	return &Bridge{
		bus:     b,
		client:  client,
		channel: channel,
		types:   types,
		logger:  logger.Named("bridge").With(zap.String("channel", channel)),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the Redis subscription is confirmed.
func (br *Bridge) Ready() <-chan struct{} { return br.ready }

// Run relays until ctx is cancelled or the local bus shuts down.
func (br *Bridge) Run(ctx context.Context) error {
	pubsub := br.client.Subscribe(ctx, br.channel)
	defer pubsub.Close()

	// Wait for confirmation so nothing published after Ready is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", br.channel, err)
	}
	remote := pubsub.Channel()

	local, unsubscribe := br.bus.Subscribe(br.types...)
	defer unsubscribe()

	close(br.ready)
	br.logger.Info("Bus bridge running.")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-local:
			if !ok {
				return nil
			}
			// Only relay what was posted here; injected messages already
			// travelled over the channel once.
			if msg.Origin != br.bus.Origin() {
				continue
			}
			if err := br.publish(ctx, msg); err != nil {
				br.logger.Warn("Failed to relay message to Redis.", zap.String("type", string(msg.Type)), zap.Error(err))
			}
		case rm, ok := <-remote:
			if !ok {
				return nil
			}
			br.deliver(ctx, rm.Payload)
		}
	}
}

func (br *Bridge) publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		ID:        msg.ID,
		Timestamp: msg.Timestamp,
		Type:      msg.Type,
		Origin:    msg.Origin,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return br.client.Publish(ctx, br.channel, data).Err()
}

func (br *Bridge) deliver(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		br.logger.Warn("Discarding malformed bridge message.", zap.Error(err))
		return
	}
	if env.Origin == br.bus.Origin() {
		return
	}
	if !br.relays(env.Type) {
		return
	}

	payload, err := messages.Decode(env.Type, env.Payload)
	if err != nil {
		br.logger.Warn("Discarding undecodable bridge message.", zap.String("type", string(env.Type)), zap.Error(err))
		return
	}

	err = br.bus.Inject(ctx, Message{
		ID:        env.ID,
		Timestamp: env.Timestamp,
		Type:      env.Type,
		Payload:   payload,
		Origin:    env.Origin,
	})
	if err != nil {
		br.logger.Debug("Failed to inject bridged message.", zap.Error(err))
	}
}

func (br *Bridge) relays(t messages.MessageType) bool {
	for _, known := range br.types {
		if known == t {
			return true
		}
	}
	return false
}
