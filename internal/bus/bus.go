// internal/bus/bus.go
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/messages"
)

// ErrShutdown is returned by Post once the bus has been shut down.
var ErrShutdown = errors.New("message bus is shut down")

// Message is the envelope for data transmitted over the bus.
type Message struct {
	ID        string
	Timestamp time.Time
	Type      messages.MessageType
	Payload   interface{}
	// Origin names the bus instance that first accepted the message. Bridges
	// use it to avoid relaying a message back to where it came from.
	Origin string
}

// Bus is a best-effort, fire-and-forget pub/sub channel between contexts.
// Delivery is at most once per subscriber: a subscriber whose buffer is full
// misses the message, and a message with no subscriber is dropped.
type Bus struct {
	logger *zap.Logger
	origin string

	subscribers map[messages.MessageType][]chan Message
	mu          sync.RWMutex
	bufferSize  int

	shutdownOnce sync.Once
	isShutdown   bool
}

// New initializes a Bus. bufferSize is the per-subscriber queue depth.
func New(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		logger:      logger.Named("bus"),
		origin:      uuid.New().String(),
		subscribers: make(map[messages.MessageType][]chan Message),
		bufferSize:  bufferSize,
	}
}

// Origin returns the identifier stamped on messages posted to this bus.
func (b *Bus) Origin() string { return b.origin }

// Post sends a message onto the bus. It never blocks on slow subscribers.
func (b *Bus) Post(ctx context.Context, msgType messages.MessageType, payload interface{}) error {
	return b.publish(ctx, Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      msgType,
		Payload:   payload,
		Origin:    b.origin,
	})
}

// Inject delivers a message that originated elsewhere (e.g. another process)
// while keeping its id and origin.
func (b *Bus) Inject(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return b.publish(ctx, msg)
}

func (b *Bus) publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.isShutdown {
		return ErrShutdown
	}

	subscribers := b.subscribers[msg.Type]
	if len(subscribers) == 0 {
		b.logger.Debug("No listener; message dropped.", zap.String("type", string(msg.Type)), zap.String("id", msg.ID))
		return nil
	}

	b.logger.Debug("Posting message", zap.String("type", string(msg.Type)), zap.String("id", msg.ID))
	for _, ch := range subscribers {
		select {
		case ch <- msg:
		default:
			b.logger.Debug("Subscriber buffer full; message dropped.", zap.String("type", string(msg.Type)), zap.String("id", msg.ID))
		}
	}
	return nil
}

// Subscribe returns a channel receiving the given message types and an
// unsubscribe function. The channel is closed by unsubscribe or Shutdown.
func (b *Bus) Subscribe(msgTypes ...messages.MessageType) (<-chan Message, func()) {
	if len(msgTypes) == 0 {
		panic("must subscribe to at least one message type")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdown {
		closedCh := make(chan Message)
		close(closedCh)
		return closedCh, func() {}
	}

	ch := make(chan Message, b.bufferSize)
	subscribedTypes := make([]messages.MessageType, len(msgTypes))
	copy(subscribedTypes, msgTypes)

	for _, msgType := range subscribedTypes {
		b.subscribers[msgType] = append(b.subscribers[msgType], ch)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.isShutdown {
				// Shutdown already closed the channel.
				return
			}
			for _, msgType := range subscribedTypes {
				subs := b.subscribers[msgType]
				for i, subscriberCh := range subs {
					if subscriberCh == ch {
						b.subscribers[msgType] = append(subs[:i:i], subs[i+1:]...)
						break
					}
				}
				if len(b.subscribers[msgType]) == 0 {
					delete(b.subscribers, msgType)
				}
			}
			close(ch)
		})
	}

	return ch, unsubscribe
}

// SubscriberCount reports how many subscriptions currently receive msgType.
func (b *Bus) SubscriberCount(msgType messages.MessageType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[msgType])
}

// Shutdown closes every subscriber channel. Later posts fail with ErrShutdown.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.isShutdown = true
		unique := make(map[chan Message]struct{})
		for _, subs := range b.subscribers {
			for _, ch := range subs {
				unique[ch] = struct{}{}
			}
		}
		for ch := range unique {
			close(ch)
		}
		b.subscribers = make(map[messages.MessageType][]chan Message)
		b.logger.Debug("Message bus shut down.", zap.Int("closed_subscriptions", len(unique)))
	})
}
