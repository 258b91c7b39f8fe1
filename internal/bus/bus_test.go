package bus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codebuddy-cli/internal/bus"
	"github.com/xkilldash9x/codebuddy-cli/internal/messages"
)

func newTestBus(t *testing.T, bufferSize int) *bus.Bus {
	return bus.New(zaptest.NewLogger(t), bufferSize)
}

func TestBus_PostDelivers(t *testing.T) {
	b := newTestBus(t, 4)
	defer b.Shutdown()

	ch, unsubscribe := b.Subscribe(messages.TypeProblemStart)
	defer unsubscribe()

	payload := messages.ProblemStart{Description: "Two Sum"}
	require.NoError(t, b.Post(context.Background(), messages.TypeProblemStart, payload))

	select {
	case msg := <-ch:
		assert.Equal(t, messages.TypeProblemStart, msg.Type)
		assert.Equal(t, payload, msg.Payload)
		assert.Equal(t, b.Origin(), msg.Origin)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestBus_PostWithoutSubscriberIsDropped(t *testing.T) {
	b := newTestBus(t, 4)
	defer b.Shutdown()

	require.NoError(t, b.Post(context.Background(), messages.TypeSubmissionCode, messages.SubmissionCode{Code: "x"}))

	// A late subscriber never sees the earlier message.
	ch, unsubscribe := b.Subscribe(messages.TypeSubmissionCode)
	defer unsubscribe()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected late delivery: %+v", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_PostNeverBlocksOnFullSubscriber(t *testing.T) {
	b := newTestBus(t, 1)
	defer b.Shutdown()

	ch, unsubscribe := b.Subscribe(messages.TypeSubmissionResult)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = b.Post(context.Background(), messages.TypeSubmissionResult, messages.SubmissionResult{Result: messages.ResultError})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post blocked on a full subscriber")
	}

	// Only the buffered message survives.
	assert.Len(t, ch, 1)
}

func TestBus_PostHonoursCancelledContext(t *testing.T) {
	b := newTestBus(t, 1)
	defer b.Shutdown()
	ch, unsubscribe := b.Subscribe(messages.TypeProblemStart)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Post(ctx, messages.TypeProblemStart, messages.ProblemStart{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, ch, 0)
}

func TestBus_SubscriberOnlyReceivesItsTypes(t *testing.T) {
	b := newTestBus(t, 4)
	defer b.Shutdown()

	learn, unsubLearn := b.Subscribe(messages.TypeOpenLearnOverlay)
	defer unsubLearn()
	both, unsubBoth := b.Subscribe(messages.TypeOpenLearnOverlay, messages.TypeOpenOptimalOverlay)
	defer unsubBoth()

	ctx := context.Background()
	require.NoError(t, b.Post(ctx, messages.TypeOpenOptimalOverlay, messages.OpenOptimalOverlay{ProblemTitle: "Two Sum"}))
	require.NoError(t, b.Post(ctx, messages.TypeOpenLearnOverlay, messages.OpenLearnOverlay{}))

	assert.Len(t, learn, 1)
	assert.Len(t, both, 2)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t, 4)
	defer b.Shutdown()

	ch, unsubscribe := b.Subscribe(messages.TypeProblemStart)
	assert.Equal(t, 1, b.SubscriberCount(messages.TypeProblemStart))

	unsubscribe()
	unsubscribe() // idempotent

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.SubscriberCount(messages.TypeProblemStart))
	assert.NoError(t, b.Post(context.Background(), messages.TypeProblemStart, messages.ProblemStart{}))
}

func TestBus_Shutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := newTestBus(t, 2)
	var wg sync.WaitGroup
	const numSubscribers = 5
	for i := 0; i < numSubscribers; i++ {
		ch, _ := b.Subscribe(messages.TypeSubmissionResult, messages.TypeSubmissionCode)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
	}

	for i := 0; i < 20; i++ {
		_ = b.Post(context.Background(), messages.TypeSubmissionCode, messages.SubmissionCode{Code: "x"})
	}

	b.Shutdown()
	b.Shutdown()
	wg.Wait()

	err := b.Post(context.Background(), messages.TypeSubmissionCode, messages.SubmissionCode{})
	assert.ErrorIs(t, err, bus.ErrShutdown)

	ch, unsubscribe := b.Subscribe(messages.TypeProblemStart)
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok, "subscribing after shutdown yields a closed channel")
}

func TestBus_InjectKeepsOrigin(t *testing.T) {
	b := newTestBus(t, 1)
	defer b.Shutdown()
	ch, unsubscribe := b.Subscribe(messages.TypeSubmissionCode)
	defer unsubscribe()

	require.NoError(t, b.Inject(context.Background(), bus.Message{
		Type:    messages.TypeSubmissionCode,
		Payload: messages.SubmissionCode{Code: "y"},
		Origin:  "elsewhere",
	}))

	msg := <-ch
	assert.Equal(t, "elsewhere", msg.Origin)
	assert.NotEmpty(t, msg.ID)
}
