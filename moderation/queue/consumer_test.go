package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
)

// embeds the interface so methods the consumer doesn't use need no stubs
type testSession struct {
	sarama.ConsumerGroupSession
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *testSession) Context() context.Context {
	return s.ctx
}

func (s *testSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *testSession) Marked() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64{}, s.marked...)
}

type testClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *testClaim) Messages() <-chan *sarama.ConsumerMessage {
	return c.messages
}

func newTestClaim(offsets ...int64) *testClaim {
	ch := make(chan *sarama.ConsumerMessage, len(offsets))
	for _, off := range offsets {
		ch <- &sarama.ConsumerMessage{Topic: "submissions", Offset: off, Value: []byte{byte(off)}}
	}
	close(ch)
	return &testClaim{messages: ch}
}

// fails each message value a configured number of times before succeeding; -1 fails forever
type countingHandler struct {
	mu       sync.Mutex
	failures map[byte]int
	seen     []byte
	onCall   func(calls int)
}

func (h *countingHandler) HandleMessage(ctx context.Context, message []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := message[0]
	h.seen = append(h.seen, v)
	if h.onCall != nil {
		h.onCall(len(h.seen))
	}
	if n := h.failures[v]; n != 0 {
		if n > 0 {
			h.failures[v] = n - 1
		}
		return errors.New("publish failed")
	}
	return nil
}

func (h *countingHandler) Seen() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte{}, h.seen...)
}

func noBackoff(int) time.Duration { return 0 }

func TestConsumeClaimRetriesInPlace(t *testing.T) {
	assert := assert.New(t)

	handler := &countingHandler{failures: map[byte]int{10: 2}}
	cgh := &consumerGroupHandler{handler: handler, backoff: noBackoff, logger: slog.Default()}
	session := &testSession{ctx: context.Background()}

	assert.NoError(cgh.ConsumeClaim(session, newTestClaim(10, 11)))

	// the failed message is retried before the next one is touched, and nothing is marked out of order
	assert.Equal([]byte{10, 10, 10, 11}, handler.Seen())
	assert.Equal([]int64{10, 11}, session.Marked())
}

func TestConsumeClaimSessionEndsDuringRetry(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := &countingHandler{
		failures: map[byte]int{10: -1},
		onCall: func(calls int) {
			if calls == 3 {
				cancel()
			}
		},
	}
	cgh := &consumerGroupHandler{
		handler: handler,
		backoff: func(int) time.Duration { return time.Millisecond },
		logger:  slog.Default(),
	}
	session := &testSession{ctx: ctx}

	assert.NoError(cgh.ConsumeClaim(session, newTestClaim(10, 11)))

	// offset 10 stays uncommitted, so the next session starts from it
	assert.Empty(session.Marked())
	assert.NotContains(handler.Seen(), byte(11))
}

type testGroup struct {
	sarama.ConsumerGroup
	offsets  []int64
	sessions []*testSession
	errs     chan error
	closed   bool
}

func (g *testGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	session := &testSession{ctx: ctx}
	g.sessions = append(g.sessions, session)
	if err := handler.Setup(session); err != nil {
		return err
	}
	if err := handler.ConsumeClaim(session, newTestClaim(g.offsets...)); err != nil {
		return err
	}
	g.offsets = nil
	if err := handler.Cleanup(session); err != nil {
		return err
	}
	// nothing more to deliver; behave like an idle session until shutdown
	<-ctx.Done()
	return ctx.Err()
}

func (g *testGroup) Errors() <-chan error {
	return g.errs
}

func (g *testGroup) Close() error {
	g.closed = true
	close(g.errs)
	return nil
}

func TestConsumerRun(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &countingHandler{
		failures: map[byte]int{2: 1},
		onCall: func(calls int) {
			if calls == 4 {
				cancel()
			}
		},
	}
	group := &testGroup{offsets: []int64{1, 2, 3}, errs: make(chan error)}
	consumer := NewConsumerFromGroup(group, ConsumerConfig{
		Topic:        "submissions",
		GroupID:      "contentcheck",
		Handler:      handler,
		RetryBackoff: noBackoff,
	})

	assert.NoError(consumer.Run(ctx))
	assert.Equal([]byte{1, 2, 2, 3}, handler.Seen())
	assert.Len(group.sessions, 1)

	assert.NoError(consumer.Close())
	assert.True(group.closed)
}

func TestRetryBackoff(t *testing.T) {
	assert := assert.New(t)

	for attempt := 1; attempt < 20; attempt++ {
		d := retryBackoff(attempt)
		assert.Greater(d, time.Duration(0))
		assert.LessOrEqual(d, 30*time.Second)
	}
	assert.Less(retryBackoff(1), retryBackoff(5))
}
