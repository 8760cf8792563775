package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/IBM/sarama"
)

// Processes the raw value of one consumed message.
//
// A nil error marks the message consumed. An error retries the same message, with backoff, until it succeeds or the session ends; later messages on the partition wait behind it, so an offset is never committed past an unprocessed message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, message []byte) error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler MessageHandler
	Logger  *slog.Logger
	// delay before retry number attempt (starting at 1); defaults to retryBackoff
	RetryBackoff func(attempt int) time.Duration
}

func retryBackoff(attempt int) time.Duration {
	if attempt < 8 {
		return time.Duration(1<<attempt)*100*time.Millisecond + time.Duration(rand.Intn(250))*time.Millisecond
	}
	return 30 * time.Second
}

// Kafka consumer group member which feeds every message on a single topic to a MessageHandler.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	topic   string
	groupID string
	backoff func(attempt int) time.Duration
	logger  *slog.Logger
}

func NewConsumer(config ConsumerConfig) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka consumer group: %w", err)
	}
	return NewConsumerFromGroup(group, config), nil
}

func NewConsumerFromGroup(group sarama.ConsumerGroup, config ConsumerConfig) *Consumer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := config.RetryBackoff
	if backoff == nil {
		backoff = retryBackoff
	}
	return &Consumer{
		group:   group,
		handler: config.Handler,
		topic:   config.Topic,
		groupID: config.GroupID,
		backoff: backoff,
		logger:  logger.With("topic", config.Topic, "group", config.GroupID),
	}
}

// Consumes until the context is cancelled. Consume is called in a loop because it returns at every rebalance.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("kafka consumer error", "err", err)
		}
	}()

	handler := &consumerGroupHandler{
		handler: c.handler,
		backoff: c.backoff,
		logger:  c.logger,
	}
	c.logger.Info("starting kafka consumer")
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("kafka consume failed", "err", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	c.logger.Info("closing kafka consumer")
	return c.group.Close()
}

// implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	handler MessageHandler
	backoff func(attempt int) time.Duration
	logger  *slog.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			messagesReceived.Inc()
			h.logger.Debug("received kafka message", "partition", message.Partition, "offset", message.Offset, "key", string(message.Key))

			if !h.handleUntilDone(session, message) {
				return nil
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// Returns false if the session ended before the message was handled. The message is then left unmarked, and the next session resumes from it.
func (h *consumerGroupHandler) handleUntilDone(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) bool {
	ctx := session.Context()
	for attempt := 1; ; attempt++ {
		err := h.handler.HandleMessage(ctx, message.Value)
		if err == nil {
			return true
		}
		messagesFailed.Inc()
		delay := h.backoff(attempt)
		h.logger.Warn("failed to handle kafka message, will retry", "partition", message.Partition, "offset", message.Offset, "attempt", attempt, "delay", delay, "err", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
	}
}

// Generic MessageHandler which decodes JSON in to T, validates, and processes it.
//
// Undecodable and invalid messages are logged and skipped, since retrying can't fix them. Processing errors are returned, so the message is retried.
type TypedHandler[T any] struct {
	Validate func(msg *T) error
	Process  func(ctx context.Context, msg *T) error
	Logger   *slog.Logger
}

func (h *TypedHandler[T]) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *TypedHandler[T]) HandleMessage(ctx context.Context, message []byte) error {
	var msg T
	if err := json.Unmarshal(message, &msg); err != nil {
		messagesSkipped.Inc()
		h.logger().Warn("skipping undecodable message", "err", err)
		return nil
	}

	if h.Validate != nil {
		if err := h.Validate(&msg); err != nil {
			messagesSkipped.Inc()
			h.logger().Warn("skipping invalid message", "err", err)
			return nil
		}
	}

	return h.Process(ctx, &msg)
}
