package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tipjar-social/contentcheck/moderation"

	"github.com/IBM/sarama"
	"github.com/ipfs/go-cid"
)

// Outcome of moderating one submission, as published for downstream consumers
type VerdictMessage struct {
	DirectoryCID string             `json:"directoryCID"`
	Author       string             `json:"author"`
	Verdict      moderation.Verdict `json:"verdict"`
	Message      string             `json:"message"`
	Labels       []string           `json:"labels"`
	Verified     bool               `json:"verified"`
	Confidence   float64            `json:"confidence"`
	CheckedAt    string             `json:"checkedAt"`
}

func NewVerdictMessage(sub *moderation.Submission, report *moderation.Report, now time.Time) VerdictMessage {
	return VerdictMessage{
		DirectoryCID: sub.DirectoryCID,
		Author:       sub.Author,
		Verdict:      report.Verdict,
		Message:      report.Verdict.Message(),
		Labels:       report.Labels,
		Verified:     report.Verified,
		Confidence:   report.Confidence,
		CheckedAt:    now.UTC().Format(time.RFC3339),
	}
}

type VerdictPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewVerdictPublisher(brokers []string, topic string) (*VerdictPublisher, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V3_6_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return NewVerdictPublisherFromProducer(producer, topic), nil
}

func NewVerdictPublisherFromProducer(producer sarama.SyncProducer, topic string) *VerdictPublisher {
	return &VerdictPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publishes the message keyed by directory CID, so verdicts for the same submission stay ordered within a partition.
func (p *VerdictPublisher) Publish(ctx context.Context, msg VerdictMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.DirectoryCID),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("publishing verdict: %w", err)
	}
	verdictsPublished.WithLabelValues(msg.Verdict.String()).Inc()
	return nil
}

func (p *VerdictPublisher) Close() error {
	return p.producer.Close()
}

// Checks what the pipeline can't: that the directory locator is present and parses as a CID.
func ValidateSubmission(sub *moderation.Submission) error {
	if sub.DirectoryCID == "" {
		return errors.New("submission missing directoryCID")
	}
	if _, err := cid.Decode(sub.DirectoryCID); err != nil {
		return fmt.Errorf("invalid directoryCID %q: %w", sub.DirectoryCID, err)
	}
	return nil
}

// Builds a handler which moderates each consumed submission and publishes the verdict. Publish failures are returned, so the submission is retried in place and the offset isn't committed past it.
func NewSubmissionHandler(checker *moderation.Checker, publisher *VerdictPublisher, logger *slog.Logger) *TypedHandler[moderation.Submission] {
	return &TypedHandler[moderation.Submission]{
		Validate: ValidateSubmission,
		Process: func(ctx context.Context, sub *moderation.Submission) error {
			report := checker.Check(ctx, sub)
			return publisher.Publish(ctx, NewVerdictMessage(sub, report, time.Now()))
		},
		Logger: logger,
	}
}
