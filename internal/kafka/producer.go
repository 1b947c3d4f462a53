package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"ms-reviews/internal/config"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/models"

	"github.com/segmentio/kafka-go"
)

// Writer is the part of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer Writer
	Topics config.TopicConfig
	Logger *logger.Logger
}

// NewProducer creates a producer whose messages carry their own topic, so one
// writer serves every event type.
func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

func (p *Producer) topicFor(t models.SlotEventType) string {
	switch t {
	case models.SlotEventReserved:
		return p.Topics.SlotReserved
	case models.SlotEventCancelled:
		return p.Topics.SlotCancelled
	case models.SlotEventCompleted:
		return p.Topics.SlotCompleted
	case models.SlotEventPayment:
		return p.Topics.SubmissionPayment
	case models.SlotEventSynced:
		return p.Topics.QuotaSynchronized
	}
	return p.Topics.SlotUpdated
}

// PublishSlotEvent streams a slot change, keyed by campaign so a campaign's events
// stay ordered on one partition.
func (p *Producer) PublishSlotEvent(ctx context.Context, ev models.SlotChangeEvent) error {
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	topic := p.topicFor(ev.Type)
	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("%s slot=%d campaign=%d", ev.Type, ev.SlotID, ev.CampaignID))

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(ev.CampaignID, 10)),
		Value: msgBytes,
	})
}

// PublishAttachmentsRemoved tells the storage service which uploads to delete.
func (p *Producer) PublishAttachmentsRemoved(ctx context.Context, ev models.AttachmentsRemovedEvent) error {
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.Logger.LogKafka("PUBLISH", p.Topics.AttachmentsRemoved, fmt.Sprintf("%d urls from submission %s", len(ev.URLs), ev.SubmissionID))

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: p.Topics.AttachmentsRemoved,
		Key:   []byte(ev.SubmissionID),
		Value: msgBytes,
	})
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
