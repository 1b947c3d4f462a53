package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/models"

	"github.com/segmentio/kafka-go"
)

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CampaignHandler interface {
	HandleCampaignUpdated(ctx context.Context, ev models.CampaignUpdatedEvent) error
}

const (
	defaultRetryBackoff = time.Second
	maxRetryBackoff     = 30 * time.Second
)

type Consumer struct {
	Reader  Reader
	Handler CampaignHandler
	Logger  *logger.Logger
	// RetryBackoff is the first wait before a failed update is applied again.
	RetryBackoff time.Duration
}

// NewConsumer creates a consumer of campaign configuration changes for the given
// topic and group.
func NewConsumer(brokers []string, topic, groupID string, handler CampaignHandler, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Handler: handler, Logger: log}
}

// Run consumes until ctx is cancelled. A message is committed once it has been
// applied, or once it is known that it never can be: undecodable messages and
// updates for unknown campaigns or invalid values are skipped. Any other failure
// is retried on the same message, without committing, until it applies.
func (c *Consumer) Run(ctx context.Context) error {
	c.Logger.LogKafka("CONSUME", "", "campaign update consumer started")
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("fetch message: %v", err))
			return err
		}

		if !c.apply(ctx, msg) {
			return nil
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("commit offset %d: %v", msg.Offset, err))
		}
	}
}

// apply handles msg until it is done with it. It returns false when ctx was
// cancelled first, in which case msg must not be committed.
func (c *Consumer) apply(ctx context.Context, msg kafka.Message) bool {
	backoff := c.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	for {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}
		c.Logger.Error("KAFKA", fmt.Sprintf("offset %d not applied, retrying in %s: %v", msg.Offset, backoff, err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

// handle returns an error only for failures worth retrying.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var ev models.CampaignUpdatedEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.Logger.Warn("KAFKA", fmt.Sprintf("skipping undecodable message at offset %d: %v", msg.Offset, err))
		return nil
	}

	c.Logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("campaign %d updated", ev.CampaignID))
	err := c.Handler.HandleCampaignUpdated(ctx, ev)
	if common.IsTransient(err) {
		err = c.Handler.HandleCampaignUpdated(ctx, ev)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrCampaignNotFound):
		c.Logger.Warn("KAFKA", fmt.Sprintf("campaign %d from update event does not exist", ev.CampaignID))
		return nil
	case errors.Is(err, common.ErrValidationFailed):
		c.Logger.Warn("KAFKA", fmt.Sprintf("skipping invalid update for campaign %d: %v", ev.CampaignID, err))
		return nil
	}
	return fmt.Errorf("apply update for campaign %d: %w", ev.CampaignID, err)
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
