package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/config"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

var topics = config.TopicConfig{
	SlotReserved:       "reviews.slot.reserved",
	SlotCancelled:      "reviews.slot.cancelled",
	SlotCompleted:      "reviews.slot.completed",
	SlotUpdated:        "reviews.slot.updated",
	QuotaSynchronized:  "reviews.quota.synchronized",
	SubmissionPayment:  "reviews.submission.payment",
	AttachmentsRemoved: "reviews.attachments.removed",
	CampaignUpdated:    "reviews.campaign.updated",
}

func TestProducer_RoutesByEventType(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, Topics: topics, Logger: logger.Nop()}
	ctx := context.Background()

	cases := map[models.SlotEventType]string{
		models.SlotEventReserved:   topics.SlotReserved,
		models.SlotEventCancelled:  topics.SlotCancelled,
		models.SlotEventCompleted:  topics.SlotCompleted,
		models.SlotEventUpdated:    topics.SlotUpdated,
		models.SlotEventSubmission: topics.SlotUpdated,
		models.SlotEventPayment:    topics.SubmissionPayment,
		models.SlotEventSynced:     topics.QuotaSynchronized,
	}
	for typ, want := range cases {
		w.msgs = nil
		require.NoError(t, p.PublishSlotEvent(ctx, models.SlotChangeEvent{Type: typ, CampaignID: 42, SlotID: 7}))
		require.Len(t, w.msgs, 1)
		assert.Equal(t, want, w.msgs[0].Topic, "event %s", typ)
		assert.Equal(t, "42", string(w.msgs[0].Key))

		var decoded models.SlotChangeEvent
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
		assert.Equal(t, typ, decoded.Type)
		assert.Equal(t, int64(7), decoded.SlotID)
	}
}

func TestProducer_AttachmentsRemoved(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, Topics: topics, Logger: logger.Nop()}

	ev := models.AttachmentsRemovedEvent{SubmissionID: "sub-1", SlotID: 3, URLs: []string{"a", "b"}, Timestamp: time.Now()}
	require.NoError(t, p.PublishAttachmentsRemoved(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, topics.AttachmentsRemoved, w.msgs[0].Topic)
	assert.Equal(t, "sub-1", string(w.msgs[0].Key))

	w.err = errors.New("broker down")
	assert.Error(t, p.PublishAttachmentsRemoved(context.Background(), ev))
}

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeHandler struct {
	mu       sync.Mutex
	calls    []models.CampaignUpdatedEvent
	failures []error
}

func (h *fakeHandler) HandleCampaignUpdated(_ context.Context, ev models.CampaignUpdatedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, ev)
	if len(h.failures) > 0 {
		err := h.failures[0]
		h.failures = h.failures[1:]
		return err
	}
	return nil
}

func (h *fakeHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: topics.CampaignUpdated, Offset: offset, Value: []byte(value)}
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(1, `{"campaign_id": 5, "daily_count": 2}`),
		message(2, `not json`),
		message(3, `{"campaign_id": 6}`),
	}}
	handler := &fakeHandler{failures: []error{nil, common.Transient("sync", errors.New("busy"))}}
	c := &Consumer{Reader: reader, Handler: handler, Logger: logger.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, reader.commits())
	// Campaign 6 is retried once after the transient failure.
	assert.Equal(t, 3, handler.count())
	require.NotNil(t, handler.calls[0].DailyCount)
	assert.Equal(t, 2, *handler.calls[0].DailyCount)
	assert.Equal(t, int64(6), handler.calls[2].CampaignID)
}

func TestConsumer_FailedUpdateIsRetriedBeforeCommit(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(1, `{"campaign_id": 5, "daily_count": 2}`),
		message(2, `{"campaign_id": 6}`),
	}}
	storageDown := errors.New("relation \"campaigns\" is locked")
	handler := &fakeHandler{failures: []error{storageDown, storageDown}}
	c := &Consumer{Reader: reader, Handler: handler, Logger: logger.Nop(), RetryBackoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2}, reader.commits())
	// Two failed attempts on offset 1, then one success each.
	assert.Equal(t, 4, handler.count())
	assert.Equal(t, int64(5), handler.calls[2].CampaignID)
}

func TestConsumer_FailingUpdateIsNeverCommitted(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{message(1, `{"campaign_id": 5, "daily_count": 2}`)}}
	failures := make([]error, 1000)
	for i := range failures {
		failures[i] = errors.New("insert failed")
	}
	handler := &fakeHandler{failures: failures}
	c := &Consumer{Reader: reader, Handler: handler, Logger: logger.Nop(), RetryBackoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return handler.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, reader.commits())
}

func TestConsumer_PermanentFailuresAreSkipped(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(1, `{"campaign_id": 404}`),
		message(2, `{"campaign_id": 5, "daily_count": 99}`),
	}}
	invalid := (&common.ValidationError{}).Add("daily_count", "must not exceed total slots (5)")
	handler := &fakeHandler{failures: []error{common.ErrCampaignNotFound, invalid}}
	c := &Consumer{Reader: reader, Handler: handler, Logger: logger.Nop(), RetryBackoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 2, handler.count())
}
