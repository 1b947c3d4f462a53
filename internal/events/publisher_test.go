package events

import (
	"context"
	"errors"
	"testing"

	"ms-reviews/internal/logger"
	"ms-reviews/internal/models"

	"github.com/stretchr/testify/assert"
)

type failingSink struct{ err error }

func (f failingSink) PublishSlotEvent(context.Context, models.SlotChangeEvent) error { return f.err }

func TestFanout_DeliversToAllSinks(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	boom := errors.New("broker down")
	f := NewFanout(a, nil, failingSink{boom}, b)

	err := f.PublishSlotEvent(context.Background(), models.SlotChangeEvent{Type: models.SlotEventReserved, CampaignID: 1})

	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []models.SlotEventType{models.SlotEventReserved}, a.Types())
	assert.Equal(t, []models.SlotEventType{models.SlotEventReserved}, b.Types())
}

func TestEmit_SwallowsErrors(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), failingSink{errors.New("x")}, logger.Nop(), models.SlotChangeEvent{})
		Emit(context.Background(), nil, logger.Nop(), models.SlotChangeEvent{})
	})
}
