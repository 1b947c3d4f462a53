package sse

import (
	"context"
	"sync"

	"ms-reviews/internal/models"
)

// SlotEventEmitter fans slot change events out to the SSE clients watching a
// campaign's slot board.
type SlotEventEmitter struct {
	mu      sync.RWMutex
	clients map[int64][]chan models.SlotChangeEvent
	buffer  int
}

func NewSlotEventEmitter() *SlotEventEmitter {
	return &SlotEventEmitter{
		clients: make(map[int64][]chan models.SlotChangeEvent),
		buffer:  16,
	}
}

// Subscribe registers a client for campaignID. The channel is closed once ctx is done.
func (e *SlotEventEmitter) Subscribe(ctx context.Context, campaignID int64) <-chan models.SlotChangeEvent {
	ch := make(chan models.SlotChangeEvent, e.buffer)

	e.mu.Lock()
	e.clients[campaignID] = append(e.clients[campaignID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(campaignID, ch)
	}()

	return ch
}

// PublishSlotEvent delivers ev to every subscriber of its campaign. Slow clients
// whose buffer is full miss the event rather than block the publisher.
func (e *SlotEventEmitter) PublishSlotEvent(_ context.Context, ev models.SlotChangeEvent) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[ev.CampaignID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (e *SlotEventEmitter) remove(campaignID int64, ch chan models.SlotChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[campaignID]
	for i, c := range clients {
		if c == ch {
			e.clients[campaignID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[campaignID]) == 0 {
		delete(e.clients, campaignID)
	}
}

func (e *SlotEventEmitter) ClientCount(campaignID int64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[campaignID])
}
