package sse

import (
	"context"
	"sync"

	"ms-checkin/internal/models"
)

// CheckInEventEmitter fans successful check-in/check-out transitions
// out to door-dashboard SSE clients, grouped by venue.
type CheckInEventEmitter struct {
	venueClients map[string][]chan models.CheckInEvent
	mu           sync.RWMutex
}

func NewCheckInEventEmitter() *CheckInEventEmitter {
	return &CheckInEventEmitter{
		venueClients: make(map[string][]chan models.CheckInEvent),
	}
}

// Subscribe registers a client for a venue's check-in events. The
// client is dropped automatically when its context ends.
func (e *CheckInEventEmitter) Subscribe(ctx context.Context, venueID string) chan models.CheckInEvent {
	clientChan := make(chan models.CheckInEvent, 10)

	e.mu.Lock()
	e.venueClients[venueID] = append(e.venueClients[venueID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(venueID, clientChan)
	}()

	return clientChan
}

// Broadcast delivers an event to every client watching the venue.
// Slow clients are skipped rather than blocking the scan path.
func (e *CheckInEventEmitter) Broadcast(venueID string, event models.CheckInEvent) {
	e.mu.RLock()
	clients := e.venueClients[venueID]
	e.mu.RUnlock()

	for _, clientChan := range clients {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *CheckInEventEmitter) removeClient(venueID string, clientChan chan models.CheckInEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.venueClients[venueID]
	for i, c := range clients {
		if c == clientChan {
			e.venueClients[venueID] = append(clients[:i], clients[i+1:]...)
			close(c)
			break
		}
	}
	if len(e.venueClients[venueID]) == 0 {
		delete(e.venueClients, venueID)
	}
}
