package services

import (
	"fmt"

	"github.com/Dosada05/bracket-engine/brackets"
)

// EventPublisher pushes engine events to whoever is listening. Delivery
// is fire-and-forget: a dropped event never fails the operation that
// produced it.
type EventPublisher interface {
	Publish(tournamentID int, eventType string, payload interface{})
}

type hubPublisher struct {
	hub *brackets.Hub
}

// NewHubPublisher broadcasts events into the websocket room of the
// owning tournament.
func NewHubPublisher(hub *brackets.Hub) EventPublisher {
	return &hubPublisher{hub: hub}
}

func (p *hubPublisher) Publish(tournamentID int, eventType string, payload interface{}) {
	roomID := fmt.Sprintf("tournament_%d", tournamentID)
	p.hub.BroadcastToRoom(roomID, brackets.Message{
		Type:    eventType,
		Payload: payload,
		RoomID:  roomID,
	})
}

// NopPublisher discards events; used in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(int, string, interface{}) {}
