package session

import (
	"github.com/rs/zerolog"

	"github.com/wricardo/morpion/game/room"
)

// Sender delivers a single message to one connection. Implementations must
// return immediately; a false result means the message was not queued.
type Sender interface {
	Send(connID, event string, payload any) bool
	Ack(connID string, ackID int64, payload any) bool
}

// Gateway fans events out to the members of a room. It only reads the
// Registry and must be used from the coordinator goroutine.
type Gateway struct {
	registry *room.Registry
	sender   Sender
	log      zerolog.Logger
}

// NewGateway creates a gateway over registry and sender
func NewGateway(registry *room.Registry, sender Sender, log zerolog.Logger) *Gateway {
	return &Gateway{registry: registry, sender: sender, log: log}
}

// ToRoom sends event to every member of roomCode and returns how many sends
// were queued.
func (g *Gateway) ToRoom(roomCode, event string, payload any) int {
	return g.ToRoomExcept(roomCode, "", event, payload)
}

// ToRoomExcept sends event to every member of roomCode other than senderID.
func (g *Gateway) ToRoomExcept(roomCode, senderID, event string, payload any) int {
	delivered := 0
	for _, m := range g.registry.MembersOf(roomCode) {
		if m.ConnID == senderID {
			continue
		}
		if g.sender.Send(m.ConnID, event, payload) {
			delivered++
		} else {
			g.log.Warn().
				Str("room", roomCode).
				Str("conn", m.ConnID).
				Str("event", event).
				Msg("dropped outbound event")
		}
	}
	return delivered
}
