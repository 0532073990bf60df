// Package events publishes finished and reset games to NATS and subscribes
// to them again for offline consumers.
//
// Each result goes to <prefix>.<roomCode>.<kind>, for example
// morpion.rooms.R1.won, as the JSON encoding of session.Result. Room codes
// are client strings, so characters NATS treats specially are replaced.
package events
