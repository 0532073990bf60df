// Package room provides the two in-memory maps behind the session
// coordinator: the connection Registry and the score Ledger.
//
// Neither type is safe for concurrent use. Both are owned by a single
// session.Coordinator goroutine, which serializes every read and write.
//
// Registry:
//
// The Registry answers "who is online and where". Each live connection maps
// to exactly one Entry holding its display name and room code. Members of a
// room are returned in join order, so the first element is the player who
// arrived first.
//
// Ledger:
//
// The Ledger keeps a cumulative win count per room and display name. Scores
// start at zero the first time a name is seen in a room and only ever grow;
// there is no operation that lowers or clears a score.
package room
