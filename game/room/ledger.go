package room

import "sort"

// Scores maps display names to win counts within one room.
type Scores map[string]int

// Names returns the player names in lexical order.
func (s Scores) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Scores) clone() Scores {
	c := make(Scores, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Ledger holds the per-room score tables. Rooms are created lazily and
// never removed.
type Ledger struct {
	rooms map[string]Scores
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		rooms: make(map[string]Scores),
	}
}

// EnsureRoom creates an empty score table for roomCode if none exists.
func (l *Ledger) EnsureRoom(roomCode string) {
	if _, ok := l.rooms[roomCode]; !ok {
		l.rooms[roomCode] = make(Scores)
	}
}

// EnsurePlayer starts name at zero unless it already has a score in the room.
func (l *Ledger) EnsurePlayer(roomCode, name string) {
	l.EnsureRoom(roomCode)
	if _, ok := l.rooms[roomCode][name]; !ok {
		l.rooms[roomCode][name] = 0
	}
}

// HasRoom reports whether roomCode has a score table.
func (l *Ledger) HasRoom(roomCode string) bool {
	_, ok := l.rooms[roomCode]
	return ok
}

// Increment adds one win for name and returns a copy of the updated table.
// A name without an entry counts from zero.
func (l *Ledger) Increment(roomCode, name string) Scores {
	l.EnsureRoom(roomCode)
	l.rooms[roomCode][name]++
	return l.rooms[roomCode].clone()
}

// Snapshot returns a copy of the room's scores, or an empty table for an
// unknown room.
func (l *Ledger) Snapshot(roomCode string) Scores {
	scores, ok := l.rooms[roomCode]
	if !ok {
		return Scores{}
	}
	return scores.clone()
}

// Rooms returns every room code with a score table, sorted.
func (l *Ledger) Rooms() []string {
	codes := make([]string, 0, len(l.rooms))
	for code := range l.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
