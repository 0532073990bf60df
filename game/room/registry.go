package room

import "sort"

// Entry is one connection's seat in a room.
type Entry struct {
	ConnID   string `json:"connectionId"`
	Name     string `json:"displayName"`
	RoomCode string `json:"roomCode"`

	seq uint64
}

// Registry maps live connection ids to their room entries.
type Registry struct {
	entries map[string]*Entry
	nextSeq uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Put associates connID with a name and room, replacing any previous
// association. A connection that stays in the same room keeps its position in
// the join order.
func (r *Registry) Put(connID, name, roomCode string) {
	if e, ok := r.entries[connID]; ok && e.RoomCode == roomCode {
		e.Name = name
		return
	}

	r.nextSeq++
	r.entries[connID] = &Entry{
		ConnID:   connID,
		Name:     name,
		RoomCode: roomCode,
		seq:      r.nextSeq,
	}
}

// Get returns the entry for connID
func (r *Registry) Get(connID string) (Entry, bool) {
	e, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove deletes and returns the entry for connID.
func (r *Registry) Remove(connID string) (Entry, bool) {
	e, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, connID)
	return *e, true
}

// MembersOf returns the entries in roomCode ordered by join time. The result
// is never nil.
func (r *Registry) MembersOf(roomCode string) []Entry {
	members := make([]Entry, 0, 2)
	for _, e := range r.entries {
		if e.RoomCode == roomCode {
			members = append(members, *e)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].seq < members[j].seq
	})
	return members
}

// Rooms returns the distinct room codes that have at least one member,
// sorted.
func (r *Registry) Rooms() []string {
	seen := make(map[string]struct{})
	for _, e := range r.entries {
		seen[e.RoomCode] = struct{}{}
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	return len(r.entries)
}
