// Package presence tracks which locally held connections are in which room.
//
// A Registry only knows about connections attached to the process that owns
// it; there is no fleet-wide view.
package presence

import (
	"sort"
	"sync"

	"github.com/example/relay-chat/domain/chat"
)

type entry struct {
	member chat.Member
	seq    uint64
}

// Registry maps connection ids to their display name and current room.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	rooms   map[string]map[string]struct{}
	nextSeq uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Join records that connectionID is in room under displayName. A connection
// is in at most one room; joining again moves it and puts it at the end of
// the new room's roster.
func (r *Registry) Join(connectionID, displayName, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(connectionID)

	r.nextSeq++
	r.entries[connectionID] = entry{
		member: chat.Member{ConnectionID: connectionID, DisplayName: displayName, Room: room},
		seq:    r.nextSeq,
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][connectionID] = struct{}{}
}

// Leave removes connectionID and returns the membership it had.
func (r *Registry) Leave(connectionID string) (chat.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connectionID)
}

// Lookup returns the membership of connectionID, if any.
func (r *Registry) Lookup(connectionID string) (chat.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connectionID]
	return e.member, ok
}

// RosterFor returns the members of room in join order.
func (r *Registry) RosterFor(room string) []chat.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.rooms[room]
	list := make([]entry, 0, len(ids))
	for id := range ids {
		list = append(list, r.entries[id])
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	members := make([]chat.Member, len(list))
	for i, e := range list {
		members[i] = e.member
	}
	return members
}

// MemberIDs returns the connection ids in room in join order.
func (r *Registry) MemberIDs(room string) []string {
	roster := r.RosterFor(room)
	ids := make([]string, len(roster))
	for i, m := range roster {
		ids[i] = m.ConnectionID
	}
	return ids
}

// Count returns the number of connections currently in any room.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Rooms returns the rooms with at least one local member, sorted by name.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *Registry) removeLocked(connectionID string) (chat.Member, bool) {
	e, ok := r.entries[connectionID]
	if !ok {
		return chat.Member{}, false
	}
	delete(r.entries, connectionID)
	if members := r.rooms[e.member.Room]; members != nil {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.rooms, e.member.Room)
		}
	}
	return e.member, true
}
