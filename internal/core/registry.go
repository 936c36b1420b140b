package core

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"echoroom/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

// roomState is a room plus its membership, in join order. The order slice
// drives host election: the earliest-joined survivor takes the flag.
type roomState struct {
	room         domain.Room
	order        []domain.ConnID
	participants map[domain.ConnID]*domain.Participant
}

// Registry is the in-memory room store. It mutates state and reports
// enough of it for the caller to broadcast; it never touches transports.
type Registry struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*roomState
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*roomState)}
}

// CreateRoom allocates a fresh id and inserts an empty room. The uuid space
// makes collisions with live rooms negligible, but we check anyway.
func (r *Registry) CreateRoom() domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var id domain.RoomID
	for {
		id = domain.RoomID(uuid.NewString())
		if _, taken := r.rooms[id]; !taken {
			break
		}
	}
	r.rooms[id] = &roomState{
		room:         domain.Room{ID: id, CreatedAt: time.Now().UTC()},
		participants: make(map[domain.ConnID]*domain.Participant),
	}
	log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room created")
	return id
}

func (r *Registry) HasRoom(id domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[id]
	return ok
}

// Snapshot returns the roster view of a room, in join order.
func (r *Registry) Snapshot(id domain.RoomID) (RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.rooms[id]
	if !ok {
		return RoomSnapshot{}, false
	}
	return rs.snapshot(), true
}

// AddParticipant registers p in the room and returns the updated roster.
// The first participant of a room becomes its host.
func (r *Registry) AddParticipant(id domain.RoomID, p *domain.Participant) (RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.rooms[id]
	if !ok {
		return RoomSnapshot{}, ErrRoomNotFound
	}
	if len(rs.participants) == 0 {
		p.IsHost = true
	}
	rs.participants[p.ConnID] = p
	rs.order = append(rs.order, p.ConnID)
	log.Info().Str("module", "core.registry").
		Str("room", string(id)).Str("conn", string(p.ConnID)).Str("username", p.Username).
		Msg("participant added")
	return rs.snapshot(), nil
}

// RemoveResult reports one atomic removal: who left, who (if anyone) became
// host, and the roster as the remaining members must now see it.
type RemoveResult struct {
	Removed     domain.Participant
	NewHost     *domain.Participant
	RoomDeleted bool
	Snapshot    RoomSnapshot
}

// RemoveParticipant drops connID from the room. When the room empties it is
// deleted in the same step, so an empty room is never observable. When the
// departing participant held the host flag, the earliest-joined survivor
// inherits it.
func (r *Registry) RemoveParticipant(id domain.RoomID, connID domain.ConnID) (RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.rooms[id]
	if !ok {
		return RemoveResult{}, ErrRoomNotFound
	}
	p, ok := rs.participants[connID]
	if !ok {
		return RemoveResult{}, ErrRoomNotFound
	}
	delete(rs.participants, connID)
	for i, cid := range rs.order {
		if cid == connID {
			rs.order = append(rs.order[:i], rs.order[i+1:]...)
			break
		}
	}

	res := RemoveResult{Removed: *p}
	if len(rs.participants) == 0 {
		delete(r.rooms, id)
		res.RoomDeleted = true
		log.Info().Str("module", "core.registry").Str("room", string(id)).Msg("room deleted (no users left)")
		return res, nil
	}
	if p.IsHost {
		next := rs.participants[rs.order[0]]
		next.IsHost = true
		host := *next
		res.NewHost = &host
		log.Info().Str("module", "core.registry").
			Str("room", string(id)).Str("conn", string(next.ConnID)).
			Msg("host reassigned")
	}
	res.Snapshot = rs.snapshot()
	return res, nil
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

func (r *Registry) List() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, rs := range r.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(rs.participants)})
	}
	return out
}

// Counts feeds the metrics gauges.
func (r *Registry) Counts() (rooms, participants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rs := range r.rooms {
		participants += len(rs.participants)
	}
	return len(r.rooms), participants
}

func (rs *roomState) snapshot() RoomSnapshot {
	users := make([]domain.Participant, 0, len(rs.order))
	for _, cid := range rs.order {
		users = append(users, *rs.participants[cid])
	}
	return RoomSnapshot{ID: rs.room.ID, UserCount: len(users), Users: users}
}
