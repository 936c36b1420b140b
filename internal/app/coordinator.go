package app

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"echoroom/internal/core"
	"echoroom/internal/domain"
)

// binding ties a live connection to its identity and, once joined, a room.
type binding struct {
	conn     core.SignalConnection
	userID   domain.UserID
	roomID   domain.RoomID
	username string
	avatar   string
	sharing  bool
}

func (b *binding) bound() bool { return b.roomID != "" }

// Coordinator owns the registry and the connection bindings. One mutex
// serializes every inbound event end-to-end, so all participants observe
// membership broadcasts in the coordinator's processing order.
type Coordinator struct {
	mu       sync.Mutex
	registry *core.Registry
	conns    map[domain.ConnID]*binding

	avatarTemplate string
}

func NewCoordinator(registry *core.Registry, avatarTemplate string) *Coordinator {
	return &Coordinator{
		registry:       registry,
		conns:          make(map[domain.ConnID]*binding),
		avatarTemplate: avatarTemplate,
	}
}

func (c *Coordinator) Registry() *core.Registry { return c.registry }

// Connect registers a fresh transport connection. The connection stays
// unbound until a successful join.
func (c *Coordinator) Connect(connID domain.ConnID, userID domain.UserID, conn core.SignalConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[connID] = &binding{conn: conn, userID: userID}
	log.Info().Str("module", "app.coordinator").Str("conn", string(connID)).Msg("connection registered")
}

// CreateRoom allocates a room without binding the creator; creating and
// joining are separate protocol steps.
func (c *Coordinator) CreateRoom(connID domain.ConnID) domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.registry.CreateRoom()
	log.Info().Str("module", "app.coordinator").
		Str("conn", string(connID)).Str("room", string(id)).
		Msg("room created")
	return id
}

// Join binds the connection to a room and broadcasts user-joined to the
// whole roster, joiner included. The returned snapshot is the joiner's
// synchronous ack, distinct from the broadcast.
func (c *Coordinator) Join(connID domain.ConnID, roomID domain.RoomID, username, avatar string) (core.RoomSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.conns[connID]
	if !ok {
		return core.RoomSnapshot{}, core.ErrRoomNotFound
	}
	if b.bound() {
		// Rejoining moves the participant; leave the old room first.
		c.leaveLocked(connID)
	}
	if !c.registry.HasRoom(roomID) {
		return core.RoomSnapshot{}, core.ErrRoomNotFound
	}

	if username == "" {
		username = defaultUsername(connID)
	}
	if avatar == "" {
		avatar = fmt.Sprintf(c.avatarTemplate, connID)
	}
	p, err := domain.NewParticipant(connID, b.userID, username, avatar)
	if err != nil {
		return core.RoomSnapshot{}, err
	}

	snap, err := c.registry.AddParticipant(roomID, p)
	if err != nil {
		return core.RoomSnapshot{}, err
	}
	b.roomID = roomID
	b.username = username
	b.avatar = avatar

	c.broadcastLocked(snap, core.UserJoinedEvent{
		Type:      core.EventUserJoined,
		User:      *p,
		UserCount: snap.UserCount,
		Users:     snap.Users,
	})
	return snap, nil
}

// Leave unbinds the connection from its room and notifies the remaining
// members. Calling it on an unbound connection is a no-op.
func (c *Coordinator) Leave(connID domain.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveLocked(connID)
}

// Disconnect is Leave plus dropping the binding itself.
func (c *Coordinator) Disconnect(connID domain.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveLocked(connID)
	delete(c.conns, connID)
	log.Info().Str("module", "app.coordinator").Str("conn", string(connID)).Msg("connection dropped")
}

// Chat wraps text with the sender identity and broadcasts to the whole
// room, sender included, so every UI renders the same authoritative event.
// Stale sends (unbound connection, vanished room) are dropped silently.
func (c *Coordinator) Chat(connID domain.ConnID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, snap, ok := c.boundLocked(connID)
	if !ok {
		return
	}
	sender, ok := findParticipant(snap, connID)
	if !ok {
		return
	}
	c.broadcastLocked(snap, core.NewMessageEvent{
		Type: core.EventNewMessage,
		ChatMessage: domain.ChatMessage{
			ID:        uuid.NewString(),
			Text:      text,
			Sender:    sender,
			Timestamp: time.Now().UTC(),
		},
	})
}

// ScreenShare broadcasts who is sharing. The server tracks the flag only;
// media never passes through it.
func (c *Coordinator) ScreenShare(connID domain.ConnID, isSharing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, snap, ok := c.boundLocked(connID)
	if !ok {
		return
	}
	b.sharing = isSharing
	c.broadcastLocked(snap, core.ScreenShareEvent{
		Type:      core.EventUserScreenShare,
		UserID:    connID,
		IsSharing: isSharing,
	})
}

// boundLocked resolves a connection to its binding and current room
// snapshot, reporting false on any staleness condition.
func (c *Coordinator) boundLocked(connID domain.ConnID) (*binding, core.RoomSnapshot, bool) {
	b, ok := c.conns[connID]
	if !ok || !b.bound() {
		return nil, core.RoomSnapshot{}, false
	}
	snap, ok := c.registry.Snapshot(b.roomID)
	if !ok {
		return nil, core.RoomSnapshot{}, false
	}
	return b, snap, true
}

func (c *Coordinator) leaveLocked(connID domain.ConnID) {
	b, ok := c.conns[connID]
	if !ok || !b.bound() {
		return
	}
	roomID := b.roomID
	b.roomID = ""
	b.sharing = false

	res, err := c.registry.RemoveParticipant(roomID, connID)
	if err != nil {
		return
	}
	if res.RoomDeleted {
		return
	}
	c.broadcastLocked(res.Snapshot, core.UserLeftEvent{
		Type:      core.EventUserLeft,
		UserID:    connID,
		UserCount: res.Snapshot.UserCount,
		Users:     res.Snapshot.Users,
	})
}

// broadcastLocked fans an event out to every roster member. A member whose
// connection cannot take the frame is kicked from the room rather than
// allowed to stall everyone else.
func (c *Coordinator) broadcastLocked(snap core.RoomSnapshot, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("broadcast marshal")
		return
	}
	var slow []domain.ConnID
	sent := 0
	for _, p := range snap.Users {
		b, ok := c.conns[p.ConnID]
		if !ok {
			continue
		}
		if err := b.conn.TrySend(core.Frame(data)); err != nil {
			slow = append(slow, p.ConnID)
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.coordinator").
		Str("room", string(snap.ID)).Int("sent_to", sent).Int("dropped", len(slow)).
		Msg("broadcast result")
	for _, cid := range slow {
		log.Warn().Str("module", "app.coordinator").Str("conn", string(cid)).Msg("kicking slow member")
		c.leaveLocked(cid)
	}
}

func findParticipant(snap core.RoomSnapshot, connID domain.ConnID) (domain.Participant, bool) {
	for _, p := range snap.Users {
		if p.ConnID == connID {
			return p, true
		}
	}
	return domain.Participant{}, false
}

func defaultUsername(connID domain.ConnID) string {
	short := string(connID)
	if len(short) > 4 {
		short = short[:4]
	}
	return "User-" + short
}
