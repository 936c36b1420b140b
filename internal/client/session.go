package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"echoroom/internal/core"
	"echoroom/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024

	ackWait = 10 * time.Second
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrAckTimeout   = errors.New("timed out waiting for server ack")
)

// RetryPolicy bounds the dial loop: no hidden sleep-and-hope, the limits
// come from configuration.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

type Config struct {
	ServerURL   string // e.g. ws://localhost:8080/api/ws/signal
	Username    string
	Avatar      string
	STUNServers []string
	Retry       RetryPolicy
}

// Session is one client's connection to the signaling server: the
// websocket, the roster cache and the peer-connection manager.
type Session struct {
	cfg Config
	mgr *Manager

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	self    domain.ConnID
	roomID  domain.RoomID
	roster  map[domain.ConnID]domain.Participant
	sharing bool

	createCh chan core.RoomCreatedEvent
	joinCh   chan core.JoinAckEvent
	done     chan struct{}

	// Event sinks; nil sinks are skipped.
	OnMessage     func(domain.ChatMessage)
	OnUserJoined  func(core.UserJoinedEvent)
	OnUserLeft    func(core.UserLeftEvent)
	OnScreenShare func(core.ScreenShareEvent)
}

func NewSession(cfg Config) *Session {
	s := &Session{
		cfg:      cfg,
		roster:   make(map[domain.ConnID]domain.Participant),
		createCh: make(chan core.RoomCreatedEvent, 1),
		joinCh:   make(chan core.JoinAckEvent, 1),
		done:     make(chan struct{}),
	}
	s.mgr = NewManager(cfg.STUNServers, s.sendSignal)
	return s
}

func (s *Session) Manager() *Manager { return s.mgr }

// Connect dials the signaling endpoint under the configured retry policy.
func (s *Session) Connect(ctx context.Context) error {
	attempts := s.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.Retry.Backoff):
			}
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.ServerURL, nil)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("module", "client.session").
				Int("attempt", i+1).
				Msg("dial failed")
			continue
		}
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		})
		s.conn = conn
		go s.readLoop()
		return nil
	}
	return fmt.Errorf("connect after %d attempts: %w", attempts, lastErr)
}

// CreateRoom asks the server for a fresh room. Creating does not join.
func (s *Session) CreateRoom(ctx context.Context) (domain.RoomID, error) {
	if err := s.sendJSON(map[string]any{"type": "create-room"}); err != nil {
		return "", err
	}
	select {
	case ev := <-s.createCh:
		return ev.RoomID, nil
	case <-s.done:
		return "", ErrNotConnected
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(ackWait):
		return "", ErrAckTimeout
	}
}

// Join binds this session to a room and caches the roster from the ack.
func (s *Session) Join(ctx context.Context, roomID domain.RoomID) (core.RoomSnapshot, error) {
	err := s.sendJSON(map[string]any{
		"type":      "join-room",
		"roomId":    string(roomID),
		"username":  s.cfg.Username,
		"avatarRef": s.cfg.Avatar,
	})
	if err != nil {
		return core.RoomSnapshot{}, err
	}
	select {
	case ack := <-s.joinCh:
		if !ack.Success || ack.Room == nil {
			return core.RoomSnapshot{}, fmt.Errorf("join %s: %s", roomID, ack.Error)
		}
		s.mu.Lock()
		s.self = ack.Self
		s.roomID = ack.Room.ID
		s.roster = make(map[domain.ConnID]domain.Participant, len(ack.Room.Users))
		for _, p := range ack.Room.Users {
			s.roster[p.ConnID] = p
		}
		s.mu.Unlock()
		return *ack.Room, nil
	case <-s.done:
		return core.RoomSnapshot{}, ErrNotConnected
	case <-ctx.Done():
		return core.RoomSnapshot{}, ctx.Err()
	case <-time.After(ackWait):
		return core.RoomSnapshot{}, ErrAckTimeout
	}
}

func (s *Session) SendChat(text string) error {
	return s.sendJSON(map[string]any{"type": "send-message", "text": text})
}

// StartScreenShare offers the given tracks to every current roommate and
// announces the share. Later joiners get their offer from the
// user-joined handler.
func (s *Session) StartScreenShare(tracks []webrtc.TrackLocal) error {
	s.mgr.SetLocalTracks(tracks)

	s.mu.Lock()
	s.sharing = true
	self := s.self
	targets := make([]domain.ConnID, 0, len(s.roster))
	for id := range s.roster {
		if id != self {
			targets = append(targets, id)
		}
	}
	s.mu.Unlock()

	for _, id := range targets {
		if err := s.mgr.Offer(id); err != nil {
			log.Warn().Err(err).Str("module", "client.session").
				Str("to", string(id)).
				Msg("offer failed")
		}
	}
	return s.sendJSON(map[string]any{"type": "screen-share-started"})
}

// StopScreenShare closes every peer connection and announces the stop.
func (s *Session) StopScreenShare() error {
	s.mu.Lock()
	s.sharing = false
	s.mu.Unlock()
	s.mgr.SetLocalTracks(nil)
	s.mgr.Close()
	return s.sendJSON(map[string]any{"type": "screen-share-stopped"})
}

func (s *Session) Leave() error {
	s.mgr.Close()
	s.mu.Lock()
	s.roomID = ""
	s.roster = make(map[domain.ConnID]domain.Participant)
	s.mu.Unlock()
	return s.sendJSON(map[string]any{"type": "leave"})
}

func (s *Session) Close() {
	s.mgr.Close()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Self is the server-assigned connection id, known after a join ack.
func (s *Session) Self() domain.ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *Session) Roster() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0, len(s.roster))
	for _, p := range s.roster {
		out = append(out, p)
	}
	return out
}

func (s *Session) sendSignal(to domain.ConnID, body core.SignalBody) error {
	return s.sendJSON(map[string]any{
		"type":   "signal",
		"to":     string(to),
		"signal": body,
	})
}

func (s *Session) sendJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *Session) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "client.session").Msg("read loop closed")
			return
		}
		s.handle(data)
	}
}

func (s *Session) handle(data []byte) {
	var env struct {
		Type core.EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Msg("bad frame")
		return
	}

	switch env.Type {
	case core.EventRoomCreated:
		var ev core.RoomCreatedEvent
		if json.Unmarshal(data, &ev) == nil {
			select {
			case s.createCh <- ev:
			default:
			}
		}

	case core.EventJoinAck:
		var ev core.JoinAckEvent
		if json.Unmarshal(data, &ev) == nil {
			select {
			case s.joinCh <- ev:
			default:
			}
		}

	case core.EventUserJoined:
		var ev core.UserJoinedEvent
		if json.Unmarshal(data, &ev) != nil {
			return
		}
		s.mu.Lock()
		s.roster[ev.User.ConnID] = ev.User
		sharing := s.sharing
		self := s.self
		s.mu.Unlock()
		// In the room-join variant the participant holding media reaches
		// out to the newcomer.
		if sharing && ev.User.ConnID != self {
			if err := s.mgr.Offer(ev.User.ConnID); err != nil {
				log.Warn().Err(err).Str("module", "client.session").
					Str("to", string(ev.User.ConnID)).
					Msg("offer to joiner failed")
			}
		}
		if s.OnUserJoined != nil {
			s.OnUserJoined(ev)
		}

	case core.EventUserLeft:
		var ev core.UserLeftEvent
		if json.Unmarshal(data, &ev) != nil {
			return
		}
		// The broadcast roster is authoritative; rebuilding drops any entry
		// the cache holds that the server no longer does.
		s.mu.Lock()
		s.roster = make(map[domain.ConnID]domain.Participant, len(ev.Users))
		for _, p := range ev.Users {
			s.roster[p.ConnID] = p
		}
		s.mu.Unlock()
		// The departure broadcast doubles as the cancellation signal for
		// any in-flight negotiation with that participant.
		s.mgr.ClosePeer(ev.UserID)
		if s.OnUserLeft != nil {
			s.OnUserLeft(ev)
		}

	case core.EventNewMessage:
		var ev core.NewMessageEvent
		if json.Unmarshal(data, &ev) != nil {
			return
		}
		if s.OnMessage != nil {
			s.OnMessage(ev.ChatMessage)
		}

	case core.EventUserScreenShare:
		var ev core.ScreenShareEvent
		if json.Unmarshal(data, &ev) != nil {
			return
		}
		if s.OnScreenShare != nil {
			s.OnScreenShare(ev)
		}

	case core.EventSignal:
		var ev core.SignalEvent
		if json.Unmarshal(data, &ev) != nil {
			return
		}
		if err := s.mgr.HandleSignal(ev.From, ev.Signal); err != nil {
			log.Warn().Err(err).Str("module", "client.session").
				Str("from", string(ev.From)).
				Msg("signal handling failed")
		}

	case core.EventLeft, core.EventPong:
		// acks with no client-side state

	default:
		log.Warn().Str("module", "client.session").
			Str("type", string(env.Type)).
			Msg("unknown event")
	}
}
