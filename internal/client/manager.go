package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"echoroom/internal/core"
	"echoroom/internal/domain"
)

// SendFunc pushes a signaling body toward one remote participant. The
// session wires this to the websocket relay; tests wire it to the other
// manager directly.
type SendFunc func(to domain.ConnID, body core.SignalBody) error

// Manager holds one Peer per remote participant. Negotiations are scoped
// strictly by sender id, so parallel handshakes cannot cross-talk.
type Manager struct {
	cfg  webrtc.Configuration
	send SendFunc

	mu     sync.Mutex
	peers  map[domain.ConnID]*Peer
	tracks []webrtc.TrackLocal

	onTrack func(from domain.ConnID, track *webrtc.TrackRemote)
}

func NewManager(stunServers []string, send SendFunc) *Manager {
	cfg := webrtc.Configuration{}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return &Manager{
		cfg:   cfg,
		send:  send,
		peers: make(map[domain.ConnID]*Peer),
	}
}

// SetLocalTracks fixes the media attached to every subsequent offer.
func (m *Manager) SetLocalTracks(tracks []webrtc.TrackLocal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = tracks
}

// OnRemoteTrack registers the sink for media arriving from any peer.
func (m *Manager) OnRemoteTrack(fn func(from domain.ConnID, track *webrtc.TrackRemote)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTrack = fn
}

// Offer starts a negotiation with one remote participant as initiator.
// Any previous connection to that participant is replaced.
func (m *Manager) Offer(to domain.ConnID) error {
	m.mu.Lock()
	if old, ok := m.peers[to]; ok {
		old.Close()
		delete(m.peers, to)
	}
	p, err := m.newPeerLocked(to)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	tracks := m.tracks
	m.mu.Unlock()

	offer, err := p.CreateOffer(tracks)
	if err != nil {
		m.ClosePeer(to)
		return fmt.Errorf("create offer for %s: %w", to, err)
	}
	return m.sendDescription(to, core.SignalOffer, offer)
}

// HandleSignal advances the negotiation keyed by the sender id.
func (m *Manager) HandleSignal(from domain.ConnID, body core.SignalBody) error {
	switch body.Kind {
	case core.SignalOffer:
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(body.Payload, &offer); err != nil {
			return fmt.Errorf("decode offer from %s: %w", from, err)
		}
		p, err := m.ensurePeer(from)
		if err != nil {
			return err
		}
		answer, err := p.ApplyOffer(offer)
		if err != nil {
			return fmt.Errorf("answer offer from %s: %w", from, err)
		}
		return m.sendDescription(from, core.SignalAnswer, answer)

	case core.SignalAnswer:
		m.mu.Lock()
		p, ok := m.peers[from]
		m.mu.Unlock()
		if !ok {
			// Stale answer for a connection we already tore down.
			log.Debug().Str("module", "client.manager").
				Str("from", string(from)).
				Msg("answer for unknown peer, dropping")
			return nil
		}
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(body.Payload, &answer); err != nil {
			return fmt.Errorf("decode answer from %s: %w", from, err)
		}
		return p.ApplyAnswer(answer)

	case core.SignalICECandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(body.Payload, &ci); err != nil {
			return fmt.Errorf("decode candidate from %s: %w", from, err)
		}
		p, err := m.ensurePeer(from)
		if err != nil {
			return err
		}
		return p.AddICECandidate(ci)

	default:
		log.Warn().Str("module", "client.manager").
			Str("kind", string(body.Kind)).
			Msg("unknown signal kind")
		return nil
	}
}

// ClosePeer discards the connection for a departed participant. The
// user-left broadcast is the cancellation signal that triggers this.
func (m *Manager) ClosePeer(id domain.ConnID) {
	m.mu.Lock()
	p, ok := m.peers[id]
	delete(m.peers, id)
	m.mu.Unlock()
	if ok {
		p.Close()
	}
}

// Close tears down every peer connection.
func (m *Manager) Close() {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[domain.ConnID]*Peer)
	m.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

func (m *Manager) ensurePeer(id domain.ConnID) (*Peer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		return p, nil
	}
	return m.newPeerLocked(id)
}

func (m *Manager) newPeerLocked(id domain.ConnID) (*Peer, error) {
	p, err := newPeer(m.cfg, id, func(ci webrtc.ICECandidateInit) {
		payload, err := json.Marshal(ci)
		if err != nil {
			return
		}
		if err := m.send(id, core.SignalBody{Kind: core.SignalICECandidate, Payload: payload}); err != nil {
			log.Debug().Err(err).Str("module", "client.manager").
				Str("to", string(id)).
				Msg("candidate send failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("new peer connection for %s: %w", id, err)
	}
	if m.onTrack != nil {
		sink := m.onTrack
		p.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			sink(id, track)
		})
	}
	m.peers[id] = p
	return p, nil
}

func (m *Manager) sendDescription(to domain.ConnID, kind core.SignalKind, desc webrtc.SessionDescription) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	return m.send(to, core.SignalBody{Kind: kind, Payload: payload})
}
