// Package client is the browser-equivalent side of the protocol: it keeps
// one WebRTC peer connection per remote participant and drives the
// offer/answer/ICE exchange through the signaling relay.
package client

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"echoroom/internal/domain"
)

// Peer wraps the connection to a single remote participant.
//
// ICE candidates can outrun the answer on the relay. Candidates that arrive
// before the remote description is set are buffered and applied in receipt
// order once it lands; applying them immediately would fail the handshake.
type Peer struct {
	id domain.ConnID
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newPeer(cfg webrtc.Configuration, id domain.ConnID, onICE func(webrtc.ICECandidateInit)) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &Peer{id: id, pc: pc}

	// Local candidates go out as they are discovered; the relay has no
	// notion of gathering completion to wait for.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil && onICE != nil {
			onICE(c.ToJSON())
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "client.peer").
			Str("remote", string(id)).Str("ice_state", s.String()).
			Msg("ICE state")
	})
	return p, nil
}

// CreateOffer prepares the initiator side: local tracks attached when we
// have them, a control data channel otherwise so the offer carries at
// least one section.
func (p *Peer) CreateOffer(tracks []webrtc.TrackLocal) (webrtc.SessionDescription, error) {
	for _, t := range tracks {
		if _, err := p.pc.AddTrack(t); err != nil {
			return webrtc.SessionDescription{}, err
		}
	}
	if len(tracks) == 0 {
		if _, err := p.pc.CreateDataChannel("control", nil); err != nil {
			return webrtc.SessionDescription{}, err
		}
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

// ApplyOffer runs the responder side and returns the answer to relay back.
func (p *Peer) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.setRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	return p.setRemote(answer)
}

func (p *Peer) setRemote(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.remoteSet = true
	p.mu.Unlock()

	for _, ci := range pending {
		if err := p.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "client.peer").
				Str("remote", string(p.id)).
				Msg("buffered candidate rejected")
		}
	}
	return nil
}

// AddICECandidate applies or buffers a remote candidate depending on
// whether the remote description is known yet.
func (p *Peer) AddICECandidate(ci webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, ci)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(ci)
}

// OnTrack surfaces remote media to the caller.
func (p *Peer) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	p.pc.OnTrack(fn)
}

func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

// Close tears down the connection and with it every local track sender.
func (p *Peer) Close() {
	if err := p.pc.Close(); err != nil {
		log.Warn().Err(err).Str("module", "client.peer").
			Str("remote", string(p.id)).
			Msg("close error")
	}
}

func (p *Peer) buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
