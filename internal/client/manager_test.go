package client

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"

	"echoroom/internal/core"
	"echoroom/internal/domain"
)

// pair wires two managers back to back, standing in for the relay.
func pair(t *testing.T) (*Manager, *Manager) {
	t.Helper()
	var a, b *Manager
	a = NewManager(nil, func(_ domain.ConnID, body core.SignalBody) error {
		return b.HandleSignal("a", body)
	})
	b = NewManager(nil, func(_ domain.ConnID, body core.SignalBody) error {
		return a.HandleSignal("b", body)
	})
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func peerOf(t *testing.T, m *Manager, id domain.ConnID) *Peer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		t.Fatalf("no peer for %s", id)
	}
	return p
}

func TestManagerOfferAnswer(t *testing.T) {
	a, b := pair(t)

	if err := a.Offer("b"); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("both sides should hold one peer, got %d and %d", a.Len(), b.Len())
	}
	if got := peerOf(t, a, "b").pc.SignalingState(); got != webrtc.SignalingStateStable {
		t.Errorf("initiator should be stable after the answer, got %v", got)
	}
	if got := peerOf(t, b, "a").pc.SignalingState(); got != webrtc.SignalingStateStable {
		t.Errorf("responder should be stable, got %v", got)
	}
}

func TestManagerBuffersEarlyCandidates(t *testing.T) {
	a, b := pair(t)

	ci, err := json.Marshal(hostCandidate(6000))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.HandleSignal("a", core.SignalBody{Kind: core.SignalICECandidate, Payload: ci}); err != nil {
		t.Fatalf("early candidate: %v", err)
	}
	if got := peerOf(t, b, "a").buffered(); got != 1 {
		t.Fatalf("candidate before the offer should be buffered, got %d", got)
	}

	if err := a.Offer("b"); err != nil {
		t.Fatal(err)
	}
	if got := peerOf(t, b, "a").buffered(); got != 0 {
		t.Errorf("buffer should drain with the offer, got %d", got)
	}
}

func TestManagerDropsStaleAnswer(t *testing.T) {
	a, _ := pair(t)

	payload, err := json.Marshal(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.HandleSignal("ghost", core.SignalBody{Kind: core.SignalAnswer, Payload: payload}); err != nil {
		t.Fatalf("stale answer should be dropped silently, got %v", err)
	}
	if a.Len() != 0 {
		t.Error("stale answer must not create a peer")
	}
}

func TestManagerUnknownKind(t *testing.T) {
	a, _ := pair(t)
	if err := a.HandleSignal("b", core.SignalBody{Kind: "renegotiate"}); err != nil {
		t.Fatalf("unknown kind should be ignored, got %v", err)
	}
	if a.Len() != 0 {
		t.Error("unknown kind must not create a peer")
	}
}

func TestManagerClosePeer(t *testing.T) {
	a, b := pair(t)
	if err := a.Offer("b"); err != nil {
		t.Fatal(err)
	}

	// Stop the remote side first so its candidate gathering cannot
	// recreate the peer through ensurePeer mid-assertion.
	b.Close()
	if b.Len() != 0 {
		t.Error("close should empty the peer table")
	}

	a.ClosePeer("b")
	if a.Len() != 0 {
		t.Fatal("peer should be discarded")
	}
	// A second close for the same id is a no-op.
	a.ClosePeer("b")
}

func TestManagerOfferReplacesPeer(t *testing.T) {
	a, _ := pair(t)
	if err := a.Offer("b"); err != nil {
		t.Fatal(err)
	}
	first := peerOf(t, a, "b")

	if err := a.Offer("b"); err != nil {
		t.Fatal(err)
	}
	second := peerOf(t, a, "b")
	if first == second {
		t.Error("a fresh offer should replace the old connection")
	}
	if a.Len() != 1 {
		t.Errorf("expected exactly one live peer, got %d", a.Len())
	}
}
