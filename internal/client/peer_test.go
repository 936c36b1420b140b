package client

import (
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"
)

func hostCandidate(port int) webrtc.ICECandidateInit {
	mid := "0"
	return webrtc.ICECandidateInit{
		Candidate: fmt.Sprintf("candidate:1 1 udp 2130706433 127.0.0.1 %d typ host", port),
		SDPMid:    &mid,
	}
}

func TestPeerNegotiation(t *testing.T) {
	a, err := newPeer(webrtc.Configuration{}, "b", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := newPeer(webrtc.Configuration{}, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	offer, err := a.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		t.Fatalf("unexpected offer %+v", offer.Type)
	}

	answer, err := b.ApplyOffer(offer)
	if err != nil {
		t.Fatalf("apply offer: %v", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("expected an answer, got %v", answer.Type)
	}
	if err := a.ApplyAnswer(answer); err != nil {
		t.Fatalf("apply answer: %v", err)
	}

	if got := a.pc.SignalingState(); got != webrtc.SignalingStateStable {
		t.Errorf("initiator should be stable, got %v", got)
	}
	if got := b.pc.SignalingState(); got != webrtc.SignalingStateStable {
		t.Errorf("responder should be stable, got %v", got)
	}
}

func TestCandidateBuffering(t *testing.T) {
	initiator, err := newPeer(webrtc.Configuration{}, "b", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer initiator.Close()
	responder, err := newPeer(webrtc.Configuration{}, "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer responder.Close()

	// Candidates racing ahead of the offer must be held back.
	for i := 0; i < 3; i++ {
		if err := responder.AddICECandidate(hostCandidate(5000 + i)); err != nil {
			t.Fatalf("candidate %d: %v", i, err)
		}
	}
	if got := responder.buffered(); got != 3 {
		t.Fatalf("expected 3 buffered candidates, got %d", got)
	}

	offer, err := initiator.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := responder.ApplyOffer(offer); err != nil {
		t.Fatalf("apply offer: %v", err)
	}
	if got := responder.buffered(); got != 0 {
		t.Errorf("buffer should drain once the remote description lands, got %d", got)
	}

	// After the description is known, candidates apply directly.
	if err := responder.AddICECandidate(hostCandidate(5100)); err != nil {
		t.Fatalf("late candidate: %v", err)
	}
	if got := responder.buffered(); got != 0 {
		t.Errorf("late candidate must not be buffered, got %d", got)
	}
}
