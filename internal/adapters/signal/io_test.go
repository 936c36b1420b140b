package signal

import (
	"encoding/json"
	"testing"
	"time"

	"echoroom/internal/core"
)

func testConn() *WsSignalConn {
	return &WsSignalConn{send: make(chan core.Frame, 4)}
}

func recvFrame(t *testing.T, c *WsSignalConn) []byte {
	t.Helper()
	select {
	case f := <-c.send:
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return nil
	}
}

func TestDispatchPing(t *testing.T) {
	ctl := &SignalWSController{}
	conn := testConn()

	ctl.dispatch("c1", conn, []byte(`{"type":"ping"}`))

	var resp struct {
		Type core.EventType `json:"type"`
	}
	if err := json.Unmarshal(recvFrame(t, conn), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != core.EventPong {
		t.Errorf("expected pong, got %s", resp.Type)
	}
}

func TestDispatchUnknownType(t *testing.T) {
	ctl := &SignalWSController{}
	conn := testConn()

	ctl.dispatch("c1", conn, []byte(`{"type":"teleport"}`))
	ctl.dispatch("c1", conn, []byte(`not json`))

	select {
	case f := <-conn.send:
		t.Fatalf("unknown frames must be dropped, got %s", f)
	default:
	}
}

func TestTrySendBackpressure(t *testing.T) {
	conn := &WsSignalConn{send: make(chan core.Frame, 1)}
	if err := conn.TrySend(core.Frame(`a`)); err != nil {
		t.Fatal(err)
	}
	if err := conn.TrySend(core.Frame(`b`)); err != ErrBackpressure {
		t.Errorf("full buffer should report backpressure, got %v", err)
	}
}

func TestTrySendAfterClose(t *testing.T) {
	conn := &WsSignalConn{send: make(chan core.Frame, 1)}
	conn.mu.Lock()
	conn.closed = true
	conn.mu.Unlock()
	if err := conn.TrySend(core.Frame(`a`)); err == nil {
		t.Error("closed connection must refuse frames")
	}
}
