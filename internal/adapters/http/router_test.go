package http

import (
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"echoroom/internal/app"
	"echoroom/internal/client"
	"echoroom/internal/config"
	"echoroom/internal/core"
	"echoroom/internal/domain"
)

const eventWait = 5 * time.Second

type sink struct {
	joined chan core.UserJoinedEvent
	left   chan core.UserLeftEvent
	msgs   chan domain.ChatMessage
	shares chan core.ScreenShareEvent
}

func newClient(t *testing.T, url, name string) (*client.Session, *sink) {
	t.Helper()
	sk := &sink{
		joined: make(chan core.UserJoinedEvent, 8),
		left:   make(chan core.UserLeftEvent, 8),
		msgs:   make(chan domain.ChatMessage, 8),
		shares: make(chan core.ScreenShareEvent, 8),
	}
	s := client.NewSession(client.Config{
		ServerURL: url,
		Username:  name,
		Retry:     client.RetryPolicy{MaxAttempts: 1},
	})
	s.OnUserJoined = func(ev core.UserJoinedEvent) { sk.joined <- ev }
	s.OnUserLeft = func(ev core.UserLeftEvent) { sk.left <- ev }
	s.OnMessage = func(m domain.ChatMessage) { sk.msgs <- m }
	s.OnScreenShare = func(ev core.ScreenShareEvent) { sk.shares <- ev }
	t.Cleanup(s.Close)
	return s, sk
}

// waitJoined drains join broadcasts until the named user appears.
func waitJoined(t *testing.T, sk *sink, name string) core.UserJoinedEvent {
	t.Helper()
	deadline := time.After(eventWait)
	for {
		select {
		case ev := <-sk.joined:
			if ev.User.Username == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s to join", name)
		}
	}
}

func TestSignalingEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:               "test",
		StaticPath:         "./testdata",
		ReadLimit:          65536,
		PingPeriod:         54 * time.Second,
		Secret:             "test-secret",
		AvatarURLTemplate:  "https://avatars.test/svg?seed=%s",
		CreateRoomLimit:    10,
		CreateRoomInterval: time.Minute,
	}
	coord := app.NewCoordinator(core.NewRegistry(), cfg.AvatarURLTemplate)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ts := httptest.NewServer(SetupRouter(ctx, cfg, coord))
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/signal"

	ann, annEv := newClient(t, wsURL, "Ann")
	if err := ann.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	roomID, err := ann.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if roomID == "" {
		t.Fatal("expected a room id")
	}

	snap, err := ann.Join(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.UserCount != 1 || !snap.Users[0].IsHost {
		t.Fatalf("Ann should be alone and host, got %+v", snap)
	}
	if ann.Self() == "" {
		t.Fatal("join ack should carry the connection id")
	}
	waitJoined(t, annEv, "Ann")

	bob, bobEv := newClient(t, wsURL, "Bob")
	if err := bob.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err = bob.Join(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.UserCount != 2 {
		t.Fatalf("room should hold two users, got %+v", snap)
	}

	ev := waitJoined(t, annEv, "Bob")
	if ev.UserCount != 2 || len(ev.Users) != 2 {
		t.Fatalf("Ann should see Bob arrive with a full roster, got %+v", ev)
	}
	waitJoined(t, bobEv, "Bob")

	t.Run("Chat Reaches Everyone", func(t *testing.T) {
		if err := bob.SendChat("hello room"); err != nil {
			t.Fatal(err)
		}
		for name, sk := range map[string]*sink{"Ann": annEv, "Bob": bobEv} {
			select {
			case m := <-sk.msgs:
				if m.Text != "hello room" || m.Sender.Username != "Bob" {
					t.Errorf("%s received %+v", name, m)
				}
				if m.ID == "" || m.Timestamp.IsZero() {
					t.Errorf("%s: message missing id or timestamp", name)
				}
			case <-time.After(eventWait):
				t.Fatalf("%s never received the message", name)
			}
		}
	})

	t.Run("Screen Share Negotiates Over The Relay", func(t *testing.T) {
		if err := bob.StartScreenShare(nil); err != nil {
			t.Fatal(err)
		}
		select {
		case ev := <-annEv.shares:
			if ev.UserID != bob.Self() || !ev.IsSharing {
				t.Fatalf("unexpected share event %+v", ev)
			}
		case <-time.After(eventWait):
			t.Fatal("Ann never saw the share start")
		}
		if bob.Manager().Len() != 1 {
			t.Errorf("Bob should hold one peer connection, got %d", bob.Manager().Len())
		}

		if err := bob.StopScreenShare(); err != nil {
			t.Fatal(err)
		}
		select {
		case ev := <-annEv.shares:
			if ev.IsSharing {
				t.Fatalf("expected share stopped, got %+v", ev)
			}
		case <-time.After(eventWait):
			t.Fatal("Ann never saw the share stop")
		}
	})

	t.Run("Leave Elects New Host", func(t *testing.T) {
		annSelf := ann.Self()
		if err := ann.Leave(); err != nil {
			t.Fatal(err)
		}
		select {
		case ev := <-bobEv.left:
			if ev.UserID != annSelf || ev.UserCount != 1 {
				t.Fatalf("unexpected user-left %+v", ev)
			}
			if len(ev.Users) != 1 || !ev.Users[0].IsHost {
				t.Errorf("Bob should inherit host, got %+v", ev.Users)
			}
		case <-time.After(eventWait):
			t.Fatal("Bob never saw Ann leave")
		}
	})
}

func TestRoomsListing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:               "test",
		StaticPath:         "./testdata",
		ReadLimit:          65536,
		PingPeriod:         54 * time.Second,
		Secret:             "test-secret",
		AvatarURLTemplate:  "https://avatars.test/svg?seed=%s",
		CreateRoomLimit:    10,
		CreateRoomInterval: time.Minute,
	}
	coord := app.NewCoordinator(core.NewRegistry(), cfg.AvatarURLTemplate)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ts := httptest.NewServer(SetupRouter(ctx, cfg, coord))
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/signal"

	ann, _ := newClient(t, wsURL, "Ann")
	if err := ann.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	roomID, err := ann.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ann.Join(ctx, roomID); err != nil {
		t.Fatal(err)
	}

	rooms := coord.Registry().List()
	if len(rooms) != 1 || rooms[0].ID != roomID || rooms[0].MemberCount != 1 {
		t.Fatalf("unexpected listing %+v", rooms)
	}

	resp, err := nethttp.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("metrics endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"echoroom_rooms_created_total", "echoroom_active_rooms"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
