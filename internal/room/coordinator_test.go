package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	c := NewCoordinator(nil, zaptest.NewLogger(t))
	a := NewClient("u1", 4)
	b := NewClient("u2", 4)
	other := NewClient("u3", 4)
	c.Register("s1", a)
	c.Register("s1", b)
	c.Register("s2", other)

	c.Broadcast("s1", "sessionStarted", map[string]string{"sessionId": "s1"})

	for _, client := range []*Client{a, b} {
		select {
		case data := <-client.Send():
			var msg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Type != "sessionStarted" {
				t.Fatalf("expected sessionStarted, got %s", msg.Type)
			}
		default:
			t.Fatalf("expected message for %s", client.UserID)
		}
	}
	select {
	case <-other.Send():
		t.Fatalf("client in another room must not receive the broadcast")
	default:
	}
}

func TestSlowClientDropsOldest(t *testing.T) {
	c := NewCoordinator(nil, zaptest.NewLogger(t))
	slow := NewClient("u1", 2)
	c.Register("s1", slow)

	for i := 0; i < 5; i++ {
		c.Broadcast("s1", "tick", i)
	}

	var got []int
	for len(slow.Send()) > 0 {
		var msg struct {
			Payload int `json:"payload"`
		}
		_ = json.Unmarshal(<-slow.Send(), &msg)
		got = append(got, msg.Payload)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("expected the two newest frames [3 4], got %v", got)
	}
}

func TestUnregisterDropsEmptyRoomAndPresence(t *testing.T) {
	presence := &recordingPresence{}
	c := NewCoordinator(presence, zaptest.NewLogger(t))
	client := NewClient("u1", 1)

	c.Register("s1", client)
	c.Register("s1", client)
	if c.Members("s1") != 1 {
		t.Fatalf("expected one member, got %d", c.Members("s1"))
	}
	c.Unregister("s1", client)
	c.Unregister("s1", client)
	if c.Members("s1") != 0 {
		t.Fatalf("expected empty room")
	}
	if presence.joins != 1 || presence.leaves != 1 {
		t.Fatalf("expected one join and one leave, got %d/%d", presence.joins, presence.leaves)
	}

	client.Close()
	client.Close()
	if client.Deliver([]byte("x")) {
		t.Fatalf("closed client must not accept frames")
	}
}

type recordingPresence struct {
	mu     sync.Mutex
	joins  int
	leaves int
}

func (p *recordingPresence) Join(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joins++
	return nil
}

func (p *recordingPresence) Leave(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaves++
	return nil
}
