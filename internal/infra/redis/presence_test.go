package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestPresenceTracksAndClearsRooms(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	presence := NewPresence(newClient(mr), time.Minute)

	_ = presence.Join(ctx, "s1")
	_ = presence.Join(ctx, "s1")
	if !mr.Exists("quiz:room:s1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:room:s1"); ttl <= 0 {
		t.Fatalf("expected ttl on room key, got %v", ttl)
	}
	if n, _ := presence.Count(ctx, "s1"); n != 2 {
		t.Fatalf("expected 2 connections, got %d", n)
	}

	_ = presence.Leave(ctx, "s1")
	if n, _ := presence.Count(ctx, "s1"); n != 1 {
		t.Fatalf("expected 1 connection, got %d", n)
	}
	_ = presence.Leave(ctx, "s1")
	if mr.Exists("quiz:room:s1") {
		t.Fatalf("expected redis key to be removed")
	}
	if n, _ := presence.Count(ctx, "s1"); n != 0 {
		t.Fatalf("expected empty room, got %d", n)
	}
}

func TestPresenceLeaveRefreshesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	presence := NewPresence(newClient(mr), time.Minute)

	for i := 0; i < 3; i++ {
		_ = presence.Join(ctx, "s1")
	}
	mr.FastForward(50 * time.Second)
	if err := presence.Leave(ctx, "s1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	mr.FastForward(50 * time.Second)

	if n, _ := presence.Count(ctx, "s1"); n != 2 {
		t.Fatalf("expected an occupied room to stay live, got %d", n)
	}
	_ = presence.Leave(ctx, "s1")
	_ = presence.Leave(ctx, "s1")
	if mr.Exists("quiz:room:s1") {
		t.Fatalf("expected the key to be removed once empty")
	}
}
