package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeEventEnvelope(t *testing.T) {
	at := time.Date(2024, 5, 1, 22, 0, 0, 0, time.FixedZone("X", 3600))
	body, err := encodeEvent("session.started", map[string]string{"sessionId": "s1"}, at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got struct {
		Type       string            `json:"type"`
		OccurredAt time.Time         `json:"occurredAt"`
		Payload    map[string]string `json:"payload"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != "session.started" || got.Payload["sessionId"] != "s1" {
		t.Fatalf("unexpected envelope %+v", got)
	}
	if !got.OccurredAt.Equal(at) || got.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", got.OccurredAt)
	}
}

func TestEncodeEventRejectsUnencodablePayload(t *testing.T) {
	if _, err := encodeEvent("x", make(chan int), time.Now()); err == nil {
		t.Fatalf("expected encode error")
	}
}
