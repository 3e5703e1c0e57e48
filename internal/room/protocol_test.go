package room

import (
	"strings"
	"testing"
)

func TestDecodeInboundSubscribe(t *testing.T) {
	raw := `{"type":"SUBSCRIBE","userIds":["SP1AY6K3PQV5MRT6R4S671NWW2FRVPKM0BR162CT6"],"includePrices":true}`
	msg, err := DecodeInbound([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if msg.Type != MsgSubscribe {
		t.Errorf("type = %q, want %q", msg.Type, MsgSubscribe)
	}
	if len(msg.UserIDs) != 1 || !msg.IncludePrices {
		t.Errorf("unexpected payload: %+v", msg)
	}
}

func TestDecodeInboundPingTimestamp(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"PING","timestamp":1700000000000}`))
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if msg.Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d", msg.Timestamp)
	}
}

func TestDecodeInboundRejectsUnknownType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"BOGUS"}`))
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "Unknown message type: BOGUS") {
		t.Errorf("error = %q", err)
	}
}

func TestDecodeInboundRejectsMissingType(t *testing.T) {
	if _, err := DecodeInbound([]byte(`{"userIds":[]}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestDecodeInboundRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeInbound([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
