package coapmsg

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := NewMessage()
	m.Type = Confirmable
	m.Code = PUT
	m.MessageID = 0x1234
	m.Token = []byte{0xAB, 0xCD}
	m.SetPath([]string{"blocks", "put"})
	m.Options().Set(ContentFormat, uint32(0))
	m.Payload = []byte("hello world")

	b, err := m.Encode(0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	if got.Type != m.Type || got.Code != m.Code || got.MessageID != m.MessageID {
		t.Errorf("header mismatch: got %+v", got)
	}
	if !bytes.Equal(got.Token, m.Token) {
		t.Errorf("token mismatch: got %x want %x", got.Token, m.Token)
	}
	if got.PathString() != "blocks/put" {
		t.Errorf("path mismatch: got %q", got.PathString())
	}
	if !bytes.Equal(got.Payload, m.Payload) {
		t.Errorf("payload mismatch: got %q want %q", got.Payload, m.Payload)
	}
}

func TestEncodeDecodeRoundTripEmptyToken(t *testing.T) {
	m := NewMessage()
	m.Type = NonConfirmable
	m.Code = GET
	m.MessageID = 1

	b, err := m.Encode(0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(got.Token) != 0 {
		t.Errorf("expected empty token, got %x", got.Token)
	}
}

func TestEncodeRejectsOversizedToken(t *testing.T) {
	m := NewMessage()
	m.Token = make([]byte, 9)
	if _, err := m.Encode(0); !errors.Is(err, ErrInvalidTokenLen) {
		t.Errorf("Encode with 9-byte token = %v, want wrapped ErrInvalidTokenLen", err)
	}
}

func TestEncodeRejectsOverMTU(t *testing.T) {
	m := NewMessage()
	m.Code = GET
	m.Payload = bytes.Repeat([]byte{'x'}, 64)
	if _, err := m.Encode(16); !errors.Is(err, ErrMTUExceeded) {
		t.Errorf("Encode over MTU = %v, want wrapped ErrMTUExceeded", err)
	}
}

func TestDecodeRejectsShortPacket(t *testing.T) {
	var mm *MalformedMessageError
	_, err := ParseMessage([]byte{0x40, 0x01})
	if !errors.As(err, &mm) {
		t.Errorf("ParseMessage on short packet = %v, want *MalformedMessageError", err)
	}
}

func TestDecodeRejectsInvalidVersion(t *testing.T) {
	// Version field (top 2 bits) = 0, which is invalid (must be 1).
	data := []byte{0x00, 0x01, 0x00, 0x01}
	if _, err := ParseMessage(data); err == nil {
		t.Error("ParseMessage with version 0 should fail")
	}
}

func TestDecodeRejectsPayloadMarkerWithNoPayload(t *testing.T) {
	// Header + marker byte with nothing after it.
	data := []byte{0x40, 0x01, 0x00, 0x01, 0xFF}
	if _, err := ParseMessage(data); err == nil {
		t.Error("ParseMessage with trailing bare payload marker should fail")
	}
}

func TestOptionOrderingOnWire(t *testing.T) {
	m := NewMessage()
	m.Code = GET
	// Add options out of numeric order; the encoder must sort them.
	m.Options().Add(ContentFormat, uint32(0)) // 12
	m.Options().Add(URIPath, "a")              // 11

	b, err := m.Encode(0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if got.Options().Get(URIPath).AsString() != "a" {
		t.Errorf("Uri-Path lost across the wire")
	}
	if got.Options().Get(ContentFormat).AsUInt32() != 0 {
		t.Errorf("Content-Format lost across the wire")
	}
}
