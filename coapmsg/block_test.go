package coapmsg

import "testing"

func TestSZXToBytes(t *testing.T) {
	cases := map[uint8]int{0: 16, 1: 32, 2: 64, 3: 128, 4: 256, 5: 512, 6: 1024}
	for szx, want := range cases {
		if got := SZXToBytes(szx); got != want {
			t.Errorf("SZXToBytes(%d) = %d, want %d", szx, got, want)
		}
	}
}

func TestBytesToSZX(t *testing.T) {
	szx, ok := BytesToSZX(1024)
	if !ok || szx != 6 {
		t.Errorf("BytesToSZX(1024) = %d, %v, want 6, true", szx, ok)
	}
	if _, ok := BytesToSZX(100); ok {
		t.Errorf("BytesToSZX(100) should not be a valid block size")
	}
}

func TestEncodeDecodeBlockValueRoundTrip(t *testing.T) {
	cases := []BlockValue{
		{Num: 0, More: true, SZX: 6},
		{Num: 1, More: false, SZX: 0},
		{Num: 15, More: true, SZX: 3},
		{Num: 4095, More: true, SZX: 6},   // needs 2 bytes
		{Num: 1048575, More: false, SZX: 6}, // needs 3 bytes
	}
	for _, bv := range cases {
		raw, err := EncodeBlockValue(bv)
		if err != nil {
			t.Fatalf("EncodeBlockValue(%+v) error: %v", bv, err)
		}
		if len(raw) == 0 || len(raw) > 3 {
			t.Fatalf("EncodeBlockValue(%+v) produced %d bytes", bv, len(raw))
		}
		got, err := DecodeBlockValue(raw)
		if err != nil {
			t.Fatalf("DecodeBlockValue(%x) error: %v", raw, err)
		}
		if got != bv {
			t.Errorf("round trip %+v -> %x -> %+v", bv, raw, got)
		}
	}
}

func TestEncodeBlockValueRejectsReservedSZX(t *testing.T) {
	_, err := EncodeBlockValue(BlockValue{SZX: 7})
	if err != ErrReservedSZX {
		t.Errorf("EncodeBlockValue with SZX=7 = %v, want ErrReservedSZX", err)
	}
}

func TestDecodeBlockValueRejectsReservedSZX(t *testing.T) {
	_, err := DecodeBlockValue([]byte{0x07})
	if err != ErrReservedSZX {
		t.Errorf("DecodeBlockValue with SZX=7 = %v, want ErrReservedSZX", err)
	}
}

func TestDecodeBlockValueRejectsBadLength(t *testing.T) {
	if _, err := DecodeBlockValue(nil); err == nil {
		t.Error("DecodeBlockValue(nil) should fail")
	}
	if _, err := DecodeBlockValue([]byte{1, 2, 3, 4}); err == nil {
		t.Error("DecodeBlockValue of 4 bytes should fail")
	}
}

func TestMessageBlock1GetSet(t *testing.T) {
	m := NewMessage()
	if _, present, err := m.GetBlock1(); present || err != nil {
		t.Fatalf("GetBlock1 on empty message = present=%v err=%v", present, err)
	}

	want := BlockValue{Num: 3, More: true, SZX: 6}
	if err := m.SetBlock1(want); err != nil {
		t.Fatalf("SetBlock1: %v", err)
	}
	got, present, err := m.GetBlock1()
	if err != nil || !present {
		t.Fatalf("GetBlock1 after Set: present=%v err=%v", present, err)
	}
	if got != want {
		t.Errorf("GetBlock1 = %+v, want %+v", got, want)
	}
}
