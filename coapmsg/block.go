package coapmsg

import "fmt"

// BlockValue is the decoded form of a Block1/Block2 option (RFC 7959 section 2.1).
//
//	0
//	0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|  NUM  |M| SZX |   1 byte  (NUM fits 0-15)
//	+-+-+-+-+-+-+-+-+
type BlockValue struct {
	Num uint32
	// More indicates that further blocks follow this one.
	More bool
	// SZX is the block size exponent, 0-6. The block size in bytes is 2^(SZX+4).
	SZX uint8
}

// SZXToBytes returns the block size in bytes for a given SZX.
func SZXToBytes(szx uint8) int {
	return 1 << (szx + 4)
}

// BytesToSZX returns the SZX for a power-of-two block size in {16,32,...,1024}.
// Returns false if size is not a supported block size.
func BytesToSZX(size int) (uint8, bool) {
	for szx := uint8(0); szx <= 6; szx++ {
		if SZXToBytes(szx) == size {
			return szx, true
		}
	}
	return 0, false
}

// EncodeBlockValue packs a BlockValue into its 1-3 byte wire representation.
func EncodeBlockValue(b BlockValue) ([]byte, error) {
	if b.SZX > 7 {
		return nil, fmt.Errorf("coapmsg: invalid SZX %d", b.SZX)
	}
	if b.SZX == 7 {
		return nil, ErrReservedSZX
	}

	v := b.Num << 4
	if b.More {
		v |= 1 << 3
	}
	v |= uint32(b.SZX)

	switch {
	case v <= 0xff:
		return []byte{byte(v)}, nil
	case v <= 0xffff:
		return []byte{byte(v >> 8), byte(v)}, nil
	case v <= 0xffffff:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}, nil
	default:
		return nil, fmt.Errorf("coapmsg: block number %d too large to encode", b.Num)
	}
}

// DecodeBlockValue unpacks a 1-3 byte Block1/Block2 option value.
func DecodeBlockValue(raw []byte) (BlockValue, error) {
	if len(raw) == 0 || len(raw) > 3 {
		return BlockValue{}, fmt.Errorf("coapmsg: block option must be 1-3 bytes, got %d", len(raw))
	}

	var v uint32
	for _, b := range raw {
		v = v<<8 | uint32(b)
	}

	szx := uint8(v & 0x7)
	if szx == 7 {
		return BlockValue{}, ErrReservedSZX
	}

	return BlockValue{
		Num:  v >> 4,
		More: v&(1<<3) != 0,
		SZX:  szx,
	}, nil
}

// GetBlock1 returns the decoded Block1 option, if present.
func (m *Message) GetBlock1() (BlockValue, bool, error) {
	return m.getBlock(Block1)
}

// GetBlock2 returns the decoded Block2 option, if present.
func (m *Message) GetBlock2() (BlockValue, bool, error) {
	return m.getBlock(Block2)
}

func (m *Message) getBlock(id OptionId) (BlockValue, bool, error) {
	opt := m.Options().Get(id)
	if opt.IsNotSet() {
		return BlockValue{}, false, nil
	}
	bv, err := DecodeBlockValue(opt.AsBytes())
	if err != nil {
		return BlockValue{}, true, err
	}
	return bv, true, nil
}

// SetBlock1 encodes and sets the Block1 option.
func (m *Message) SetBlock1(b BlockValue) error {
	return m.setBlock(Block1, b)
}

// SetBlock2 encodes and sets the Block2 option.
func (m *Message) SetBlock2(b BlockValue) error {
	return m.setBlock(Block2, b)
}

func (m *Message) setBlock(id OptionId, b BlockValue) error {
	raw, err := EncodeBlockValue(b)
	if err != nil {
		return err
	}
	return m.Options().Set(id, raw)
}
