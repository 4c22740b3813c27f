package instructions

import "encoding/binary"

// argEncoder appends little-endian argument bytes with no padding, matching
// the Anchor wire format. It never errors; callers build a fixed-shape
// instruction, so there is nothing to fail on beyond a programmer mistake.
type argEncoder struct {
	buf []byte
}

func newArgEncoder(discriminator [8]byte) *argEncoder {
	e := &argEncoder{buf: make([]byte, 0, 64)}
	e.buf = append(e.buf, discriminator[:]...)
	return e
}

func (e *argEncoder) u16(v uint16) *argEncoder {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

func (e *argEncoder) u64(v uint64) *argEncoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

func (e *argEncoder) bool(v bool) *argEncoder {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

func (e *argEncoder) bytes(b []byte) *argEncoder {
	e.buf = append(e.buf, b...)
	return e
}

func (e *argEncoder) bytes32(b [32]byte) *argEncoder {
	e.buf = append(e.buf, b[:]...)
	return e
}

func (e *argEncoder) data() []byte {
	return e.buf
}
