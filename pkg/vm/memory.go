package vm

import "encoding/binary"

// MaxPacketSize bounds the packet buffer at 1 MiB.
const MaxPacketSize = 1 << 20

// PacketMemory owns the bytes of the packet under inspection. Reads are
// bounds-checked against the visible packet length, never against buffer
// capacity, and return values in the configured byte order (big-endian,
// network order, unless switched for non-network use).
//
// The buffer is reused across packets; LoadPacket grows it as needed up to
// MaxPacketSize and never shrinks it.
type PacketMemory struct {
	buf         []byte
	length      int // visible packet length
	origLen     int // captured length before truncation
	truncated   bool
	initialized bool
	order       binary.ByteOrder
}

// NewPacketMemory returns an empty big-endian packet memory.
func NewPacketMemory() *PacketMemory {
	return &PacketMemory{order: binary.BigEndian}
}

// SetByteOrder switches the read byte order. Takes effect immediately.
func (m *PacketMemory) SetByteOrder(order binary.ByteOrder) {
	m.order = order
}

// LoadPacket copies data into the buffer and resets truncation state.
// Packets longer than MaxPacketSize are refused.
func (m *PacketMemory) LoadPacket(data []byte) error {
	if len(data) > MaxPacketSize {
		return errOutOfBounds
	}
	if cap(m.buf) < len(data) {
		m.buf = make([]byte, len(data))
	}
	m.buf = m.buf[:len(data)]
	copy(m.buf, data)
	m.length = len(data)
	m.origLen = len(data)
	m.truncated = false
	m.initialized = true
	return nil
}

// SetTruncated shrinks the visible length to newLen and marks the packet
// truncated. Extending is a no-op.
func (m *PacketMemory) SetTruncated(newLen int) {
	if newLen < 0 || newLen >= m.length {
		return
	}
	m.length = newLen
	m.truncated = true
}

// Len returns the visible packet length.
func (m *PacketMemory) Len() int { return m.length }

// CapturedLen returns the length before any truncation.
func (m *PacketMemory) CapturedLen() int { return m.origLen }

// Truncated reports whether the visible length is shorter than captured.
func (m *PacketMemory) Truncated() bool { return m.truncated }

// Initialized reports whether a packet has been loaded.
func (m *PacketMemory) Initialized() bool { return m.initialized }

// Bytes returns the visible packet bytes. Callers must not mutate.
func (m *PacketMemory) Bytes() []byte { return m.buf[:m.length] }

func (m *PacketMemory) check(offset, size int) error {
	if offset < 0 || size > m.length || offset > m.length-size {
		return errOutOfBounds
	}
	return nil
}

// ReadU8 returns the byte at offset.
func (m *PacketMemory) ReadU8(offset int) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.buf[offset], nil
}

// ReadU16 returns the 16-bit value at offset in the configured byte order.
func (m *PacketMemory) ReadU16(offset int) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return m.order.Uint16(m.buf[offset:]), nil
}

// ReadU32 returns the 32-bit value at offset in the configured byte order.
func (m *PacketMemory) ReadU32(offset int) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return m.order.Uint32(m.buf[offset:]), nil
}

// ReadU64 returns the 64-bit value at offset in the configured byte order.
func (m *PacketMemory) ReadU64(offset int) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return m.order.Uint64(m.buf[offset:]), nil
}
