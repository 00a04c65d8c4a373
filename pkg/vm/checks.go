package vm

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/slytechs-repos/bpfvm/pkg/inst"
)

// Built-in check handlers. Each sets error bits on the register file when
// its check fails and lets execution continue; none of them returns an
// error, so a check never aborts execution.

// chkCRC verifies a CRC-32 (IEEE) over K..K+len against the 4 bytes stored
// big-endian right after the region. len is packed as Jt<<8|Jf.
func chkCRC(c *Context, in inst.Instruction) (bool, error) {
	offset := int(in.K)
	length := int(in.Jt)<<8 | int(in.Jf)

	pkt := c.mem.Bytes()
	if offset < 0 || length <= 0 || offset+length+4 > len(pkt) {
		c.regs.SetError(ErrBitTruncated | ErrBitCRC)
		return true, nil
	}
	want := binary.BigEndian.Uint32(pkt[offset+length:])
	if crc32.ChecksumIEEE(pkt[offset:offset+length]) != want {
		c.regs.SetError(ErrBitCRC)
	}
	return true, nil
}

// chkL3Csum verifies the IPv4 header checksum of the header at offset K.
func chkL3Csum(c *Context, in inst.Instruction) (bool, error) {
	offset := int(in.K)
	pkt := c.mem.Bytes()

	if offset < 0 || offset+20 > len(pkt) {
		c.regs.SetError(ErrBitTruncated | ErrBitL3Checksum)
		return true, nil
	}
	ihl := int(pkt[offset]&0x0F) * 4
	if pkt[offset]>>4 != 4 || ihl < 20 {
		c.regs.SetError(ErrBitMalformed)
		return true, nil
	}
	if offset+ihl > len(pkt) {
		c.regs.SetError(ErrBitTruncated | ErrBitL3Checksum)
		return true, nil
	}
	c.regs.SetL3Offset(uint64(offset))
	if foldChecksum(checksumSum(pkt[offset:offset+ihl], 0)) != 0xFFFF {
		c.regs.SetError(ErrBitL3Checksum)
	}
	return true, nil
}

// chkL4Csum verifies the TCP or UDP checksum of the transport segment
// carried by the IPv4 header at offset K, including the pseudo-header.
// Protocols other than TCP/UDP pass; a UDP checksum field of zero means
// "not computed" and passes.
func chkL4Csum(c *Context, in inst.Instruction) (bool, error) {
	offset := int(in.K)
	pkt := c.mem.Bytes()

	if offset < 0 || offset+20 > len(pkt) {
		c.regs.SetError(ErrBitTruncated | ErrBitL4Checksum)
		return true, nil
	}
	ihl := int(pkt[offset]&0x0F) * 4
	total := int(binary.BigEndian.Uint16(pkt[offset+2:]))
	proto := pkt[offset+9]
	if pkt[offset]>>4 != 4 || ihl < 20 || total < ihl {
		c.regs.SetError(ErrBitMalformed)
		return true, nil
	}
	if proto != 6 && proto != 17 {
		return true, nil
	}
	l4off := offset + ihl
	l4len := total - ihl
	if offset+total > len(pkt) {
		c.regs.SetError(ErrBitTruncated | ErrBitL4Checksum)
		return true, nil
	}
	seg := pkt[l4off : l4off+l4len]
	if proto == 17 {
		if l4len < 8 {
			c.regs.SetError(ErrBitMalformed)
			return true, nil
		}
		if binary.BigEndian.Uint16(seg[6:]) == 0 {
			return true, nil
		}
	}
	c.regs.SetL4Offset(uint64(l4off))
	if proto == 6 {
		if len(seg) >= 13 {
			c.regs.SetPayloadOffset(uint64(l4off + int(seg[12]>>4)*4))
		}
	} else {
		c.regs.SetPayloadOffset(uint64(l4off + 8))
	}

	// Pseudo-header: src, dst, zero:proto, L4 length.
	sum := checksumSum(pkt[offset+12:offset+20], 0)
	sum += uint32(proto)
	sum += uint32(l4len)
	if foldChecksum(checksumSum(seg, sum)) != 0xFFFF {
		c.regs.SetError(ErrBitL4Checksum)
	}
	return true, nil
}

// chkTrunc raises TRUNCATED when the packet's visible length is shorter
// than its captured length.
func chkTrunc(c *Context, _ inst.Instruction) (bool, error) {
	if c.mem.Truncated() {
		c.regs.SetError(ErrBitTruncated)
	}
	return true, nil
}

// chkFrameLen asserts the frame is at least K bytes and records the
// observed length in the frame-length register.
func chkFrameLen(c *Context, in inst.Instruction) (bool, error) {
	c.regs.SetFrameLen(uint64(c.mem.Len()))
	if uint32(c.mem.Len()) < in.K {
		c.regs.SetError(ErrBitMalformed)
	}
	return true, nil
}

// chkProtoLoc asserts that the protocol recorded at layer Jt starts at
// byte offset K.
func chkProtoLoc(c *Context, in inst.Instruction) (bool, error) {
	layer := int(in.Jt)
	if layer >= NumLayers {
		c.regs.SetError(ErrBitMalformed)
		return true, nil
	}
	if c.layers[layer].Offset != int(in.K) {
		c.regs.SetError(ErrBitMalformed)
	}
	return true, nil
}

// checksumSum adds b to an RFC 1071 one's-complement accumulator. An odd
// trailing byte is padded with zero on the right.
func checksumSum(b []byte, sum uint32) uint32 {
	for len(b) >= 2 {
		sum += uint32(b[0])<<8 | uint32(b[1])
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	return sum
}

// foldChecksum folds the accumulator carries into 16 bits.
func foldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return uint16(sum)
}
