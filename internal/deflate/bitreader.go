// Package deflate is a minimal, checkpoint-capable DEFLATE (RFC 1951)
// decoder adapted from the bit-level technique shown by the zran family of
// tools: Go's standard compress/flate does not expose mid-stream bit/block
// state, so (like coreos/pkg/zran and jonjohnsonjr/targz/gsip) we keep our
// own small decoder that can report exactly where a block boundary falls,
// how many leftover bits remain at that boundary, and can be re-primed and
// re-seeded with a history window to resume decoding from there.
package deflate

import "io"

// bitReader pulls DEFLATE bits least-significant-bit first from an
// io.ByteReader, tracking how many whole bytes have been consumed so a
// caller can recover the compressed offset of a block boundary.
type bitReader struct {
	src    io.ByteReader
	buf    uint32
	nbits  uint // valid bits currently in buf, low-order
	nbytes int64 // whole bytes consumed from src so far
}

func newBitReader(src io.ByteReader) *bitReader {
	return &bitReader{src: src}
}

// bit reads a single bit (0 or 1).
func (b *bitReader) bit() (uint32, error) {
	if b.nbits == 0 {
		c, err := b.src.ReadByte()
		if err != nil {
			return 0, err
		}
		b.nbytes++
		b.buf = uint32(c)
		b.nbits = 8
	}
	v := b.buf & 1
	b.buf >>= 1
	b.nbits--
	return v, nil
}

// bits reads n (<=24) bits, least-significant bit first, and returns them
// as an integer with the first bit read in the low-order position.
func (b *bitReader) bits(n uint) (uint32, error) {
	var v uint32
	for i := uint(0); i < n; i++ {
		bit, err := b.bit()
		if err != nil {
			return 0, err
		}
		v |= bit << i
	}
	return v, nil
}

// align discards any partially consumed byte, moving to the next byte
// boundary (used by stored blocks).
func (b *bitReader) align() {
	b.buf = 0
	b.nbits = 0
}

// readByteAligned reads a full byte once aligned (stored blocks).
func (b *bitReader) readByteAligned() (byte, error) {
	c, err := b.src.ReadByte()
	if err != nil {
		return 0, err
	}
	b.nbytes++
	return c, nil
}

// offset returns the number of whole bytes consumed from src.
func (b *bitReader) offset() int64 { return b.nbytes }

// leftoverBits returns how many bits of the most recently consumed byte
// have not yet been handed out (0-7). This is the Checkpoint.bits value.
func (b *bitReader) leftoverBits() int { return int(b.nbits) }

// prime seeds the bit buffer with `bits` already-available bits whose
// value is the *remaining* (unconsumed) high bits of the byte at
// offset-1, matching zlib's inflatePrime/zran convention: value must
// already be shifted down so its low `bits` bits are the ones to use.
func (b *bitReader) prime(bits int, value byte) {
	b.buf = uint32(value)
	b.nbits = uint(bits)
}

// primeValue returns the bits currently held in buf, in the same
// already-shifted form prime expects — what a Checkpoint must persist
// alongside leftoverBits() to resume decoding later.
func (b *bitReader) primeValue() byte { return byte(b.buf) }
