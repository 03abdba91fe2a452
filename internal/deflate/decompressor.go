package deflate

import (
	"errors"
	"fmt"
	"io"
)

// ErrBadStream is returned for any structurally invalid DEFLATE input.
var ErrBadStream = errors.New("deflate: corrupt stream")

type blockKind int

const (
	blockNone blockKind = iota
	blockStored
	blockFixed
	blockDynamic
)

type pendingCopy struct {
	dist      int
	remaining int
}

// Decompressor is a resumable, checkpoint-aware DEFLATE decoder. Unlike
// compress/flate it can report exactly when it sits at a block boundary
// (AtBlockBoundary) and can be reconstructed mid-stream from a saved
// compressed offset, leftover bit count, and history window (Resume).
type Decompressor struct {
	br *bitReader

	win window

	kind    blockKind
	final   bool // this is the last block in the stream
	litDec  *huffmanDecoder
	distDec *huffmanDecoder

	storedRemaining int
	pending         pendingCopy

	atBoundary bool // true once a block has just ended and no partial state remains
	streamDone bool

	// byteReader wraps the caller's io.Reader to satisfy io.ByteReader
	// while keeping exact byte accounting for checkpointing.
	byteReader *countingByteReader
}

// countingByteReader adapts an io.Reader into an io.ByteReader; byte
// accounting itself lives in bitReader.nbytes, this just buffers reads.
type countingByteReader struct {
	r   io.Reader
	buf [64 * 1024]byte
	n   int
	pos int
}

func newCountingByteReader(r io.Reader) *countingByteReader {
	return &countingByteReader{r: r}
}

func (c *countingByteReader) ReadByte() (byte, error) {
	if c.pos >= c.n {
		n, err := c.r.Read(c.buf[:])
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
		c.n = n
		c.pos = 0
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// NewDecompressor starts a fresh DEFLATE decoder reading from r, with no
// history window installed (a cold start at the beginning of a stream).
func NewDecompressor(r io.Reader) *Decompressor {
	cbr := newCountingByteReader(r)
	d := &Decompressor{
		byteReader: cbr,
		br:         newBitReader(cbr),
		atBoundary: true,
	}
	return d
}

// Resume reconstructs a decoder positioned exactly at a prior checkpoint:
// r must already be seeked so the next byte it yields is at compressed
// offset c_offset, also when bits>0, since the leftover bits come from
// primeByte (the caller is responsible for the seek; Resume only primes bit
// state and the history window).
func Resume(r io.Reader, bits int, primeByte byte, dictWindow []byte) *Decompressor {
	d := NewDecompressor(r)
	if bits > 0 {
		d.br.prime(bits, primeByte)
	}
	if dictWindow != nil {
		d.win.loadDictionary(dictWindow)
	}
	return d
}

// CompressedOffset returns the number of compressed bytes consumed so far
// (Checkpoint.c_offset, before accounting for leftover bits).
func (d *Decompressor) CompressedOffset() int64 { return d.br.offset() }

// LeftoverBits returns 0-7 leftover bits at the current position
// (Checkpoint.bits).
func (d *Decompressor) LeftoverBits() int { return d.br.leftoverBits() }

// PrimeValue returns the leftover-bits byte (Checkpoint.prime_byte) that
// must accompany LeftoverBits() for Prime to resume decoding correctly;
// meaningless when LeftoverBits() == 0.
func (d *Decompressor) PrimeValue() byte { return d.br.primeValue() }

// AtBlockBoundary reports whether the decoder currently sits cleanly
// between DEFLATE blocks (no partial symbol or pending copy in flight) —
// the only point at which it is safe to snapshot a Checkpoint (spec §4.1,
// §4.3 step 5).
func (d *Decompressor) AtBlockBoundary() bool { return d.atBoundary }

// Done reports whether the final block has been fully consumed.
func (d *Decompressor) Done() bool { return d.streamDone }

// ExportWindow returns the current 32 KiB history window, suitable for
// Checkpoint.window (spec §3).
func (d *Decompressor) ExportWindow() []byte { return d.win.export() }

// Prime re-seeds the bit buffer with leftover bits recovered from a
// checkpoint boundary (Checkpoint.bits / the byte straddling it).
func (d *Decompressor) Prime(bits int, value byte) {
	d.br.prime(bits, value)
}

// SetDictionary installs a 32 KiB history window recovered from a
// checkpoint, so subsequent back-references can resolve against it.
func (d *Decompressor) SetDictionary(dict []byte) {
	d.win.loadDictionary(dict)
}

// Step decodes into out, stopping either when out is full or a block
// boundary is reached, whichever comes first. This single primitive backs
// both Inflater.read (which loops ignoring the boundary flag) and
// Inflater.read_and_count_lines_with_blocks (which stops at every
// boundary so the Indexer can inspect it).
func (d *Decompressor) Step(out []byte) (n int, atBoundary bool, err error) {
	if d.streamDone {
		return 0, true, io.EOF
	}

	written := 0
	for written < len(out) {
		if d.pending.remaining > 0 {
			take := d.pending.remaining
			if room := len(out) - written; take > room {
				take = room
			}
			for i := 0; i < take; i++ {
				b := d.win.at(d.pending.dist)
				d.win.push(b)
				out[written] = b
				written++
			}
			d.pending.remaining -= take
			if d.pending.remaining > 0 {
				d.atBoundary = false
				return written, false, nil
			}
			continue
		}

		if d.kind == blockNone {
			if err := d.startBlock(); err != nil {
				return written, false, err
			}
			d.atBoundary = false
		}

		if d.kind == blockStored {
			take := d.storedRemaining
			if room := len(out) - written; take > room {
				take = room
			}
			for i := 0; i < take; i++ {
				b, err := d.br.readByteAligned()
				if err != nil {
					return written, false, err
				}
				d.win.push(b)
				out[written] = b
				written++
			}
			d.storedRemaining -= take
			if d.storedRemaining > 0 {
				return written, false, nil
			}
			d.endBlock()
			return written, true, nil
		}

		sym, err := d.litDec.decode(d.br)
		if err != nil {
			return written, false, err
		}
		switch {
		case sym < 256:
			d.win.push(byte(sym))
			out[written] = byte(sym)
			written++
		case sym == 256:
			d.endBlock()
			// A block just closed cleanly: hand control back to the
			// caller so it can checkpoint here before we start the next
			// block (or report stream completion).
			return written, true, nil
		default:
			li := sym - 257
			if li < 0 || li >= len(lengthBase) {
				return written, false, ErrBadStream
			}
			extra, err := d.br.bits(uint(lengthExtraBits[li]))
			if err != nil {
				return written, false, err
			}
			length := lengthBase[li] + int(extra)

			distSym, err := d.distDec.decode(d.br)
			if err != nil {
				return written, false, err
			}
			if distSym < 0 || distSym >= len(distBase) {
				return written, false, ErrBadStream
			}
			dextra, err := d.br.bits(uint(distExtraBits[distSym]))
			if err != nil {
				return written, false, err
			}
			dist := distBase[distSym] + int(dextra)

			d.pending = pendingCopy{dist: dist, remaining: length}
		}
	}
	return written, d.atBoundary, nil
}

// startBlock reads a 3-bit block header and prepares litDec/distDec.
func (d *Decompressor) startBlock() error {
	final, err := d.br.bits(1)
	if err != nil {
		return err
	}
	d.final = final == 1

	typ, err := d.br.bits(2)
	if err != nil {
		return err
	}

	switch typ {
	case 0:
		d.kind = blockStored
		d.br.align()
		lo, err := d.br.readByteAligned()
		if err != nil {
			return err
		}
		hi, err := d.br.readByteAligned()
		if err != nil {
			return err
		}
		nlo, err := d.br.readByteAligned()
		if err != nil {
			return err
		}
		nhi, err := d.br.readByteAligned()
		if err != nil {
			return err
		}
		length := int(lo) | int(hi)<<8
		nlength := int(nlo) | int(nhi)<<8
		if length != nlength^0xffff {
			return fmt.Errorf("%w: stored block length check failed", ErrBadStream)
		}
		d.storedRemaining = length
	case 1:
		d.kind = blockFixed
		var err error
		d.litDec, err = newHuffmanDecoder(fixedLiteralLengths())
		if err != nil {
			return err
		}
		d.distDec, err = newHuffmanDecoder(fixedDistanceLengths())
		if err != nil {
			return err
		}
	case 2:
		d.kind = blockDynamic
		if err := d.readDynamicTables(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: reserved block type", ErrBadStream)
	}
	return nil
}

func (d *Decompressor) readDynamicTables() error {
	hlit, err := d.br.bits(5)
	if err != nil {
		return err
	}
	hdist, err := d.br.bits(5)
	if err != nil {
		return err
	}
	hclen, err := d.br.bits(4)
	if err != nil {
		return err
	}
	nlit := int(hlit) + 257
	ndist := int(hdist) + 1
	nclen := int(hclen) + 4

	clLengths := make([]int, 19)
	for i := 0; i < nclen; i++ {
		v, err := d.br.bits(3)
		if err != nil {
			return err
		}
		clLengths[codeLengthOrder[i]] = int(v)
	}
	clDec, err := newHuffmanDecoder(clLengths)
	if err != nil {
		return err
	}

	lengths := make([]int, nlit+ndist)
	for i := 0; i < len(lengths); {
		sym, err := clDec.decode(d.br)
		if err != nil {
			return err
		}
		switch {
		case sym < 16:
			lengths[i] = sym
			i++
		case sym == 16:
			if i == 0 {
				return fmt.Errorf("%w: repeat with no previous length", ErrBadStream)
			}
			rep, err := d.br.bits(2)
			if err != nil {
				return err
			}
			n := int(rep) + 3
			for j := 0; j < n && i < len(lengths); j++ {
				lengths[i] = lengths[i-1]
				i++
			}
		case sym == 17:
			rep, err := d.br.bits(3)
			if err != nil {
				return err
			}
			n := int(rep) + 3
			for j := 0; j < n && i < len(lengths); j++ {
				lengths[i] = 0
				i++
			}
		case sym == 18:
			rep, err := d.br.bits(7)
			if err != nil {
				return err
			}
			n := int(rep) + 11
			for j := 0; j < n && i < len(lengths); j++ {
				lengths[i] = 0
				i++
			}
		default:
			return fmt.Errorf("%w: invalid code length symbol", ErrBadStream)
		}
	}

	d.litDec, err = newHuffmanDecoder(lengths[:nlit])
	if err != nil {
		return err
	}
	d.distDec, err = newHuffmanDecoder(lengths[nlit:])
	if err != nil {
		return err
	}
	return nil
}

// endBlock clears per-block state; if the block just ended was final the
// stream is now fully consumed.
func (d *Decompressor) endBlock() {
	wasFinal := d.final
	d.kind = blockNone
	d.litDec = nil
	d.distDec = nil
	d.atBoundary = true
	if wasFinal {
		d.streamDone = true
	}
}
