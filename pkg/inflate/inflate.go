// Package inflate exposes the checkpoint-aware gzip/zlib/raw-deflate
// decoder (internal/deflate) as a stateful session bound to an open file,
// matching the contract the Indexer and Reader build on top of.
package inflate

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dftracer/dftracer-utils/internal/deflate"
)

const inputBufferSize = 64 * 1024

// WindowBits mirrors zlib's windowBits convention: 0 auto-detects framing
// from the stream's first bytes, a positive value forces zlib framing, a
// negative value forces raw deflate (no container).
type WindowBits int

const (
	AutoDetect WindowBits = 0
	Zlib       WindowBits = 15
	Raw        WindowBits = -15
)

// Inflater is a stateful streaming decoder over one open file. It owns the
// file's read cursor from Initialize onward: nothing else may seek or read
// from the underlying *os.File while an Inflater session is live.
type Inflater struct {
	file       *os.File
	br         *bufio.Reader
	dec        *deflate.Decompressor
	baseOffset int64 // file offset at which the raw deflate stream begins
}

// New constructs an unstarted Inflater; call Initialize before any read.
func New() *Inflater {
	return &Inflater{}
}

// Initialize opens a decode session on file positioned at compressedOffset,
// with framing selected by windowBits. Only this Inflater may advance
// file's cursor from this point on.
func (inf *Inflater) Initialize(file *os.File, compressedOffset int64, windowBits WindowBits) error {
	if _, err := file.Seek(compressedOffset, io.SeekStart); err != nil {
		return fmt.Errorf("inflate: seek to %d: %w", compressedOffset, err)
	}
	inf.file = file
	inf.br = bufio.NewReaderSize(file, inputBufferSize)
	inf.baseOffset = compressedOffset

	format, err := inf.resolveFormat(windowBits)
	if err != nil {
		return err
	}
	headerLen, err := deflate.StripContainer(inf.br, format)
	if err != nil {
		return fmt.Errorf("inflate: strip container header: %w", err)
	}
	inf.baseOffset += headerLen

	inf.dec = deflate.NewDecompressor(inf.br)
	return nil
}

func (inf *Inflater) resolveFormat(windowBits WindowBits) (deflate.ContainerFormat, error) {
	switch {
	case windowBits == AutoDetect:
		return deflate.DetectFormat(inf.br)
	case windowBits < 0:
		return deflate.FormatRaw, nil
	default:
		return deflate.FormatZlib, nil
	}
}

// Prime re-primes the decoder with fractional leftover bits recorded at a
// checkpoint boundary.
func (inf *Inflater) Prime(bits int, value byte) {
	inf.dec.Prime(bits, value)
}

// SetDictionary installs the 32 KiB history window recorded at a
// checkpoint, so the first back-reference after Initialize can resolve.
func (inf *Inflater) SetDictionary(window []byte) {
	inf.dec.SetDictionary(window)
}

// Read decompresses into out until it is full or the stream ends,
// returning the number of bytes produced. err is io.EOF once the stream is
// fully consumed, exactly as with io.Reader.
func (inf *Inflater) Read(out []byte) (int, error) {
	n, _, err := inf.fill(out, false)
	return n, err
}

// ReadAndCountLines behaves like Read but also reports how many '\n' bytes
// were produced, sparing the Indexer a second pass over the buffer.
func (inf *Inflater) ReadAndCountLines(out []byte) (n int, lines int, err error) {
	n, _, err = inf.fill(out, false)
	lines = bytes.Count(out[:n], []byte{'\n'})
	return n, lines, err
}

// ReadAndCountLinesWithBlocks behaves like ReadAndCountLines but also stops
// as soon as the decoder reaches a clean DEFLATE block boundary, reporting
// it via atBoundary so the Indexer can test whether this is a safe point to
// snapshot a checkpoint (spec §4.3 step 5).
func (inf *Inflater) ReadAndCountLinesWithBlocks(out []byte) (n int, lines int, atBoundary bool, err error) {
	n, atBoundary, err = inf.fill(out, true)
	lines = bytes.Count(out[:n], []byte{'\n'})
	return n, lines, atBoundary, err
}

// fill drives Decompressor.Step until out is full, the stream ends, an
// error occurs, or (when stopAtBoundary) a block boundary is reached.
func (inf *Inflater) fill(out []byte, stopAtBoundary bool) (n int, atBoundary bool, err error) {
	for n < len(out) {
		written, boundary, stepErr := inf.dec.Step(out[n:])
		n += written
		if boundary {
			atBoundary = true
		}
		if stepErr != nil {
			return n, atBoundary, stepErr
		}
		if stopAtBoundary && boundary {
			return n, atBoundary, nil
		}
		if written == 0 {
			// Nothing produced and no error and no boundary: decoder made
			// internal progress only (e.g. consumed a header). Keep going
			// rather than spin; Step always advances some state per call.
			continue
		}
	}
	return n, atBoundary, nil
}

// Skip decompresses and discards n bytes.
func (inf *Inflater) Skip(n int64) error {
	var scratch [32 * 1024]byte
	for n > 0 {
		want := int64(len(scratch))
		if n < want {
			want = n
		}
		got, err := inf.Read(scratch[:want])
		n -= int64(got)
		if err != nil {
			if err == io.EOF && n <= 0 {
				return nil
			}
			return fmt.Errorf("inflate: skip: %w", err)
		}
		if got == 0 {
			return fmt.Errorf("inflate: skip: stream ended with %d bytes remaining", n)
		}
	}
	return nil
}

// Done reports whether the underlying stream has been fully decoded.
func (inf *Inflater) Done() bool { return inf.dec.Done() }

// AtBlockBoundary reports whether the decoder currently sits at a safe
// checkpoint point.
func (inf *Inflater) AtBlockBoundary() bool { return inf.dec.AtBlockBoundary() }

// CompressedOffset returns the absolute file offset consumed so far,
// before accounting for any leftover bits (Checkpoint.c_offset).
func (inf *Inflater) CompressedOffset() int64 {
	return inf.baseOffset + inf.dec.CompressedOffset()
}

// LeftoverBits returns the 0-7 leftover bits at the current position
// (Checkpoint.bits).
func (inf *Inflater) LeftoverBits() int { return inf.dec.LeftoverBits() }

// PrimeValue returns the leftover-bits byte (Checkpoint.prime_byte) a
// caller must save alongside LeftoverBits() to later Prime a fresh
// Inflater and resume decoding from this exact position.
func (inf *Inflater) PrimeValue() byte { return inf.dec.PrimeValue() }

// ExportWindow returns the current 32 KiB history window, for storing as a
// checkpoint's dictionary.
func (inf *Inflater) ExportWindow() []byte { return inf.dec.ExportWindow() }
