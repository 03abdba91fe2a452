package deflate

import (
	"bufio"
	"fmt"
	"io"
)

// ContainerFormat identifies the outer framing around a raw DEFLATE stream.
type ContainerFormat int

const (
	FormatAuto ContainerFormat = iota
	FormatRaw
	FormatZlib
	FormatGzip
)

const (
	gzipMagic0 = 0x1f
	gzipMagic1 = 0x8b
)

// DetectFormat peeks at the stream's first bytes to tell gzip from zlib
// from raw deflate, mirroring zlib's own windowBits==47/auto-detect
// convention (negative windowBits = raw, 0 = auto, >0 = zlib; spec §4.1
// leaves container detection to the Inflater).
func DetectFormat(r *bufio.Reader) (ContainerFormat, error) {
	b, err := r.Peek(2)
	if err != nil {
		if err == io.EOF {
			return FormatRaw, nil
		}
		return FormatRaw, err
	}
	if b[0] == gzipMagic0 && b[1] == gzipMagic1 {
		return FormatGzip, nil
	}
	// zlib header: CMF/FLG, valid when (CMF*256+FLG) % 31 == 0 and the
	// compression method in the low nibble of CMF is 8 (deflate).
	if b[0]&0x0f == 8 && (int(b[0])*256+int(b[1]))%31 == 0 {
		return FormatZlib, nil
	}
	return FormatRaw, nil
}

// StripContainer consumes and discards the gzip or zlib header from r so
// the remaining bytes are a raw DEFLATE stream, returning the number of
// header bytes consumed (callers need this to translate a Decompressor's
// offset, which counts only from the start of the raw DEFLATE stream, back
// into an absolute file offset). Trailers (CRC32/ISIZE for gzip, Adler32
// for zlib) are left unread since indexing and random-access reads never
// need to parse the whole stream to its end.
func StripContainer(r *bufio.Reader, format ContainerFormat) (int64, error) {
	switch format {
	case FormatRaw:
		return 0, nil
	case FormatZlib:
		_, err := io.ReadFull(r, make([]byte, 2))
		return 2, err
	case FormatGzip:
		return stripGzipHeader(r)
	default:
		return 0, fmt.Errorf("deflate: unknown container format %d", format)
	}
}

const (
	gzipFlagText    = 1 << 0
	gzipFlagHCRC    = 1 << 1
	gzipFlagExtra   = 1 << 2
	gzipFlagName    = 1 << 3
	gzipFlagComment = 1 << 4
)

func stripGzipHeader(r *bufio.Reader) (int64, error) {
	var consumed int64
	hdr := make([]byte, 10)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return consumed, err
	}
	consumed += 10
	if hdr[0] != gzipMagic0 || hdr[1] != gzipMagic1 {
		return consumed, fmt.Errorf("%w: not a gzip stream", ErrBadStream)
	}
	if hdr[2] != 8 {
		return consumed, fmt.Errorf("%w: unsupported gzip compression method %d", ErrBadStream, hdr[2])
	}
	flags := hdr[3]

	if flags&gzipFlagExtra != 0 {
		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return consumed, err
		}
		consumed += 2
		extraLen := int(lenBuf[0]) | int(lenBuf[1])<<8
		if _, err := io.CopyN(io.Discard, r, int64(extraLen)); err != nil {
			return consumed, err
		}
		consumed += int64(extraLen)
	}
	if flags&gzipFlagName != 0 {
		n, err := skipCString(r)
		consumed += n
		if err != nil {
			return consumed, err
		}
	}
	if flags&gzipFlagComment != 0 {
		n, err := skipCString(r)
		consumed += n
		if err != nil {
			return consumed, err
		}
	}
	if flags&gzipFlagHCRC != 0 {
		if _, err := io.CopyN(io.Discard, r, 2); err != nil {
			return consumed, err
		}
		consumed += 2
	}
	return consumed, nil
}

func skipCString(r *bufio.Reader) (int64, error) {
	var n int64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return n, err
		}
		n++
		if b == 0 {
			return n, nil
		}
	}
}
