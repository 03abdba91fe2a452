package reader

import (
	"bytes"
	"io"
	"os"

	"github.com/dftracer/dftracer-utils/pkg/inflate"
)

// rangeStream is the resumable cursor backing Read: it decodes [start, end)
// of the uncompressed stream, letting the caller pull it in arbitrarily
// sized chunks across repeated calls (spec §4.4, "may be called repeatedly
// until zero is returned").
type rangeStream struct {
	start, end int64
	pos        int64
	inf        *inflate.Inflater
	file       *os.File
	exhausted  bool
}

func (s *rangeStream) close() {
	if s.file != nil {
		s.file.Close()
	}
}

// Read implements spec §4.4's `read(start_bytes, end_bytes, buf)`.
func (r *Reader) Read(start, end int64, buf []byte) (int, error) {
	if start < 0 || end < start {
		return 0, invalidArg("invalid byte range [%d, %d)", start, end)
	}
	maxBytes, err := r.GetMaxBytes()
	if err != nil {
		return 0, err
	}
	if end > maxBytes {
		end = maxBytes
	}
	if start >= end || len(buf) == 0 {
		return 0, nil
	}

	if r.raw == nil || r.raw.start != start || r.raw.end != end {
		if r.raw != nil {
			r.raw.close()
		}
		inf, f, err := r.openAt(start)
		if err != nil {
			return 0, err
		}
		r.raw = &rangeStream{start: start, end: end, pos: start, inf: inf, file: f}
	}

	s := r.raw
	if s.exhausted || s.pos >= s.end {
		s.exhausted = true
		return 0, nil
	}

	want := int64(len(buf))
	if remain := s.end - s.pos; want > remain {
		want = remain
	}
	n, err := s.inf.Read(buf[:want])
	s.pos += int64(n)
	if err != nil && err != io.EOF {
		s.exhausted = true
		return n, decoderErr("read byte range", err)
	}
	if s.pos >= s.end || err == io.EOF {
		s.exhausted = true
	}
	return n, nil
}

// lineStream backs ReadLineBytes: a rangeStream plus a buffer of decoded
// bytes not yet flushed because they don't end on a '\n' boundary.
type lineStream struct {
	rs      rangeStream
	pending []byte
}

func (s *lineStream) close() { s.rs.close() }

// snapToLineBoundary implements spec §4.4's initial lookback (up to 512
// bytes before start) so read_line_bytes's first call begins at the start
// of the line containing byte start, not mid-line.
func (r *Reader) snapToLineBoundary(start int64) (int64, error) {
	if start == 0 {
		return 0, nil
	}
	lookback := int64(backwardLookback)
	from := start - lookback
	if from < 0 {
		from = 0
	}

	buf := make([]byte, start-from)
	n, err := r.readRawOnce(from, start, buf)
	if err != nil {
		return 0, err
	}
	buf = buf[:n]

	if idx := bytes.LastIndexByte(buf, '\n'); idx >= 0 {
		return from + int64(idx) + 1, nil
	}
	// No newline found within the lookback window: snap all the way back
	// to the start of this window (best effort, matching the bounded
	// lookback spec describes).
	return from, nil
}

// readRawOnce performs a single self-contained decompression of [start,
// end) into buf, for one-shot helpers (the lookback scan, ReadLines) that
// don't need the resumable rangeStream's repeated-call bookkeeping.
func (r *Reader) readRawOnce(start, end int64, buf []byte) (int, error) {
	if start >= end {
		return 0, nil
	}
	inf, f, err := r.openAt(start)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	total := 0
	want := end - start
	for int64(total) < want {
		chunk := buf[total:]
		if int64(len(chunk)) > want-int64(total) {
			chunk = chunk[:want-int64(total)]
		}
		n, err := inf.Read(chunk)
		total += n
		if err != nil {
			if err == io.EOF {
				break
			}
			return total, decoderErr("read byte range", err)
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// ReadLineBytes implements spec §4.4's `read_line_bytes`: like Read, but
// the returned data always ends on a '\n'; a trailing partial line is kept
// back to prepend to the next call's output. A partial line left when the
// range is exhausted is dropped, since the next range's lookback starts at
// that line, except at the end of the file, where it is returned as is. A
// single line longer than buf is returned in buf-sized pieces.
func (r *Reader) ReadLineBytes(start, end int64, buf []byte) (int, error) {
	if start < 0 || end < start {
		return 0, invalidArg("invalid byte range [%d, %d)", start, end)
	}
	maxBytes, err := r.GetMaxBytes()
	if err != nil {
		return 0, err
	}
	if end > maxBytes {
		end = maxBytes
	}
	if start >= end || len(buf) == 0 {
		return 0, nil
	}

	if r.line == nil || r.line.rs.start != start || r.line.rs.end != end {
		if r.line != nil {
			r.line.close()
		}
		snapped, err := r.snapToLineBoundary(start)
		if err != nil {
			return 0, err
		}
		inf, f, err := r.openAt(snapped)
		if err != nil {
			return 0, err
		}
		r.line = &lineStream{rs: rangeStream{start: start, end: end, pos: snapped, inf: inf, file: f}}
	}

	ls := r.line
	const readChunk = 64 * 1024
	chunk := make([]byte, readChunk)

	for !ls.rs.exhausted && bytes.LastIndexByte(ls.pending, '\n') < 0 {
		remain := ls.rs.end - ls.rs.pos
		if remain <= 0 {
			ls.rs.exhausted = true
			break
		}
		want := int64(len(chunk))
		if want > remain {
			want = remain
		}
		n, err := ls.rs.inf.Read(chunk[:want])
		if n > 0 {
			ls.pending = append(ls.pending, chunk[:n]...)
			ls.rs.pos += int64(n)
		}
		if err != nil {
			ls.rs.exhausted = true
			if err != io.EOF {
				return 0, decoderErr("read line-bounded byte range", err)
			}
			break
		}
		if n == 0 {
			ls.rs.exhausted = true
			break
		}
		if ls.rs.pos >= ls.rs.end {
			ls.rs.exhausted = true
		}
	}

	if len(ls.pending) == 0 {
		return 0, nil
	}

	cut := len(ls.pending)
	if idx := bytes.LastIndexByte(ls.pending, '\n'); idx >= 0 {
		cut = idx + 1
	} else if ls.rs.end < maxBytes {
		// Only a partial line is left and the range is exhausted: the next
		// range's lookback snaps back to that line's start and returns it.
		ls.pending = nil
		return 0, nil
	}
	if cut > len(buf) {
		cut = len(buf)
		if idx := bytes.LastIndexByte(ls.pending[:cut], '\n'); idx >= 0 {
			cut = idx + 1
		}
	}

	n := copy(buf, ls.pending[:cut])
	ls.pending = append([]byte(nil), ls.pending[n:]...)
	return n, nil
}

// ReadLines implements spec §4.4's `read_lines(sl, el)`.
func (r *Reader) ReadLines(startLine, endLine int64) ([]byte, error) {
	if startLine < 1 || endLine < startLine {
		return nil, invalidArg("invalid line range [%d, %d]", startLine, endLine)
	}

	cps, err := r.st.GetCheckpointsByLineRange(r.fileID, startLine, endLine)
	if err != nil {
		return nil, storeErr("get checkpoints by line range", err)
	}

	var startByte, firstLineOfRange int64
	if len(cps) == 0 {
		startByte = 0
		firstLineOfRange = 1
	} else {
		first := cps[0]
		if first.CheckpointIdx != 0 {
			prev, err := r.st.FindCheckpoint(r.fileID, first.UCOffset-1)
			if err != nil {
				return nil, storeErr("find checkpoint preceding line range", err)
			}
			startByte = prev.UCOffset
			firstLineOfRange = prev.LastLineNum - prev.NumLines + 1
		} else {
			startByte = first.UCOffset
			firstLineOfRange = first.LastLineNum - first.NumLines + 1
		}
	}

	return r.readLinesFromByte(startByte, firstLineOfRange, startLine, endLine)
}

// readLinesFromByte decodes forward from startByte (whose first
// decompressed byte is line firstLineOfRange) until endLine has been fully
// seen, returning exactly the bytes of lines [startLine, endLine].
func (r *Reader) readLinesFromByte(startByte, firstLineOfRange, startLine, endLine int64) ([]byte, error) {
	inf, f, err := r.openAt(startByte)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out bytes.Buffer
	line := firstLineOfRange
	var startOffset = -1
	if startLine <= firstLineOfRange {
		startOffset = 0
	}

	chunk := make([]byte, 64*1024)
	for {
		n, err := inf.Read(chunk)
		if n > 0 {
			base := out.Len()
			out.Write(chunk[:n])
			for i, b := range chunk[:n] {
				if b != '\n' {
					continue
				}
				line++
				if startOffset < 0 && line == startLine {
					startOffset = base + i + 1
				}
				if line == endLine+1 {
					if startOffset < 0 {
						startOffset = 0
					}
					return append([]byte(nil), out.Bytes()[startOffset:base+i+1]...), nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, decoderErr("read lines", err)
		}
		if n == 0 {
			break
		}
	}

	if startOffset < 0 {
		startOffset = 0
	}
	return append([]byte(nil), out.Bytes()[startOffset:]...), nil
}
