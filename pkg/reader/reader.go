// Package reader provides indexed random-access decompression over a gzip
// file indexed by pkg/indexer: given a byte or line range, it locates the
// nearest checkpoint, resumes decompression from there, and streams bytes
// or line-bounded bytes into caller buffers (spec §4.4).
package reader

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/dftracer/dftracer-utils/internal/store"
	"github.com/dftracer/dftracer-utils/pkg/inflate"
)

const backwardLookback = 512

// Reader is constructed against one indexed gzip file. It is not safe for
// concurrent use by multiple goroutines — like the Inflater it wraps, a
// Reader owns private stream state across calls.
type Reader struct {
	gzPath string
	st     *store.Store
	ownSt  bool
	fileID int64
	stride int64

	raw  *rangeStream
	line *lineStream
}

// New opens (or creates) the sidecar index at idxPath and constructs a
// Reader over gzPath. The Reader owns the Store and closes it in Close.
func New(gzPath, idxPath string) (*Reader, error) {
	st, err := store.Open(idxPath)
	if err != nil {
		return nil, storeErr("open index", err)
	}
	r, err := NewWithStore(gzPath, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	r.ownSt = true
	return r, nil
}

// NewWithStore builds a Reader sharing an already-open Store — e.g. an
// Indexer's store reused across many Readers in an analyzer run. The
// caller retains ownership of st and must Close it itself.
func NewWithStore(gzPath string, st *store.Store) (*Reader, error) {
	f, err := st.GetFileByLogicalName(gzPath)
	if err != nil {
		return nil, storeErr(fmt.Sprintf("no index for %s", gzPath), err)
	}
	md, err := st.GetMetadata(f.ID)
	if err != nil {
		return nil, storeErr(fmt.Sprintf("no metadata for %s", gzPath), err)
	}
	return &Reader{gzPath: gzPath, st: st, fileID: f.ID, stride: md.CheckpointSize}, nil
}

// Close releases the Reader's store handle (only if this Reader opened it)
// and any open streaming file handles.
func (r *Reader) Close() error {
	r.Reset()
	if r.ownSt {
		return r.st.Close()
	}
	return nil
}

// Reset discards any in-flight stream state (spec §4.4, reset()).
func (r *Reader) Reset() {
	if r.raw != nil {
		r.raw.close()
		r.raw = nil
	}
	if r.line != nil {
		r.line.close()
		r.line = nil
	}
}

// GetMaxBytes returns the file's total uncompressed size.
func (r *Reader) GetMaxBytes() (int64, error) {
	n, err := r.st.QueryMaxUCBytes(r.fileID)
	if err != nil {
		return 0, storeErr("query max uc bytes", err)
	}
	return n, nil
}

// GetNumLines returns the file's total line count.
func (r *Reader) GetNumLines() (int64, error) {
	md, err := r.st.GetMetadata(r.fileID)
	if err != nil {
		return 0, storeErr("query total lines", err)
	}
	return md.TotalLines, nil
}

// findCheckpoint implements spec §4.4 step 1: the checkpoint with the
// largest uc_offset <= target, collapsing anything inside the
// first-checkpoint zone (target < stride) to checkpoint 0.
func (r *Reader) findCheckpoint(target int64) (*store.Checkpoint, error) {
	if target < r.stride {
		cp, err := r.st.FindCheckpoint(r.fileID, 0)
		if err != nil {
			return nil, storeErr("find checkpoint 0", err)
		}
		return cp, nil
	}
	cp, err := r.st.FindCheckpoint(r.fileID, target)
	if err != nil {
		return nil, storeErr(fmt.Sprintf("find checkpoint for offset %d", target), err)
	}
	return cp, nil
}

// decompressDictionary inverts the Indexer's compressDictionary (spec §3,
// "Stored compressed").
func decompressDictionary(compressed []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := fr.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// resumeAt opens gzPath, seeks to cp's compressed offset, and returns an
// Inflater primed and dictionary-seeded to resume decoding exactly at
// cp.UCOffset (spec §4.4 step 2). The caller owns the returned file handle.
func (r *Reader) resumeAt(cp *store.Checkpoint) (*inflate.Inflater, *os.File, error) {
	f, err := os.Open(r.gzPath)
	if err != nil {
		return nil, nil, decoderErr("open gzip file", err)
	}

	inf := inflate.New()
	if err := inf.Initialize(f, cp.COffset, inflate.Raw); err != nil {
		f.Close()
		return nil, nil, decoderErr("resume at checkpoint", err)
	}
	if cp.Bits > 0 {
		inf.Prime(cp.Bits, cp.PrimeByte)
	}
	dict, err := decompressDictionary(cp.DictCompressed)
	if err != nil {
		f.Close()
		return nil, nil, decoderErr("decompress checkpoint dictionary", err)
	}
	inf.SetDictionary(dict)
	return inf, f, nil
}

// openAt resumes decoding from the checkpoint at-or-before ucOffset and
// skips forward to land exactly at ucOffset (spec §4.4 steps 1-3).
func (r *Reader) openAt(ucOffset int64) (*inflate.Inflater, *os.File, error) {
	cp, err := r.findCheckpoint(ucOffset)
	if err != nil {
		return nil, nil, err
	}
	inf, f, err := r.resumeAt(cp)
	if err != nil {
		return nil, nil, err
	}
	if skip := ucOffset - cp.UCOffset; skip > 0 {
		if err := inf.Skip(skip); err != nil {
			f.Close()
			return nil, nil, decoderErr("skip to requested offset", err)
		}
	}
	return inf, f, nil
}
