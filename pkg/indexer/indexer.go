// Package indexer scans a gzip-compressed trace file once, emitting a
// sidecar checkpoint index that a Reader can later use for random-access
// decompression (spec §4.3).
package indexer

import (
	"bytes"
	"fmt"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/dftracer/dftracer-utils/internal/store"
	"github.com/dftracer/dftracer-utils/pkg/inflate"
	"github.com/dftracer/dftracer-utils/pkg/log"
)

const buildBufferSize = 64 * 1024

// DefaultIndexPath returns the conventional sidecar index path for a gzip
// file, used by callers (CLIs, the analyzer) that do not track an explicit
// index location of their own.
func DefaultIndexPath(gzPath string) string {
	return gzPath + ".idx"
}

// BuildStatus reports what Build actually did.
type BuildStatus int

const (
	StatusBuilt BuildStatus = iota
	StatusAlreadyValid
)

// Indexer builds or validates the checkpoint index for one gzip file.
type Indexer struct {
	gzPath                string
	idxPath               string
	checkpointStrideBytes int64
	forceRebuild          bool
}

// New creates a handle; Build performs the actual work (spec §4.3,
// Indexer::new).
func New(gzPath, idxPath string, checkpointStrideBytes int64, forceRebuild bool) *Indexer {
	return &Indexer{
		gzPath:                gzPath,
		idxPath:               idxPath,
		checkpointStrideBytes: checkpointStrideBytes,
		forceRebuild:          forceRebuild,
	}
}

// Build constructs the index, or confirms an existing one is already valid
// for the current file contents.
func (ix *Indexer) Build() (BuildStatus, error) {
	st, err := store.Open(ix.idxPath)
	if err != nil {
		return 0, fmt.Errorf("indexer: open store: %w", err)
	}
	defer st.Close()

	if !ix.forceRebuild {
		valid, err := st.IsSchemaValid()
		if err != nil {
			return 0, fmt.Errorf("indexer: schema check: %w", err)
		}
		if valid {
			if matches, err := st.FileMatches(ix.gzPath, ix.gzPath); err == nil && matches {
				log.Debugf("indexer: %s already indexed and up to date", ix.gzPath)
				return StatusAlreadyValid, nil
			}
		}
	}

	byteSize, mtime, sha, err := store.ComputeFileIdentity(ix.gzPath)
	if err != nil {
		return 0, fmt.Errorf("indexer: hash %s: %w", ix.gzPath, err)
	}

	tx, err := st.Begin()
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := tx.Cleanup(ix.gzPath); err != nil {
		return 0, fmt.Errorf("indexer: cleanup stale index: %w", err)
	}

	fileID, err := tx.InsertFile(store.File{
		LogicalName: ix.gzPath,
		ByteSize:    byteSize,
		Mtime:       mtime,
		SHA256:      sha,
	})
	if err != nil {
		return 0, err
	}

	result, err := ix.scan(fileID, tx)
	if err != nil {
		return 0, fmt.Errorf("indexer: scan %s: %w", ix.gzPath, err)
	}

	if err := tx.InsertMetadata(store.Metadata{
		FileID:         fileID,
		CheckpointSize: ix.checkpointStrideBytes,
		TotalLines:     result.totalLines,
		TotalUCSize:    result.totalUCSize,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return StatusBuilt, nil
}

type scanResult struct {
	totalLines  int64
	totalUCSize int64
}

type pendingCheckpoint struct {
	idx         int64
	ucOffset    int64
	cOffset     int64
	bits        int
	primeByte   byte
	dict        []byte
	numLines    int64
	lastLineNum int64
}

// scan runs the iterative build algorithm of spec §4.3 steps 3-6.
func (ix *Indexer) scan(fileID int64, tx *store.Tx) (scanResult, error) {
	f, err := os.Open(ix.gzPath)
	if err != nil {
		return scanResult{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return scanResult{}, err
	}
	if info.Size() == 0 {
		// Edge case (a): empty file yields zero totals and no checkpoints.
		return scanResult{}, nil
	}

	inf := inflate.New()
	if err := inf.Initialize(f, 0, inflate.AutoDetect); err != nil {
		return scanResult{}, err
	}

	var (
		ucOffset        int64
		totalLines      int64
		checkpointIdx   int64
		lastCheckpoint  *pendingCheckpoint
		buf             = make([]byte, buildBufferSize)
		sinceCheckpoint int64
	)

	// flushCheckpoint inserts lastCheckpoint now that ucSize (its byte range)
	// is known: either the next checkpoint's uc_offset, or final ucOffset at
	// stream end (spec §4.3 step 6).
	flushCheckpoint := func(ucSize int64) error {
		if lastCheckpoint == nil {
			return nil
		}
		cp := store.Checkpoint{
			FileID:         fileID,
			CheckpointIdx:  lastCheckpoint.idx,
			UCOffset:       lastCheckpoint.ucOffset,
			UCSize:         ucSize,
			COffset:        lastCheckpoint.cOffset,
			CSize:          0,
			Bits:           lastCheckpoint.bits,
			PrimeByte:      lastCheckpoint.primeByte,
			DictCompressed: lastCheckpoint.dict,
			NumLines:       lastCheckpoint.numLines,
			LastLineNum:    lastCheckpoint.lastLineNum,
		}
		return tx.InsertCheckpoint(cp)
	}

	// The first checkpoint is always taken at uc_offset 0, before any block
	// has been decoded (spec §4.3 step 5, "this is the first checkpoint at
	// uc_offset = 0"): at this instant the window is all zero-padding and
	// the compressed offset is wherever the container header ended.
	initialDict, err := compressDictionary(inf.ExportWindow())
	if err != nil {
		return scanResult{}, err
	}
	lastCheckpoint = &pendingCheckpoint{
		idx:       0,
		ucOffset:  0,
		cOffset:   inf.CompressedOffset(),
		bits:      inf.LeftoverBits(),
		primeByte: inf.PrimeValue(),
		dict:      initialDict,
	}
	checkpointIdx = 1

	for {
		n, lines, atBoundary, err := inf.ReadAndCountLinesWithBlocks(buf)
		if n > 0 {
			ucOffset += int64(n)
			totalLines += int64(lines)
			sinceCheckpoint += int64(n)
			if lastCheckpoint != nil {
				lastCheckpoint.lastLineNum += int64(lines)
				lastCheckpoint.numLines += int64(lines)
			}
		}

		// Edge case (b): attempt a checkpoint only when the decoder sits at
		// a clean block boundary; otherwise state extraction isn't safe, so
		// skip silently and keep decoding.
		if atBoundary && !inf.Done() {
			if sinceCheckpoint >= ix.checkpointStrideBytes {
				if err := flushCheckpoint(ucOffset - lastCheckpoint.ucOffset); err != nil {
					return scanResult{}, err
				}

				dict, compErr := compressDictionary(inf.ExportWindow())
				if compErr != nil {
					return scanResult{}, compErr
				}
				lastCheckpoint = &pendingCheckpoint{
					idx:         checkpointIdx,
					ucOffset:    ucOffset,
					cOffset:     inf.CompressedOffset(),
					bits:        inf.LeftoverBits(),
					primeByte:   inf.PrimeValue(),
					dict:        dict,
					numLines:    0,
					lastLineNum: totalLines,
				}
				checkpointIdx++
				sinceCheckpoint = 0
			}
		}

		if err != nil {
			if inf.Done() {
				break
			}
			return scanResult{}, err
		}
		if inf.Done() {
			break
		}
	}

	finalUCOffset := int64(0)
	if lastCheckpoint != nil {
		finalUCOffset = lastCheckpoint.ucOffset
	}
	if err := flushCheckpoint(ucOffset - finalUCOffset); err != nil {
		return scanResult{}, err
	}

	return scanResult{totalLines: totalLines, totalUCSize: ucOffset}, nil
}

// compressDictionary best-compresses a 32 KiB checkpoint window before it
// is stored (spec §3, "Stored compressed").
func compressDictionary(window []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(window); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
