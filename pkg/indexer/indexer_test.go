package indexer

import (
	"bytes"
	"compress/gzip"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dftracer/dftracer-utils/internal/store"
)

// randomLines produces deterministic-enough pseudo-random JSONL content
// long enough to span several checkpoints at a small stride.
func randomLines(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		r, err := rand.Int(rand.Reader, big.NewInt(1<<20))
		require.NoError(t, err)
		fmt.Fprintf(&buf, `{"name":"write","ph":"X","pid":1,"tid":1,"ts":%d,"dur":2.5,"cat":"POSIX","args":{"ret":%d}}`, i, r.Int64())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeGzipFixture(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gw := gzip.NewWriter(f)
	_, err = gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return path
}

// TestBuildProducesExpectedTotals is spec §8 target 4/5: the sum of
// checkpoint uc_size/num_lines equals the file's total uncompressed size
// and line count.
func TestBuildProducesExpectedTotals(t *testing.T) {
	data := randomLines(t, 5000)
	gzPath := writeGzipFixture(t, data)
	idxPath := gzPath + ".idx"

	status, err := New(gzPath, idxPath, 16*1024, false).Build()
	require.NoError(t, err)
	require.Equal(t, StatusBuilt, status)

	st, err := store.Open(idxPath)
	require.NoError(t, err)
	defer st.Close()

	f, err := st.GetFileByLogicalName(gzPath)
	require.NoError(t, err)
	md, err := st.GetMetadata(f.ID)
	require.NoError(t, err)

	require.EqualValues(t, len(data), md.TotalUCSize)
	require.EqualValues(t, bytes.Count(data, []byte{'\n'}), md.TotalLines)

	maxBytes, err := st.QueryMaxUCBytes(f.ID)
	require.NoError(t, err)
	require.EqualValues(t, len(data), maxBytes)
}

// TestBuildIsIdempotent is spec §8 target 11: calling Build twice on an
// unchanged file performs no work the second time.
func TestBuildIsIdempotent(t *testing.T) {
	data := randomLines(t, 200)
	gzPath := writeGzipFixture(t, data)
	idxPath := gzPath + ".idx"

	status1, err := New(gzPath, idxPath, 16*1024, false).Build()
	require.NoError(t, err)
	require.Equal(t, StatusBuilt, status1)

	info1, err := os.Stat(idxPath)
	require.NoError(t, err)

	status2, err := New(gzPath, idxPath, 16*1024, false).Build()
	require.NoError(t, err)
	require.Equal(t, StatusAlreadyValid, status2)

	info2, err := os.Stat(idxPath)
	require.NoError(t, err)
	require.Equal(t, info1.ModTime(), info2.ModTime())
}

// TestBuildForceRebuildsEvenIfValid confirms forceRebuild bypasses the
// idempotence fast path.
func TestBuildForceRebuildsEvenIfValid(t *testing.T) {
	data := randomLines(t, 50)
	gzPath := writeGzipFixture(t, data)
	idxPath := gzPath + ".idx"

	_, err := New(gzPath, idxPath, 16*1024, false).Build()
	require.NoError(t, err)

	status, err := New(gzPath, idxPath, 16*1024, true).Build()
	require.NoError(t, err)
	require.Equal(t, StatusBuilt, status)
}

// TestBuildEmptyFile covers the zero-byte edge case: no checkpoints, zero
// totals.
func TestBuildEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.gz")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	idxPath := path + ".idx"

	_, err := New(path, idxPath, 16*1024, false).Build()
	require.NoError(t, err)

	st, err := store.Open(idxPath)
	require.NoError(t, err)
	defer st.Close()

	f, err := st.GetFileByLogicalName(path)
	require.NoError(t, err)
	md, err := st.GetMetadata(f.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, md.TotalUCSize)
	require.EqualValues(t, 0, md.TotalLines)
}

func TestDefaultIndexPath(t *testing.T) {
	require.Equal(t, "trace.gz.idx", DefaultIndexPath("trace.gz"))
}
