package reader

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dftracer/dftracer-utils/pkg/indexer"
)

func writeGzipTrace(t *testing.T, data []byte) string {
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

func numberedLines(n int) []byte {
	var buf bytes.Buffer
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&buf, "line-%04d-the-quick-brown-fox-jumps\n", i)
	}
	return buf.Bytes()
}

func buildIndexed(t *testing.T, data []byte, stride int64) (gzPath, idxPath string) {
	t.Helper()
	gzPath = writeGzipTrace(t, data)
	idxPath = gzPath + ".idx"
	_, err := indexer.New(gzPath, idxPath, stride, false).Build()
	require.NoError(t, err)
	return gzPath, idxPath
}

// TestReadMatchesLinearDecompression is spec §8 target 1: Read(S,E) over an
// indexed file matches a full linear decompression of the same range.
func TestReadMatchesLinearDecompression(t *testing.T) {
	data := numberedLines(3000)
	gzPath, idxPath := buildIndexed(t, data, 8*1024)

	r, err := New(gzPath, idxPath)
	require.NoError(t, err)
	defer r.Close()

	start, end := int64(12345), int64(54321)
	var got bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(start, end, buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got.Write(buf[:n])
		start += int64(n)
	}

	require.Equal(t, data[12345:54321], got.Bytes())
}

// TestReadLinesMatchesLinearDecompression is spec §8 target 2: ReadLines
// matches splitting the full linear decompression on newlines.
func TestReadLinesMatchesLinearDecompression(t *testing.T) {
	data := numberedLines(500)
	gzPath, idxPath := buildIndexed(t, data, 4*1024)

	r, err := New(gzPath, idxPath)
	require.NoError(t, err)
	defer r.Close()

	allLines := bytes.SplitAfter(data, []byte{'\n'})
	// SplitAfter leaves a trailing empty slice after the final separator.
	allLines = allLines[:len(allLines)-1]

	want := bytes.Join(allLines[99:200], nil)
	got, err := r.ReadLines(100, 200)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestReopenAfterResetProducesIdenticalBytes is spec §8 target 3: deleting
// in-flight stream state and reading again produces identical bytes.
func TestReopenAfterResetProducesIdenticalBytes(t *testing.T) {
	data := numberedLines(1000)
	gzPath, idxPath := buildIndexed(t, data, 16*1024)

	r, err := New(gzPath, idxPath)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 8192)
	n1, err := r.Read(1000, 9000, buf)
	require.NoError(t, err)
	first := append([]byte(nil), buf[:n1]...)

	r.Reset()

	n2, err := r.Read(1000, 9000, buf)
	require.NoError(t, err)
	second := append([]byte(nil), buf[:n2]...)

	require.Equal(t, first, second)
}

// TestCheckpointTotalsMatchFile is spec §8 targets 4/5: checkpoint-derived
// totals equal the file's true uncompressed size and line count.
func TestCheckpointTotalsMatchFile(t *testing.T) {
	data := numberedLines(2000)
	gzPath, idxPath := buildIndexed(t, data, 32*1024)

	r, err := New(gzPath, idxPath)
	require.NoError(t, err)
	defer r.Close()

	maxBytes, err := r.GetMaxBytes()
	require.NoError(t, err)
	require.EqualValues(t, len(data), maxBytes)

	numLines, err := r.GetNumLines()
	require.NoError(t, err)
	require.EqualValues(t, bytes.Count(data, []byte{'\n'}), numLines)
}

// TestScenarioESmallFile is spec §8 scenario E: a 100-line gzip file where
// ReadLines(1,100) reproduces the whole file and ReadLines(50,50) returns
// exactly line 50.
func TestScenarioESmallFile(t *testing.T) {
	data := numberedLines(100)
	gzPath, idxPath := buildIndexed(t, data, 4*1024)

	r, err := New(gzPath, idxPath)
	require.NoError(t, err)
	defer r.Close()

	full, err := r.ReadLines(1, 100)
	require.NoError(t, err)
	require.Equal(t, data, full)

	allLines := bytes.SplitAfter(data, []byte{'\n'})
	allLines = allLines[:len(allLines)-1]

	line50, err := r.ReadLines(50, 50)
	require.NoError(t, err)
	require.Equal(t, allLines[49], line50)
}

// TestReadLineBytesIsResumable confirms ReadLineBytes must be called
// repeatedly until it returns zero, and that concatenating every call's
// output reproduces the full line-bounded range with no duplication or
// loss at partition boundaries.
func TestReadLineBytesIsResumable(t *testing.T) {
	data := numberedLines(5000)
	gzPath, idxPath := buildIndexed(t, data, 16*1024)

	r, err := New(gzPath, idxPath)
	require.NoError(t, err)
	defer r.Close()

	start, end := int64(20000), int64(90000)
	var got bytes.Buffer
	chunk := make([]byte, 3000)
	calls := 0
	for {
		n, err := r.ReadLineBytes(start, end, chunk)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got.Write(chunk[:n])
		calls++
		require.Less(t, calls, 100000, "ReadLineBytes did not terminate")
	}

	require.Greater(t, calls, 1, "expected the range to require multiple ReadLineBytes calls")
	require.True(t, bytes.HasSuffix(got.Bytes(), []byte{'\n'}))

	// The returned bytes must be line-aligned: every line present in full.
	for _, line := range bytes.SplitAfter(got.Bytes(), []byte{'\n'})[:bytes.Count(got.Bytes(), []byte{'\n'})] {
		require.True(t, bytes.Contains(data, line))
	}
}
