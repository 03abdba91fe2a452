package inflate

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeGzipFile(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "inflate-*.gz")
	require.NoError(t, err)
	defer f.Close()

	gw := gzip.NewWriter(f)
	_, err = gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return f.Name()
}

func sampleTraceData(lines int) []byte {
	var buf bytes.Buffer
	for i := 0; i < lines; i++ {
		buf.WriteString(`{"name":"read","ph":"X","pid":1,"tid":1,"ts":`)
		buf.WriteString("0")
		buf.WriteString(`,"dur":1.0,"cat":"POSIX","args":{"ret":4096}}`)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// TestReadFullStreamMatchesGzip is the base case behind spec §8 target 1:
// a full linear Read through the Inflater reproduces exactly what
// compress/gzip itself would decompress.
func TestReadFullStreamMatchesGzip(t *testing.T) {
	want := sampleTraceData(200)
	path := writeGzipFile(t, want)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	inf := New()
	require.NoError(t, inf.Initialize(f, 0, AutoDetect))

	var got bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := inf.Read(buf)
		got.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	require.Equal(t, want, got.Bytes())
	require.True(t, inf.Done())
}

// TestSkipThenReadMatchesTail verifies Skip behaves like discarding a
// prefix of the decompressed stream.
func TestSkipThenReadMatchesTail(t *testing.T) {
	want := sampleTraceData(50)
	path := writeGzipFile(t, want)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	inf := New()
	require.NoError(t, inf.Initialize(f, 0, AutoDetect))

	const skipN = 100
	require.NoError(t, inf.Skip(skipN))

	rest, err := io.ReadAll(readerFunc(func(p []byte) (int, error) { return inf.Read(p) }))
	require.NoError(t, err)
	require.Equal(t, want[skipN:], rest)
}

// TestExportImportWindowResumesDecoding is the core of spec §4.1/§4.3's
// checkpointing contract: exporting the window/leftover bits at some
// compressed offset and re-initializing a fresh Inflater there, primed
// with that state, reproduces the same remaining bytes as continuing the
// original session would.
func TestExportImportWindowResumesDecoding(t *testing.T) {
	want := sampleTraceData(500)
	path := writeGzipFile(t, want)

	f1, err := os.Open(path)
	require.NoError(t, err)
	defer f1.Close()

	inf1 := New()
	require.NoError(t, inf1.Initialize(f1, 0, AutoDetect))

	// Decode roughly half, landing wherever the decoder next reports a
	// block boundary so the checkpoint is valid to resume from.
	buf := make([]byte, 1)
	var produced bytes.Buffer
	target := len(want) / 2
	for {
		n, lines, atBoundary, err := inf1.ReadAndCountLinesWithBlocks(buf)
		_ = lines
		produced.Write(buf[:n])
		if produced.Len() >= target && atBoundary && inf1.AtBlockBoundary() {
			break
		}
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	compressedOffset := inf1.CompressedOffset()
	leftoverBits := inf1.LeftoverBits()
	primeValue := inf1.PrimeValue()
	window := append([]byte(nil), inf1.ExportWindow()...)

	// Drain the rest from the original session for comparison.
	rest1, err := io.ReadAll(readerFunc(func(p []byte) (int, error) { return inf1.Read(p) }))
	require.NoError(t, err)

	f2, err := os.Open(path)
	require.NoError(t, err)
	defer f2.Close()

	inf2 := New()
	require.NoError(t, inf2.Initialize(f2, compressedOffset, Raw))
	if leftoverBits > 0 {
		inf2.Prime(leftoverBits, primeValue)
	}
	inf2.SetDictionary(window)

	rest2, err := io.ReadAll(readerFunc(func(p []byte) (int, error) { return inf2.Read(p) }))
	require.NoError(t, err)

	require.Equal(t, rest1, rest2)
	require.Equal(t, want[produced.Len():], rest1)
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
