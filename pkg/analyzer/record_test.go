package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLineDerivesIOCategoryAndSizeBin(t *testing.T) {
	line := []byte(`{"name":"read","ph":"X","pid":1,"tid":2,"ts":5000000,"dur":1.5,"cat":"POSIX","args":{"ret":20000}}`)
	rec, ok, err := ParseLine(line, ParseOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "read", rec.FuncName)
	require.Equal(t, "posix", rec.Cat)
	require.Equal(t, string(ioRead), rec.IOCat)
	require.EqualValues(t, 20000, rec.Size)
	// getSizeBinIndex shifts one bin earlier than the raw edge match, so a
	// 20000-byte read (true range 16kib-64kib) lands in "4kib_16kib".
	require.Contains(t, rec.BinFields, SizeBinPrefix+"4kib_16kib")
}

func TestParseLineWriteCategory(t *testing.T) {
	line := []byte(`{"name":"write","ph":"X","pid":1,"tid":2,"ts":0,"dur":0.5,"cat":"POSIX","args":{"ret":100}}`)
	rec, ok, err := ParseLine(line, ParseOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, string(ioWrite), rec.IOCat)
}

func TestParseLineMetadataFunctionHasNoSize(t *testing.T) {
	line := []byte(`{"name":"open","ph":"X","pid":1,"tid":1,"ts":0,"dur":0.1,"cat":"POSIX","args":{"ret":3}}`)
	rec, ok, err := ParseLine(line, ParseOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, string(ioMetadata), rec.IOCat)
	require.Zero(t, rec.Size)
	require.Nil(t, rec.BinFields)
}

func TestParseLineNonPosixCategoryIsOther(t *testing.T) {
	line := []byte(`{"name":"compute","ph":"X","pid":1,"tid":1,"ts":0,"dur":3.0,"cat":"CPU","args":{}}`)
	rec, ok, err := ParseLine(line, ParseOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, string(ioOther), rec.IOCat)
}

func TestParseLineIgnoresKnownNoiseFunctions(t *testing.T) {
	line := []byte(`{"name":"DLIOBenchmark.__init__","ph":"X","pid":1,"tid":1,"ts":0,"dur":1.0,"cat":"POSIX","args":{}}`)
	_, ok, err := ParseLine(line, ParseOptions{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseLineIgnoresCheckpointPatterns(t *testing.T) {
	line := []byte(`{"name":"checkpoint_start_42","ph":"X","pid":1,"tid":1,"ts":0,"dur":1.0,"cat":"POSIX","args":{}}`)
	_, ok, err := ParseLine(line, ParseOptions{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseLineMetadataEventSkipsTimingFields(t *testing.T) {
	line := []byte(`{"name":"process_name","ph":"M","pid":1,"tid":0,"ts":0,"dur":0,"cat":"","args":{"name":"main"}}`)
	rec, ok, err := ParseLine(line, ParseOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "M", rec.Phase)
	require.Zero(t, rec.Time)
	require.Zero(t, rec.Count)
}

func TestParseLinePopulatesViewFieldsFromExtraColumns(t *testing.T) {
	line := []byte(`{"name":"read","ph":"X","pid":1,"tid":1,"ts":0,"dur":1.0,"cat":"POSIX","args":{"ret":100}}`)
	rec, ok, err := ParseLine(line, ParseOptions{
		ViewTypes:    []string{"proc_name", "file_name"},
		ExtraColumns: map[string]string{"proc_name": "trainer.0", "file_name": "data.bin"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "trainer.0", rec.ViewFields["proc_name"])
	require.Equal(t, "data.bin", rec.ViewFields["file_name"])
}

func TestParseLineRejectsMalformedJSON(t *testing.T) {
	_, _, err := ParseLine([]byte(`{not json`), ParseOptions{})
	require.Error(t, err)
}

func TestGetSizeBinIndexEdgeCases(t *testing.T) {
	require.Equal(t, 0, getSizeBinIndex(1))
	// The shift-one-bin-earlier convention folds the top edge into the
	// second-to-last suffix; the final suffix is never produced.
	require.Equal(t, len(sizeBinSuffixes)-2, getSizeBinIndex(1<<40))
}

func TestSetSizeBinsZeroIsAbsent(t *testing.T) {
	require.Nil(t, setSizeBins(0))
}

func TestPathIgnoredMatchesPatterns(t *testing.T) {
	require.True(t, PathIgnored("/usr/lib/python3/foo.py", DefaultIgnoredPathPatterns))
	require.False(t, PathIgnored("/home/user/data.bin", DefaultIgnoredPathPatterns))
}
