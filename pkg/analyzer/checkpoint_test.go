package analyzer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleMetrics() []HighLevelMetrics {
	m1 := newHighLevelMetrics(map[string]string{"proc_name": "trainer.0"})
	m1.TimeSum = 1.5
	m1.CountSum = 3
	m1.SizeSum = 4096
	m1.BinSums["size_bin_0_4kib"] = 2
	m1.UniqueSets["file_name"] = map[string]struct{}{"a.bin": {}, "b.bin": {}}

	m2 := newHighLevelMetrics(map[string]string{"proc_name": "trainer.1"})
	m2.TimeSum = 2.5
	m2.CountSum = 1
	m2.SizeSum = 8192

	return []HighLevelMetrics{*m1, *m2}
}

func requireMetricsEqual(t *testing.T, want, got []HighLevelMetrics) {
	t.Helper()
	require.Len(t, got, len(want))

	byGroup := func(ms []HighLevelMetrics) map[string]HighLevelMetrics {
		out := make(map[string]HighLevelMetrics, len(ms))
		for _, m := range ms {
			out[m.GroupValues["proc_name"]] = m
		}
		return out
	}
	wantByGroup := byGroup(want)
	gotByGroup := byGroup(got)

	for k, w := range wantByGroup {
		g, ok := gotByGroup[k]
		require.True(t, ok, "missing group %s", k)
		require.Equal(t, w.TimeSum, g.TimeSum)
		require.Equal(t, w.CountSum, g.CountSum)
		require.Equal(t, w.SizeSum, g.SizeSum)
		require.Equal(t, w.BinSums, g.BinSums)
		for field, set := range w.UniqueSets {
			require.Equal(t, set, g.UniqueSets[field])
		}
	}
}

func TestFSCheckpointBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend := &FSCheckpointBackend{Dir: dir}

	name := "chk1"
	done, err := backend.Completed(name)
	require.NoError(t, err)
	require.False(t, done)

	want := sampleMetrics()
	require.NoError(t, backend.SaveView(name, "proc_name", want))

	got, err := backend.LoadView(name, "proc_name")
	require.NoError(t, err)
	requireMetricsEqual(t, want, got)

	require.NoError(t, backend.Finalize(name))
	done, err = backend.Completed(name)
	require.NoError(t, err)
	require.True(t, done)
}

func TestFSCheckpointBackendLoadMissingViewErrors(t *testing.T) {
	backend := &FSCheckpointBackend{Dir: t.TempDir()}
	_, err := backend.LoadView("missing", "proc_name")
	require.Error(t, err)
}

func TestSQLiteCheckpointBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	backend, err := OpenSQLiteCheckpointBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	name := "chk-sqlite"
	done, err := backend.Completed(name)
	require.NoError(t, err)
	require.False(t, done)

	want := sampleMetrics()
	require.NoError(t, backend.SaveView(name, "proc_name", want))

	got, err := backend.LoadView(name, "proc_name")
	require.NoError(t, err)
	requireMetricsEqual(t, want, got)

	require.NoError(t, backend.Finalize(name))
	done, err = backend.Completed(name)
	require.NoError(t, err)
	require.True(t, done)
}

func TestSQLiteCheckpointBackendSaveViewOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	backend, err := OpenSQLiteCheckpointBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	name := "chk-overwrite"
	require.NoError(t, backend.SaveView(name, "proc_name", sampleMetrics()))

	updated := sampleMetrics()[:1]
	require.NoError(t, backend.SaveView(name, "proc_name", updated))

	got, err := backend.LoadView(name, "proc_name")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestCheckpointNameIsStableUnderPathOrder(t *testing.T) {
	a := CheckpointName([]string{"b.gz", "a.gz"}, []string{"proc_name"}, 1e6)
	b := CheckpointName([]string{"a.gz", "b.gz"}, []string{"proc_name"}, 1e6)
	require.Equal(t, a, b)
}

func TestCheckpointNameDiffersOnGranularity(t *testing.T) {
	a := CheckpointName([]string{"a.gz"}, []string{"proc_name"}, 1e6)
	b := CheckpointName([]string{"a.gz"}, []string{"proc_name"}, 2e6)
	require.NotEqual(t, a, b)
}
