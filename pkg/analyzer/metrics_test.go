package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRecord(procName string, size uint64, dur float64) TraceRecord {
	rec := TraceRecord{
		FuncName:   "read",
		Phase:      "X",
		Cat:        "posix",
		IOCat:      string(ioRead),
		AccPat:     "0",
		Time:       dur,
		Count:      1,
		Size:       size,
		TimeRange:  0,
		ViewFields: map[string]string{"proc_name": procName},
		BinFields:  setSizeBins(size),
	}
	return rec
}

func TestAggregatorGroupsByViewTypesAndDimensions(t *testing.T) {
	agg := NewAggregator([]string{"proc_name"}, nil)
	agg.Add(sampleRecord("trainer.0", 4096, 1.0))
	agg.Add(sampleRecord("trainer.0", 4096, 2.0))
	agg.Add(sampleRecord("trainer.1", 4096, 3.0))

	results := agg.Results()
	require.Len(t, results, 2)

	byProc := make(map[string]HighLevelMetrics)
	for _, r := range results {
		byProc[r.GroupValues["proc_name"]] = r
	}

	require.Equal(t, 3.0, byProc["trainer.0"].TimeSum)
	require.EqualValues(t, 2, byProc["trainer.0"].CountSum)
	require.Equal(t, 3.0, byProc["trainer.1"].TimeSum)
	require.EqualValues(t, 1, byProc["trainer.1"].CountSum)
}

func TestAggregatorMergeCombinesPartials(t *testing.T) {
	a := NewAggregator([]string{"proc_name"}, nil)
	a.Add(sampleRecord("trainer.0", 4096, 1.0))

	b := NewAggregator([]string{"proc_name"}, nil)
	b.Add(sampleRecord("trainer.0", 4096, 5.0))
	b.Add(sampleRecord("trainer.1", 4096, 2.0))

	a.Merge(b)
	results := a.Results()
	require.Len(t, results, 2)

	byProc := make(map[string]HighLevelMetrics)
	for _, r := range results {
		byProc[r.GroupValues["proc_name"]] = r
	}
	require.Equal(t, 6.0, byProc["trainer.0"].TimeSum)
	require.EqualValues(t, 2, byProc["trainer.0"].CountSum)
	require.Equal(t, 2.0, byProc["trainer.1"].TimeSum)
}

func TestAggregatorTracksCardinalityFields(t *testing.T) {
	agg := NewAggregator(nil, []string{"proc_name"})
	agg.Add(sampleRecord("trainer.0", 100, 1.0))
	agg.Add(sampleRecord("trainer.1", 100, 1.0))
	agg.Add(sampleRecord("trainer.0", 100, 1.0))

	results := agg.Results()
	require.Len(t, results, 1)
	require.Len(t, results[0].UniqueSets["proc_name"], 2)
}

func TestGroupKeyDistinguishesTimeRange(t *testing.T) {
	r1 := sampleRecord("trainer.0", 100, 1.0)
	r1.TimeRange = 0
	r2 := sampleRecord("trainer.0", 100, 1.0)
	r2.TimeRange = 1

	require.NotEqual(t, groupKey(r1, nil), groupKey(r2, nil))
}

func TestHighLevelMetricsStringIncludesGroupValues(t *testing.T) {
	agg := NewAggregator([]string{"proc_name"}, nil)
	agg.Add(sampleRecord("trainer.0", 100, 1.0))
	s := agg.Results()[0].String()
	require.Contains(t, s, "trainer.0")
}
