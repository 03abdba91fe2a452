package analyzer

import (
	"fmt"
	"strconv"
	"strings"
)

// HighLevelMetrics is an aggregation of a group of TraceRecords sharing a
// grouping key (spec §3, "HighLevelMetrics").
type HighLevelMetrics struct {
	TimeSum     float64
	CountSum    uint64
	SizeSum     uint64
	BinSums     map[string]uint64
	UniqueSets  map[string]map[string]struct{}
	GroupValues map[string]string
}

// newHighLevelMetrics seeds an empty aggregate for groupValues.
func newHighLevelMetrics(groupValues map[string]string) *HighLevelMetrics {
	return &HighLevelMetrics{
		BinSums:     make(map[string]uint64),
		UniqueSets:  make(map[string]map[string]struct{}),
		GroupValues: groupValues,
	}
}

// merge folds one TraceRecord into the aggregate (spec §4.7 step 6).
// cardinalityFields names view_fields keys to additionally track as
// approximate-cardinality unique_sets, independent of the grouping key.
func (h *HighLevelMetrics) merge(rec TraceRecord, cardinalityFields []string) {
	h.TimeSum += rec.Time
	h.CountSum += rec.Count
	h.SizeSum += rec.Size
	for bin, v := range rec.BinFields {
		h.BinSums[bin] += uint64(v)
	}
	for _, field := range cardinalityFields {
		v, ok := rec.ViewFields[field]
		if !ok {
			continue
		}
		set, ok := h.UniqueSets[field]
		if !ok {
			set = make(map[string]struct{})
			h.UniqueSets[field] = set
		}
		set[v] = struct{}{}
	}
}

// groupKey builds spec §4.7 step 5's grouping key: the concatenation of
// the requested view_types values (from view_fields) + cat + io_cat +
// acc_pat + func_name + time_range.
func groupKey(rec TraceRecord, viewTypes []string) string {
	var b strings.Builder
	for _, vt := range viewTypes {
		b.WriteString(rec.ViewFields[vt])
		b.WriteByte('\x1f')
	}
	b.WriteString(rec.Cat)
	b.WriteByte('\x1f')
	b.WriteString(rec.IOCat)
	b.WriteByte('\x1f')
	b.WriteString(rec.AccPat)
	b.WriteByte('\x1f')
	b.WriteString(rec.FuncName)
	b.WriteByte('\x1f')
	b.WriteString(strconv.FormatUint(rec.TimeRange, 10))
	return b.String()
}

// groupValuesOf returns the defining values a group's key was built from,
// stored on the resulting HighLevelMetrics (spec §3, "group_values").
func groupValuesOf(rec TraceRecord, viewTypes []string) map[string]string {
	gv := make(map[string]string, len(viewTypes)+5)
	for _, vt := range viewTypes {
		gv[vt] = rec.ViewFields[vt]
	}
	gv["cat"] = rec.Cat
	gv["io_cat"] = rec.IOCat
	gv["acc_pat"] = rec.AccPat
	gv["func_name"] = rec.FuncName
	gv["time_range"] = strconv.FormatUint(rec.TimeRange, 10)
	return gv
}

// Aggregator groups and aggregates a stream of TraceRecords (spec §4.7
// steps 5-6); it is the reduce side of the Analyzer's map/group-by/reduce
// pipeline stage.
type Aggregator struct {
	viewTypes         []string
	cardinalityFields []string
	groups            map[string]*HighLevelMetrics
}

// NewAggregator builds an Aggregator grouping by viewTypes (plus the fixed
// cat/io_cat/acc_pat/func_name/time_range dimensions), additionally
// tracking cardinalityFields as unique_sets.
func NewAggregator(viewTypes []string, cardinalityFields []string) *Aggregator {
	return &Aggregator{
		viewTypes:         viewTypes,
		cardinalityFields: cardinalityFields,
		groups:            make(map[string]*HighLevelMetrics),
	}
}

// Add folds one record into its group, creating the group on first sight.
func (a *Aggregator) Add(rec TraceRecord) {
	key := groupKey(rec, a.viewTypes)
	g, ok := a.groups[key]
	if !ok {
		g = newHighLevelMetrics(groupValuesOf(rec, a.viewTypes))
		a.groups[key] = g
	}
	g.merge(rec, a.cardinalityFields)
}

// Merge folds other's groups into a, for combining partial aggregates
// computed over different partitions (spec §4.7's map/group-by/reduce:
// each partition's Aggregator reduces independently, then the partials
// merge).
func (a *Aggregator) Merge(other *Aggregator) {
	for key, g := range other.groups {
		existing, ok := a.groups[key]
		if !ok {
			a.groups[key] = g
			continue
		}
		existing.TimeSum += g.TimeSum
		existing.CountSum += g.CountSum
		existing.SizeSum += g.SizeSum
		for bin, v := range g.BinSums {
			existing.BinSums[bin] += v
		}
		for field, set := range g.UniqueSets {
			dst, ok := existing.UniqueSets[field]
			if !ok {
				dst = make(map[string]struct{})
				existing.UniqueSets[field] = dst
			}
			for v := range set {
				dst[v] = struct{}{}
			}
		}
	}
}

// Results returns the final list of HighLevelMetrics, one per distinct
// group key observed.
func (a *Aggregator) Results() []HighLevelMetrics {
	out := make([]HighLevelMetrics, 0, len(a.groups))
	for _, g := range a.groups {
		out = append(out, *g)
	}
	return out
}

// String renders a group's defining values, for diagnostics/logging.
func (h *HighLevelMetrics) String() string {
	return fmt.Sprintf("HighLevelMetrics{group=%v, count=%d, time=%g, size=%d}",
		h.GroupValues, h.CountSum, h.TimeSum, h.SizeSum)
}
