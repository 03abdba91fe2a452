package analyzer

import (
	"sort"
	"strings"

	gojson "github.com/goccy/go-json"
)

// TraceRecord is one parsed JSON line of a Chrome-tracing-format trace
// (spec §3, "TraceRecord").
type TraceRecord struct {
	Cat        string
	FuncName   string
	Phase      string
	PID        uint64
	TID        uint64
	IOCat      string
	AccPat     string
	Time       float64
	Count      uint64
	Size       uint64
	TimeRange  uint64
	ViewFields map[string]string
	BinFields  map[string]int
}

// rawEvent is the wire shape of one trace line (spec §6, "Trace input
// format"); goccy/go-json decodes straight into it without an intermediate
// map, matching the "JSON parse adapter" component (spec §2).
type rawEvent struct {
	Name string  `json:"name"`
	Ph   string  `json:"ph"`
	Cat  string  `json:"cat"`
	PID  uint64  `json:"pid"`
	TID  uint64  `json:"tid"`
	TS   uint64  `json:"ts"`
	Dur  float64 `json:"dur"`
	Args struct {
		FHash   string `json:"fhash"`
		HHash   string `json:"hhash"`
		Offset  string `json:"offset"`
		Epoch   string `json:"epoch"`
		ImgIdx  string `json:"image_idx"`
		Ret     any    `json:"ret"`
		Name    string `json:"name"`
		Value   string `json:"value"`
	} `json:"args"`
}

// ParseOptions configures ParseLine (spec §4.7 steps 2-4).
type ParseOptions struct {
	// ViewTypes names the view_fields keys to populate from extra columns
	// the caller already knows about for this chunk (e.g. proc_name derived
	// from the file path, not from the JSON line itself).
	ViewTypes []string
	// ExtraColumns supplies the values for ViewTypes' keys that are
	// constant across an entire file/chunk (spec §6, analyze_trace's
	// extra_columns argument).
	ExtraColumns map[string]string
	// TimeGranularity buckets ts into time_range (spec §4.7, "Time
	// semantics"). Zero means DefaultTimeGranularity.
	TimeGranularity float64
}

// ParseLine decodes one JSON trace line into a TraceRecord, applying the
// ignore policy of spec §4.7 step 2 and deriving io_cat/acc_pat/size bins
// per steps 3-4. ok is false when the line should be dropped because its
// function name matches the ignore policy.
func ParseLine(line []byte, opts ParseOptions) (rec TraceRecord, ok bool, err error) {
	var ev rawEvent
	if err := gojson.Unmarshal(line, &ev); err != nil {
		return TraceRecord{}, false, err
	}

	funcName := ev.Name
	if shouldIgnoreFunc(funcName) {
		return TraceRecord{}, false, nil
	}

	rec = TraceRecord{
		FuncName:   funcName,
		Phase:      ev.Ph,
		PID:        ev.PID,
		TID:        ev.TID,
		Cat:        strings.ToLower(ev.Cat),
		ViewFields: make(map[string]string, len(opts.ViewTypes)),
	}
	for _, vt := range opts.ViewTypes {
		if v, ok := opts.ExtraColumns[vt]; ok {
			rec.ViewFields[vt] = v
		}
	}

	if ev.Ph == "M" {
		// Metadata events (FH/HH/SH/PR/other) carry no time/size payload;
		// spec §4.7's grouping/aggregation only processes regular events,
		// so a metadata event is parsed but not grouped by analyze_trace's
		// caller (matching the original's event_type != 0 skip).
		rec.AccPat = "0"
		return rec, true, nil
	}

	granularity := opts.TimeGranularity
	if granularity <= 0 {
		granularity = DefaultTimeGranularity
	}

	rec.Time = ev.Dur
	rec.Count = 1
	rec.TimeRange = uint64(float64(ev.TS) / granularity)
	rec.AccPat = "0"

	if rec.Cat == "posix" || rec.Cat == "stdio" {
		rec.IOCat = string(deriveIOCategory(funcName))
		if ret, ok := asUint64(ev.Args.Ret); ok && ret > 0 &&
			(rec.IOCat == string(ioRead) || rec.IOCat == string(ioWrite)) {
			rec.Size = ret
		}
	} else {
		rec.IOCat = string(ioOther)
	}

	rec.BinFields = setSizeBins(rec.Size)

	return rec, true, nil
}

// asUint64 recovers a non-negative integer from a JSON "ret" field, which
// the upstream tracer may emit as a number or occasionally as a negative
// errno.
func asUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case float64:
		if x <= 0 {
			return 0, false
		}
		return uint64(x), true
	case int64:
		if x <= 0 {
			return 0, false
		}
		return uint64(x), true
	default:
		return 0, false
	}
}

// getSizeBinIndex implements spec §4.7 step 4: find the bin edge[i] <= s <
// edge[i+1] via upper_bound, then shift one bin earlier to match the
// reference tool's convention (ported from get_size_bin_index in
// original_source's analyzer.cpp).
func getSizeBinIndex(size uint64) int {
	s := float64(size)
	idx := sort.Search(len(sizeBinEdges), func(i int) bool { return sizeBinEdges[i] > s }) - 1
	if idx > 0 {
		idx--
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(sizeBinSuffixes)-1 {
		idx = len(sizeBinSuffixes) - 1
	}
	return idx
}

// setSizeBins implements spec §4.7 step 4: exactly one of twelve bins is
// set to 1 when size > 0, else all remain absent (NaN).
func setSizeBins(size uint64) map[string]int {
	if size == 0 {
		return nil
	}
	idx := getSizeBinIndex(size)
	return map[string]int{SizeBinPrefix + sizeBinSuffixes[idx]: 1}
}
