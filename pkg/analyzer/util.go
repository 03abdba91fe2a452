package analyzer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
)

// hashParts derives CheckpointName's identifier from the inputs that
// determine an analyze_trace result (spec §4.7 step 7: "a checkpoint named
// by the hash of (trace_paths, view_types, time_granularity)").
func hashParts(tracePaths []string, viewTypes []string, timeGranularity float64) string {
	sorted := append([]string(nil), tracePaths...)
	sort.Strings(sorted)
	sortedViews := append([]string(nil), viewTypes...)
	sort.Strings(sortedViews)

	h := sha256.New()
	for _, p := range sorted {
		io.WriteString(h, p)
		h.Write([]byte{0})
	}
	for _, v := range sortedViews {
		io.WriteString(h, v)
		h.Write([]byte{0})
	}
	io.WriteString(h, strconv.FormatFloat(timeGranularity, 'g', -1, 64))
	return hex.EncodeToString(h.Sum(nil))[:24]
}

// newBytesReader is a tiny indirection so the S3 backend does not need a
// bytes import in its own file just for this.
func newBytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
