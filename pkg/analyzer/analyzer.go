package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dftracer/dftracer-utils/internal/config"
	"github.com/dftracer/dftracer-utils/pkg/executor"
	"github.com/dftracer/dftracer-utils/pkg/indexer"
	"github.com/dftracer/dftracer-utils/pkg/log"
	"github.com/dftracer/dftracer-utils/pkg/pipeline"
	"github.com/dftracer/dftracer-utils/pkg/reader"
)

// readLineChunkSize is the per-call buffer handed to Reader.ReadLineBytes
// while draining one partition; larger than the Reader's own internal
// 64 KiB read chunk so most partitions drain in a handful of calls.
const readLineChunkSize = 256 * 1024

// partitionSpec is one chunk of one trace file's uncompressed byte range,
// the unit of work spec §4.7 step 1 splits a trace into.
type partitionSpec struct {
	gzPath       string
	idxPath      string
	start, end   int64
	extraColumns map[string]string
}

// Analyzer composes the Indexer, Reader, Pipeline, and an Executor into
// the analyze_trace operation (spec §4.7: "Composes the above").
type Analyzer struct {
	Exec              executor.Executor
	Backend           CheckpointBackend // nil disables checkpointing
	PartitionBytes    int64
	TimeGranularity   float64
	CardinalityFields []string
	Metrics           *Metrics
}

// NewAnalyzer builds an Analyzer with SPEC_FULL.md defaults, running exec
// for every analyze_trace call and persisting checkpoints through backend
// (nil to disable checkpointing entirely).
func NewAnalyzer(exec executor.Executor, backend CheckpointBackend) *Analyzer {
	return &Analyzer{
		Exec:            exec,
		Backend:         backend,
		PartitionBytes:  DefaultPartitionBytes,
		TimeGranularity: DefaultTimeGranularity,
		Metrics:         noopMetrics(),
	}
}

// AnalyzeTrace is the public operation spec §4.7 names:
// analyze_trace(executor, trace_paths, view_types, extra_columns) ->
// list<HighLevelMetrics>. extraColumns supplies, per trace path, the
// view_fields values constant for that whole file (e.g. proc_name).
func (a *Analyzer) AnalyzeTrace(
	ctx context.Context,
	tracePaths []string,
	viewTypes []string,
	extraColumns map[string]map[string]string,
) ([]HighLevelMetrics, error) {
	name := CheckpointName(tracePaths, viewTypes, a.TimeGranularity)

	if a.Backend != nil {
		done, err := a.Backend.Completed(name)
		if err != nil {
			return nil, newAnalyzerError("check checkpoint completion", err)
		}
		if done {
			metrics, err := a.Backend.LoadView(name, "default")
			if err != nil {
				return nil, newAnalyzerError("load checkpoint", err)
			}
			a.Metrics.CheckpointHits.Inc()
			log.Infof("analyzer: loaded checkpoint %s (%d groups)", name, len(metrics))
			return metrics, nil
		}
	}
	a.Metrics.CheckpointMisses.Inc()

	partitions, err := a.buildPartitions(tracePaths, extraColumns)
	if err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		return nil, nil
	}

	p := pipeline.New()
	partitionIDs := make([]pipeline.TaskID, len(partitions))
	for i, part := range partitions {
		part := part
		id, _ := pipeline.AddTask(p, func(tc *pipeline.TaskContext, _ pipeline.Any) (*Aggregator, error) {
			return a.processPartition(part, viewTypes)
		})
		partitionIDs[i] = id
	}

	// Input is declared Any rather than Tuple: a trace whose size doesn't
	// exceed PartitionBytes yields a single partition, so this node has one
	// parent and receives that parent's *Aggregator verbatim instead of a
	// Tuple (spec §4.5's single-parent assembly rule).
	combineID, combineResult := pipeline.AddTask(p, func(tc *pipeline.TaskContext, in pipeline.Any) (*Aggregator, error) {
		combined := NewAggregator(viewTypes, a.CardinalityFields)
		merge := func(v interface{}) {
			if part, ok := v.(*Aggregator); ok && part != nil {
				combined.Merge(part)
			}
		}
		if tup, ok := in.(pipeline.Tuple); ok {
			for _, v := range tup {
				merge(v)
			}
		} else {
			merge(in)
		}
		return combined, nil
	})
	for _, id := range partitionIDs {
		if err := p.AddDependency(id, combineID); err != nil {
			return nil, newAnalyzerError("wire partition pipeline", err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, newAnalyzerError("validate pipeline", err)
	}
	if _, err := a.Exec.Execute(ctx, p, nil); err != nil {
		return nil, newAnalyzerError("execute pipeline", err)
	}

	final, err := combineResult.Get()
	if err != nil {
		return nil, newAnalyzerError("collect aggregated results", err)
	}
	results := final.Results()

	if a.Backend != nil {
		if err := a.Backend.SaveView(name, "default", results); err != nil {
			return nil, newAnalyzerError("save checkpoint", err)
		}
		if err := a.Backend.Finalize(name); err != nil {
			return nil, newAnalyzerError("finalize checkpoint", err)
		}
	}
	return results, nil
}

// buildPartitions implements spec §4.7 step 1: ensure each trace file's
// index exists, then split its uncompressed byte range into
// PartitionBytes-sized chunks.
func (a *Analyzer) buildPartitions(tracePaths []string, extraColumns map[string]map[string]string) ([]partitionSpec, error) {
	partitionBytes := a.PartitionBytes
	if partitionBytes <= 0 {
		partitionBytes = config.Keys.PartitionSizeBytes
	}
	if partitionBytes <= 0 {
		partitionBytes = DefaultPartitionBytes
	}

	var partitions []partitionSpec
	for _, gzPath := range tracePaths {
		idxPath := indexer.DefaultIndexPath(gzPath)
		if _, err := indexer.New(gzPath, idxPath, config.Keys.CheckpointStrideBytes, false).Build(); err != nil {
			return nil, newAnalyzerError(fmt.Sprintf("index %s", gzPath), err)
		}

		rd, err := reader.New(gzPath, idxPath)
		if err != nil {
			return nil, newAnalyzerError(fmt.Sprintf("open %s", gzPath), err)
		}
		maxBytes, err := rd.GetMaxBytes()
		rd.Close()
		if err != nil {
			return nil, newAnalyzerError(fmt.Sprintf("stat %s", gzPath), err)
		}

		cols := extraColumns[gzPath]
		for start := int64(0); start < maxBytes; start += partitionBytes {
			end := start + partitionBytes
			if end > maxBytes {
				end = maxBytes
			}
			partitions = append(partitions, partitionSpec{
				gzPath:       gzPath,
				idxPath:      idxPath,
				start:        start,
				end:          end,
				extraColumns: cols,
			})
		}
	}
	return partitions, nil
}

// processPartition implements spec §4.7 steps 1-6 for one chunk: read its
// line-aligned byte range, parse each line, apply derivation/filtering,
// and fold the survivors into a partition-local Aggregator.
func (a *Analyzer) processPartition(part partitionSpec, viewTypes []string) (*Aggregator, error) {
	start := time.Now()
	defer func() { a.Metrics.PartitionDuration.Observe(time.Since(start).Seconds()) }()

	rd, err := reader.New(part.gzPath, part.idxPath)
	if err != nil {
		return nil, newAnalyzerError(fmt.Sprintf("open %s", part.gzPath), err)
	}
	defer rd.Close()

	// ReadLineBytes is a resumable stream: it must be called repeatedly
	// until it returns 0, each call handing back as much line-aligned data
	// as it has buffered (spec §4.4, "may be called repeatedly until zero
	// is returned").
	var all bytes.Buffer
	chunk := make([]byte, readLineChunkSize)
	for {
		n, err := rd.ReadLineBytes(part.start, part.end, chunk)
		if err != nil {
			return nil, newAnalyzerError(fmt.Sprintf("read %s[%d:%d]", part.gzPath, part.start, part.end), err)
		}
		if n == 0 {
			break
		}
		all.Write(chunk[:n])
	}

	opts := ParseOptions{ViewTypes: viewTypes, ExtraColumns: part.extraColumns, TimeGranularity: a.TimeGranularity}
	agg := NewAggregator(viewTypes, a.CardinalityFields)

	for _, line := range bytes.Split(all.Bytes(), []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		rec, ok, err := ParseLine(line, opts)
		if err != nil {
			a.Metrics.RecordsIgnored.Inc()
			continue
		}
		if !ok {
			a.Metrics.RecordsIgnored.Inc()
			continue
		}
		if rec.Phase == "M" {
			// Metadata events do not participate in grouping (spec §4.7,
			// "grouping/aggregation only processes regular events").
			continue
		}
		agg.Add(rec)
		a.Metrics.RecordsParsed.Inc()
	}
	a.Metrics.PartitionsProcessed.Inc()
	return agg, nil
}
