// Package analyzer composes pkg/reader and pkg/pipeline (spec §4.7): it
// streams JSON trace records out of indexed gzip files through the
// Pipeline and produces grouped HighLevelMetrics.
package analyzer

import (
	"math"
	"strings"
)

const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
)

// DefaultTimeGranularity and DefaultTimeResolution are the analyzer's
// default time bucketing parameters (spec §4.7, "Time semantics").
const (
	DefaultTimeGranularity = 1e6 // microseconds; one bucket per second
	DefaultTimeResolution  = 1e6
	DefaultPartitionBytes  = 128 * mib
)

// ioCategory is the closed set of derived I/O categories (spec §3, "io_cat").
type ioCategory string

const (
	ioRead     ioCategory = "read"
	ioWrite    ioCategory = "write"
	ioMetadata ioCategory = "metadata"
	ioSync     ioCategory = "sync"
	ioPctl     ioCategory = "pctl"
	ioIPC      ioCategory = "ipc"
	ioOther    ioCategory = "other"
)

// posixMetadataFunctions, posixReadFunctions, ... are the function-name
// lookup tables spec §4.7 step 3 names, taken verbatim from the original
// analyzer's POSIX_*_FUNCTIONS sets.
var posixMetadataFunctions = newSet(
	"__fxstat", "__fxstat64", "__lxstat", "__lxstat64", "__xstat", "__xstat64",
	"access", "close", "closedir", "fclose", "fcntl", "fopen",
	"fopen64", "fseek", "fstat", "fstatat", "ftell", "ftruncate",
	"link", "lseek", "lseek64", "mkdir", "open", "open64",
	"opendir", "readdir", "readlink", "remove", "rename", "rmdir",
	"seek", "stat", "unlink",
)

var posixReadFunctions = newSet("fread", "pread", "preadv", "read", "readv")

var posixWriteFunctions = newSet("fwrite", "pwrite", "pwritev", "write", "writev")

var posixSyncFunctions = newSet("fsync", "fdatasync", "msync", "sync")

var posixPctlFunctions = newSet("exec", "exit", "fork", "kill", "pipe", "wait")

var posixIPCFunctions = newSet(
	"msgctl", "msgget", "msgrcv", "msgsnd", "semctl", "semget",
	"semop", "shmat", "shmctl", "shmdt", "shmget",
)

func newSet(items ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// deriveIOCategory implements spec §4.7 step 3's lookup.
func deriveIOCategory(funcName string) ioCategory {
	if _, ok := posixMetadataFunctions[funcName]; ok {
		return ioMetadata
	}
	if _, ok := posixReadFunctions[funcName]; ok {
		return ioRead
	}
	if _, ok := posixWriteFunctions[funcName]; ok {
		return ioWrite
	}
	if _, ok := posixSyncFunctions[funcName]; ok {
		return ioSync
	}
	if _, ok := posixPctlFunctions[funcName]; ok {
		return ioPctl
	}
	if _, ok := posixIPCFunctions[funcName]; ok {
		return ioIPC
	}
	return ioOther
}

// ignoredFuncNames and ignoredFuncPatterns back spec §4.7 step 2's ignore
// policy: dftracer's Python/framework instrumentation shims that are noise
// for I/O analysis.
var ignoredFuncNames = newSet(
	"DLIOBenchmark.__init__",
	"DLIOBenchmark.initialize",
	"FileStorage.__init__",
	"IndexedBinaryMMapReader.__init__",
	"IndexedBinaryMMapReader.load_index",
	"IndexedBinaryMMapReader.next",
	"IndexedBinaryMMapReader.read_index",
	"NPZReader.__init__",
	"NPZReader.next",
	"NPZReader.read_index",
	"PyTorchCheckpointing.__init__",
	"PyTorchCheckpointing.finalize",
	"PyTorchCheckpointing.get_tensor",
	"SCRPyTorchCheckpointing.__init__",
	"SCRPyTorchCheckpointing.finalize",
	"SCRPyTorchCheckpointing.get_tensor",
	"TFCheckpointing.__init__",
	"TFCheckpointing.finalize",
	"TFCheckpointing.get_tensor",
	"TFDataLoader.__init__",
	"TFDataLoader.finalize",
	"TFDataLoader.next",
	"TFDataLoader.read",
	"TFFramework.get_loader",
	"TFFramework.init_loader",
	"TFFramework.is_nativeio_available",
	"TFFramework.trace_object",
	"TFReader.__init__",
	"TFReader.next",
	"TFReader.read_index",
	"TorchDataLoader.__init__",
	"TorchDataLoader.finalize",
	"TorchDataLoader.next",
	"TorchDataLoader.read",
	"TorchDataset.__init__",
	"TorchFramework.get_loader",
	"TorchFramework.init_loader",
	"TorchFramework.is_nativeio_available",
	"TorchFramework.trace_object",
)

var ignoredFuncPatterns = []string{".save_state", "checkpoint_end_", "checkpoint_start_"}

// DefaultIgnoredPathPatterns is the supplemental file-path noise filter
// recovered from original_source/.../constants.cpp's IGNORED_FILE_PATTERNS
// (SPEC_FULL.md, "Supplemental features").
var DefaultIgnoredPathPatterns = []string{
	"/dev/", "/etc/", "/gapps/python", "/lib/python", "/proc/",
	"/software/", "/sys/", "/usr/lib", "/usr/tce/backend",
	"/usr/tce/packages", "/venv", "__pycache__",
}

func shouldIgnoreFunc(funcName string) bool {
	if _, ok := ignoredFuncNames[funcName]; ok {
		return true
	}
	for _, p := range ignoredFuncPatterns {
		if strings.Contains(funcName, p) {
			return true
		}
	}
	return false
}

// PathIgnored reports whether path contains one of patterns (for example
// DefaultIgnoredPathPatterns).
func PathIgnored(path string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// sizeBinEdges and sizeBinSuffixes implement spec §4.7 step 4's twelve
// fixed size bins, taken from the original analyzer's SIZE_BINS/
// SIZE_BIN_SUFFIXES (constants.cpp).
var sizeBinEdges = []float64{
	math.Inf(-1),
	4 * kib,
	16 * kib,
	64 * kib,
	256 * kib,
	1 * mib,
	4 * mib,
	16 * mib,
	64 * mib,
	256 * mib,
	1 * gib,
	4 * gib,
	math.Inf(1),
}

var sizeBinSuffixes = []string{
	"0_4kib", "4kib_16kib", "16kib_64kib", "64kib_256kib",
	"256kib_1mib", "1mib_4mib", "4mib_16mib", "16mib_64mib",
	"64mib_256mib", "256mib_1gib", "1gib_4gib", "4gib_plus",
}

// SizeBinPrefix is prepended to every suffix to form a bin_fields key.
const SizeBinPrefix = "size_bin_"

// SizeBinNames returns the full list of size-bin keys, in edge order.
func SizeBinNames() []string {
	out := make([]string, len(sizeBinSuffixes))
	for i, s := range sizeBinSuffixes {
		out[i] = SizeBinPrefix + s
	}
	return out
}

// LogicalViewTypePairs is the supplemental preset-grouping table recovered
// from original_source/.../constants.cpp's LOGICAL_VIEW_TYPES.
var LogicalViewTypePairs = [][2]string{
	{"file_name", "file_dir"},
	{"file_name", "file_pattern"},
	{"proc_name", "app_name"},
	{"proc_name", "host_name"},
	{"proc_name", "node_name"},
	{"proc_name", "proc_id"},
	{"proc_name", "rank"},
	{"proc_name", "thread_id"},
}

// humanizedColumns, humanizedMetrics and humanizedViewTypes are the
// supplemental display-name tables (SPEC_FULL.md, "Humanized column/metric
// name tables"); pure lookups with no effect on aggregation.
var humanizedColumns = map[string]string{
	"acc_pat": "Access Pattern", "app_io_time": "Application I/O Time",
	"app_name": "Application", "behavior": "Behavior", "cat": "Category",
	"checkpoint_io_time": "Checkpoint I/O Time", "compute_time": "Compute Time",
	"count": "Count", "file_dir": "File Directory", "file_name": "File",
	"file_pattern": "File Pattern", "func_name": "Function Name",
	"host_name": "Host", "io_cat": "I/O Category", "io_time": "I/O Time",
	"node_name": "Node", "proc_name": "Process", "rank": "Rank",
	"read_io_time": "Read I/O Time", "size": "Size", "time": "Time",
	"time_range": "Time Period",
	"u_app_compute_time": "Unoverlapped Application Compute Time",
	"u_app_io_time":      "Unoverlapped Application I/O Time",
	"u_checkpoint_io_time": "Unoverlapped Checkpoint I/O Time",
	"u_compute_time":       "Unoverlapped Compute Time",
	"u_io_time":            "Unoverlapped I/O Time",
	"u_read_io_time":       "Unoverlapped Read I/O Time",
}

var humanizedMetrics = map[string]string{
	"bw": "I/O Bandwidth", "intensity": "I/O Intensity",
	"iops": "I/O Operations per Second", "time": "I/O Time",
}

var humanizedViewTypes = map[string]string{
	"app_name": "App", "file_dir": "File Directory", "file_name": "File",
	"file_pattern": "File Pattern", "node_name": "Node", "proc_name": "Process",
	"rank": "Rank", "time_range": "Time Period",
}

// HumanizeColumn, HumanizeMetric and HumanizeViewType look up a display
// name, falling back to name itself when there's no entry.
func HumanizeColumn(name string) string    { return lookupOr(humanizedColumns, name) }
func HumanizeMetric(name string) string    { return lookupOr(humanizedMetrics, name) }
func HumanizeViewType(name string) string  { return lookupOr(humanizedViewTypes, name) }

func lookupOr(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return key
}
