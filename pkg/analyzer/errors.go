package analyzer

import "fmt"

// ErrAnalyzer is the sentinel every AnalyzerError wraps (spec §7 extends
// its taxonomy implicitly to the Analyzer, which has no dedicated error
// kind of its own — failures are IndexerError/ReaderError/PipelineError
// surfaced through the pipeline it builds, or the analyzer-specific
// validation/config errors below).
var ErrAnalyzer = fmt.Errorf("analyzer error")

// AnalyzerError reports a failure specific to trace analysis itself:
// invalid view_types configuration, an unreadable checkpoint file, or a
// view_types/config JSON schema violation (spec Non-goal (c): schema
// validation is bounded to analyzer configuration, not every trace
// record).
type AnalyzerError struct {
	Detail string
	Cause  error
}

func (e *AnalyzerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("analyzer: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("analyzer: %s", e.Detail)
}

func (e *AnalyzerError) Unwrap() error { return e.Cause }

func (e *AnalyzerError) Is(target error) bool { return target == ErrAnalyzer }

func newAnalyzerError(detail string, cause error) *AnalyzerError {
	return &AnalyzerError{Detail: detail, Cause: cause}
}
