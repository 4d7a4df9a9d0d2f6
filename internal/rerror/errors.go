// Package rerror defines the closed error taxonomy raised by the runner
// core: a stable, programmatically-consumable code paired with a human
// message and an optional wrapped cause.
package rerror

import "fmt"

// Code is one of the stable E0xx identifiers from the error taxonomy.
type Code string

const (
	CodeBinaryNotFound Code = "E001"
	CodeSpawnFailed    Code = "E002"
	CodeProcessFailed  Code = "E003"
	CodeParseError     Code = "E004"
	CodeTimeout        Code = "E005"
	CodeInvalidWorkDir Code = "E006"
	CodeIO             Code = "E007"
	CodeModelsParse    Code = "E010"
	CodeModelsFetch    Code = "E011"
	CodeOther          Code = "E999"
)

// RunnerError is the concrete error type carrying a taxonomy Code. It
// mirrors the categorized-struct-error pattern used throughout the ambient
// stack: a stable code for callers that branch on failure kind, a message
// for humans, and Unwrap for callers that want the underlying cause.
type RunnerError struct {
	Code    Code
	Kind    string
	Msg     string
	Err     error
	Exit    int
	Preview string
}

func (e *RunnerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Msg)
}

func (e *RunnerError) Unwrap() error { return e.Err }

// IsRetryable reports whether retrying the operation that produced e could
// plausibly succeed. Only transport-level failures are retryable; the core
// itself never retries (spec.md Non-goals), this exists for callers layered
// on top that implement their own retry policy.
func (e *RunnerError) IsRetryable() bool {
	switch e.Code {
	case CodeIO, CodeTimeout:
		return true
	default:
		return false
	}
}

func NewBinaryNotFound(backend string, candidates []string) *RunnerError {
	return &RunnerError{Code: CodeBinaryNotFound, Kind: "BinaryNotFound", Msg: fmt.Sprintf("no candidate binary for %s found on PATH (tried %v)", backend, candidates)}
}

func NewSpawnFailed(backend string, err error) *RunnerError {
	return &RunnerError{Code: CodeSpawnFailed, Kind: "SpawnFailed", Msg: fmt.Sprintf("failed to spawn %s", backend), Err: err}
}

func NewProcessFailed(exitCode int, stderrCapped string) *RunnerError {
	return &RunnerError{Code: CodeProcessFailed, Kind: "ProcessFailed", Msg: fmt.Sprintf("child exited with status %d", exitCode), Exit: exitCode, Preview: stderrCapped}
}

func NewParseError(line string, err error) *RunnerError {
	preview := line
	if len(preview) > 256 {
		preview = preview[:256]
	}
	return &RunnerError{Code: CodeParseError, Kind: "ParseError", Msg: "line is not valid JSON", Err: err, Preview: preview}
}

func NewInvalidWorkDir(cwd string) *RunnerError {
	return &RunnerError{Code: CodeInvalidWorkDir, Kind: "InvalidWorkDir", Msg: fmt.Sprintf("%q does not exist or is not a directory", cwd)}
}

func NewIO(err error) *RunnerError {
	return &RunnerError{Code: CodeIO, Kind: "Io", Msg: "transport-level I/O failure during streaming", Err: err}
}

func NewOther(msg string, err error) *RunnerError {
	return &RunnerError{Code: CodeOther, Kind: "Other", Msg: msg, Err: err}
}
