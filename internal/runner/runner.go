// Package runner holds the per-backend adapter interface, the backend
// factory/registry, and the normalization pipeline that sits between the
// process supervisor and the consumer. It is the direct analog of the
// teacher's LLMProvider adapter-per-backend pattern, generalized from
// "one interface, many LLM providers" to "one interface, many headless
// coding-agent CLIs".
package runner

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/ayshptk/agentrunner/internal/event"
)

// Runner is the capability set every backend adapter implements: binary
// resolution, argument/environment construction, capability declaration,
// and a line parser. No inheritance hierarchy is required; adapters are
// selected purely through this interface via the Factory below.
type Runner interface {
	// Name returns the backend identifier this adapter answers to
	// (matches TaskRequest.BackendID).
	Name() string

	// IsAvailable reports whether the backend's binary can be resolved
	// without a BinaryPathOverride. Used for diagnostics, never required
	// before ResolveBinary is attempted.
	IsAvailable() bool

	// ResolveBinary honors req.BinaryPathOverride unconditionally
	// (validation deferred to spawn time). Otherwise it tries each of
	// the adapter's ordered binary name candidates on the
	// executable-search path and returns the first hit.
	ResolveBinary(req *TaskRequest) (string, error)

	// BuildArgs is a pure function of the request producing the child's
	// argv (excluding argv[0]). Ordering matters per backend.
	BuildArgs(req *TaskRequest) []string

	// BuildEnv is a pure function of the request producing the
	// adapter's environment overlay, applied by the supervisor after the
	// ambient environment and before req.ExtraEnv.
	BuildEnv(req *TaskRequest) map[string]string

	// Capabilities returns this adapter's static support record.
	Capabilities() Capabilities

	// ParseLine consumes one UTF-8 line (newline already stripped) and
	// returns a, possibly empty, ordered list of events. A non-nil error
	// is always a *rerror.RunnerError with Code E004 (ParseError); it is
	// non-fatal and the caller is expected to continue feeding
	// subsequent lines.
	ParseLine(line string) ([]event.Event, error)
}

// VersionReporter is an optional extension some adapters may implement
// to surface the resolved backend's version string for diagnostics.
type VersionReporter interface {
	Version(req *TaskRequest) (string, error)
}

// LookPath resolves the first of candidates found on the executable
// search path, honoring an override when non-empty. Adapters share this
// helper rather than reimplementing binary discovery.
func LookPath(override string, candidates []string) (string, []string, error) {
	if override != "" {
		return override, candidates, nil
	}
	for _, name := range candidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, candidates, nil
		}
	}
	return "", candidates, fmt.Errorf("none of %v found on PATH", candidates)
}

// Factory constructs a fresh Runner for a backend identifier. Adapters
// are compiled-in and registered at init time; there is no runtime
// authoring of new backends (spec.md Non-goals).
type Factory func() Runner

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register associates a backend identifier with a constructor. Intended
// to be called from adapter package init() functions.
func Register(backendID string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[backendID] = f
}

// Get constructs a fresh Runner for backendID, or returns an error if no
// adapter is registered under that identifier.
func Get(backendID string) (Runner, error) {
	registryMu.RLock()
	f, ok := registry[backendID]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no runner registered for backend %q", backendID)
	}
	return f(), nil
}

// Registered returns the backend identifiers currently registered, for
// diagnostics and the example CLI's help text.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}
