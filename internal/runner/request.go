package runner

import "log/slog"

// PermissionMode selects the universally-supported access policy every
// adapter maps onto its own native flag grammar.
type PermissionMode string

const (
	FullAccess PermissionMode = "full_access"
	ReadOnly   PermissionMode = "read_only"
)

// TaskRequest is the immutable input record describing one invocation.
// It is constructed by the caller and consumed read-only by the adapter
// and supervisor; the core never mutates it.
type TaskRequest struct {
	Prompt         string
	BackendID      string
	Cwd            string
	Model          string
	PermissionMode PermissionMode

	MaxTurns     *int
	MaxBudgetUSD *float64
	TimeoutSecs  *int

	SystemPrompt         string
	AppendSystemPrompt   string
	BinaryPathOverride   string
	ExtraEnv             map[string]string
	ExtraArgs            []string

	// Logger is optional; callers that omit it get slog.Default(). It is
	// an ambient diagnostics aid and carries no wire semantics.
	Logger *slog.Logger
}

// LoggerOrDefault returns req.Logger, falling back to slog.Default() when
// the caller left it unset.
func (r *TaskRequest) LoggerOrDefault() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Capabilities is a per-adapter static record of which optional
// TaskRequest fields a backend honors. Permission mode is universally
// supported and therefore not represented here.
type Capabilities struct {
	SupportsSystemPrompt       bool
	SupportsAppendSystemPrompt bool
	SupportsBudget             bool
	SupportsModel              bool
	SupportsMaxTurns           bool
}

// ValidateConfig returns human-readable warnings for request fields the
// adapter's capabilities do not support. Warnings never block execution.
func ValidateConfig(caps Capabilities, req *TaskRequest) []string {
	var warnings []string
	if req.SystemPrompt != "" && !caps.SupportsSystemPrompt {
		warnings = append(warnings, "system_prompt is not supported by this backend and will be ignored")
	}
	if req.AppendSystemPrompt != "" && !caps.SupportsAppendSystemPrompt {
		warnings = append(warnings, "append_system_prompt is not supported by this backend and will be ignored")
	}
	if req.MaxBudgetUSD != nil && !caps.SupportsBudget {
		warnings = append(warnings, "max_budget_usd is not supported by this backend and will be ignored")
	}
	if req.Model != "" && !caps.SupportsModel {
		warnings = append(warnings, "model is not supported by this backend and will be ignored")
	}
	if req.MaxTurns != nil && !caps.SupportsMaxTurns {
		warnings = append(warnings, "max_turns is not supported by this backend and will be ignored")
	}
	return warnings
}
