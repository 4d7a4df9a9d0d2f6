// Package event defines the unified event vocabulary every backend adapter
// is projected onto: a single flattened, tagged-variant struct plus the
// usage-accounting record it carries.
package event

import "encoding/json"

// Kind discriminates which variant of Event a value represents. It is a
// closed set on purpose — adding a case is a breaking change.
type Kind string

const (
	KindSessionStart Kind = "session_start"
	KindTextDelta    Kind = "text_delta"
	KindMessage      Kind = "message"
	KindToolStart    Kind = "tool_start"
	KindToolEnd      Kind = "tool_end"
	KindUsageDelta   Kind = "usage_delta"
	KindResult       Kind = "result"
	KindError        Kind = "error"
)

// Role identifies the speaker of a Message event.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
)

// UsageData is a componentwise-additive token/cost record. A nil pointer
// field means "unknown", never "zero" — callers must not treat an absent
// field as zero when deciding whether to report it.
type UsageData struct {
	InputTokens         *int64   `json:"input_tokens,omitempty"`
	OutputTokens        *int64   `json:"output_tokens,omitempty"`
	CacheReadTokens     *int64   `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens *int64   `json:"cache_creation_tokens,omitempty"`
	CostUSD             *float64 `json:"cost_usd,omitempty"`
}

// IsEmpty reports whether every field of u is unset.
func (u *UsageData) IsEmpty() bool {
	if u == nil {
		return true
	}
	return u.InputTokens == nil && u.OutputTokens == nil && u.CacheReadTokens == nil &&
		u.CacheCreationTokens == nil && u.CostUSD == nil
}

// Add returns the componentwise sum of u and other. A nil operand
// contributes nothing; if both sides of a field are nil the result is nil.
func (u *UsageData) Add(other *UsageData) *UsageData {
	if u == nil && other == nil {
		return nil
	}
	out := &UsageData{}
	out.InputTokens = addInt64(fieldOf(u, func(d *UsageData) *int64 { return d.InputTokens }), fieldOf(other, func(d *UsageData) *int64 { return d.InputTokens }))
	out.OutputTokens = addInt64(fieldOf(u, func(d *UsageData) *int64 { return d.OutputTokens }), fieldOf(other, func(d *UsageData) *int64 { return d.OutputTokens }))
	out.CacheReadTokens = addInt64(fieldOf(u, func(d *UsageData) *int64 { return d.CacheReadTokens }), fieldOf(other, func(d *UsageData) *int64 { return d.CacheReadTokens }))
	out.CacheCreationTokens = addInt64(fieldOf(u, func(d *UsageData) *int64 { return d.CacheCreationTokens }), fieldOf(other, func(d *UsageData) *int64 { return d.CacheCreationTokens }))
	out.CostUSD = addFloat64(fieldOf(u, func(d *UsageData) *float64 { return d.CostUSD }), fieldOf(other, func(d *UsageData) *float64 { return d.CostUSD }))
	return out
}

func fieldOf[T any](d *UsageData, get func(*UsageData) T) T {
	var zero T
	if d == nil {
		return zero
	}
	return get(d)
}

func addInt64(a, b *int64) *int64 {
	if a == nil && b == nil {
		return nil
	}
	var av, bv int64
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	sum := av + bv
	return &sum
}

func addFloat64(a, b *float64) *float64 {
	if a == nil && b == nil {
		return nil
	}
	var av, bv float64
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	sum := av + bv
	return &sum
}

// TotalInputTokens returns cache_read + cache_creation + input tokens,
// the formula every backend uses for context-window accounting. Returns
// nil if all three components are unknown.
func (u *UsageData) TotalInputTokens() *int64 {
	if u == nil {
		return nil
	}
	if u.InputTokens == nil && u.CacheReadTokens == nil && u.CacheCreationTokens == nil {
		return nil
	}
	sum := addInt64(addInt64(u.CacheReadTokens, u.CacheCreationTokens), u.InputTokens)
	return sum
}

// Event is the single flattened representation of every tagged-variant
// case described by Kind. Only the fields relevant to a given Kind are
// populated; the rest are zero values and omitted from JSON.
type Event struct {
	Kind          Kind   `json:"type"`
	TimestampMs   int64  `json:"timestamp_ms"`
	CorrelationID string `json:"correlation_id,omitempty"`

	// SessionStart
	SessionID string `json:"session_id,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Model     string `json:"model,omitempty"`
	Cwd       string `json:"cwd,omitempty"`

	// TextDelta / Message
	Role Role   `json:"role,omitempty"`
	Text string `json:"text,omitempty"`

	// ToolStart / ToolEnd
	CallID    string          `json:"call_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Output    string          `json:"output,omitempty"`
	RawOutput json.RawMessage `json:"raw_output,omitempty"`

	// UsageDelta / Message / Result
	Usage *UsageData `json:"usage,omitempty"`

	// Result
	DurationMs   *int64   `json:"duration_ms,omitempty"`
	TotalCostUSD *float64 `json:"total_cost_usd,omitempty"`

	// Error
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// BoolPtr is a small helper for constructing the Success field literal-free.
func BoolPtr(b bool) *bool { return &b }

// Int64Ptr returns a pointer to v, for constructing optional integer fields.
func Int64Ptr(v int64) *int64 { return &v }

// Float64Ptr returns a pointer to v, for constructing optional float fields.
func Float64Ptr(v float64) *float64 { return &v }
