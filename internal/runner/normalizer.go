package runner

import "github.com/ayshptk/agentrunner/internal/event"

// Normalizer is the stateful single-input single-output transformer
// placed between the supervisor stream and the consumer. It never drops
// events except by merging or deliberate synthesis; it fills missing
// fields and enforces invariants I1-I6 from the data model.
//
// All state is local to one Normalizer instance and confined to the
// single task that scans the stream sequentially — there is no shared
// mutable state and no synchronization inside this type.
type Normalizer struct {
	fallbackCwd    string
	fallbackModel  string
	fallbackPrompt string

	sessionID        string
	startTimestampMs int64

	lastAssistantText string

	accumulatedUsage *event.UsageData
	hasUsage         bool

	seenUserMessage bool
	seenUsageDelta  bool
	emittedResult   bool
}

// NewNormalizer constructs a Normalizer with the given fallback values,
// each optional (empty string means "no fallback").
func NewNormalizer(fallbackCwd, fallbackModel, fallbackPrompt string) *Normalizer {
	return &Normalizer{
		fallbackCwd:    fallbackCwd,
		fallbackModel:  fallbackModel,
		fallbackPrompt: fallbackPrompt,
	}
}

// Process applies the normalization rules to one raw input event,
// returning zero or more events to emit downstream, in order.
func (n *Normalizer) Process(in event.Event) []event.Event {
	switch in.Kind {
	case event.KindSessionStart:
		return n.processSessionStart(in)
	case event.KindMessage:
		return n.processMessage(in)
	case event.KindUsageDelta:
		return n.processUsageDelta(in)
	case event.KindResult:
		return n.processResult(in)
	default:
		// TextDelta, ToolStart, ToolEnd, Error, and any upstream
		// transport error all pass through untouched save for the
		// synthetic user-message prefix.
		return n.withPrefix(in)
	}
}

func (n *Normalizer) processSessionStart(in event.Event) []event.Event {
	if in.Model == "" {
		in.Model = n.fallbackModel
	}
	if in.Cwd == "" {
		in.Cwd = n.fallbackCwd
	}
	n.sessionID = in.SessionID
	n.startTimestampMs = in.TimestampMs
	return []event.Event{in}
}

func (n *Normalizer) processMessage(in event.Event) []event.Event {
	switch in.Role {
	case event.RoleUser:
		n.seenUserMessage = true
		return []event.Event{in}
	case event.RoleAssistant:
		if in.Text == "" {
			return nil
		}
		n.lastAssistantText = in.Text
		return n.withPrefix(in)
	default:
		return n.withPrefix(in)
	}
}

func (n *Normalizer) processUsageDelta(in event.Event) []event.Event {
	n.accumulatedUsage = n.accumulatedUsage.Add(in.Usage)
	n.hasUsage = true
	n.seenUsageDelta = true
	return n.withPrefix(in)
}

func (n *Normalizer) processResult(in event.Event) []event.Event {
	if in.Text == "" {
		in.Text = n.lastAssistantText
	}
	if in.SessionID == "" {
		in.SessionID = n.sessionID
	}
	if in.DurationMs == nil && n.startTimestampMs > 0 && in.TimestampMs > 0 {
		diff := in.TimestampMs - n.startTimestampMs
		if diff < 0 {
			diff = 0
		}
		in.DurationMs = &diff
	}
	if in.Usage == nil && n.hasUsage {
		in.Usage = n.accumulatedUsage
	}
	if in.TotalCostUSD == nil && in.Usage != nil && in.Usage.CostUSD != nil {
		in.TotalCostUSD = in.Usage.CostUSD
	}

	var out []event.Event
	if !n.seenUserMessage && n.fallbackPrompt != "" {
		out = append(out, event.Event{Kind: event.KindMessage, Role: event.RoleUser, Text: n.fallbackPrompt, TimestampMs: in.TimestampMs})
		n.seenUserMessage = true
	}
	if !n.seenUsageDelta && in.Usage != nil && !in.Usage.IsEmpty() {
		out = append(out, event.Event{Kind: event.KindUsageDelta, Usage: in.Usage, TimestampMs: in.TimestampMs})
		n.seenUsageDelta = true
	}

	if n.emittedResult {
		// Invariant I4: exactly one Result per run. A second Result
		// (e.g. Codex's legacy thread.completed racing turn.completed)
		// is converted to a non-fatal duplicate-result error instead.
		out = append(out, event.Event{Kind: event.KindError, Message: "duplicate result suppressed by normalizer", Code: "duplicate_result", TimestampMs: in.TimestampMs})
		return out
	}
	n.emittedResult = true
	out = append(out, in)
	return out
}

// withPrefix inserts the synthetic user-message (rule 7) before e, the
// first time an event that is neither SessionStart nor itself a user
// message is observed, provided a fallback prompt was supplied and no
// real user message has been seen.
func (n *Normalizer) withPrefix(e event.Event) []event.Event {
	if !n.seenUserMessage && n.fallbackPrompt != "" {
		n.seenUserMessage = true
		synthetic := event.Event{Kind: event.KindMessage, Role: event.RoleUser, Text: n.fallbackPrompt, TimestampMs: e.TimestampMs}
		return []event.Event{synthetic, e}
	}
	return []event.Event{e}
}
