package runner

import (
	"testing"

	"github.com/ayshptk/agentrunner/internal/event"
)

func run(n *Normalizer, in []event.Event) []event.Event {
	var out []event.Event
	for _, e := range in {
		out = append(out, n.Process(e)...)
	}
	return out
}

// P4/P5: synthetic user message insertion, exactly once, only when the
// adapter did not already emit one.
func TestNormalizerSyntheticUserMessage(t *testing.T) {
	n := NewNormalizer("", "", "analyze code")
	out := run(n, []event.Event{
		{Kind: event.KindSessionStart, SessionID: "s1", TimestampMs: 1},
		{Kind: event.KindMessage, Role: event.RoleAssistant, Text: "done", TimestampMs: 2},
		{Kind: event.KindResult, Success: event.BoolPtr(true), TimestampMs: 3},
	})

	if len(out) != 4 {
		t.Fatalf("expected 4 events (session start, synthetic user, assistant, result), got %d: %+v", len(out), out)
	}
	if out[1].Kind != event.KindMessage || out[1].Role != event.RoleUser || out[1].Text != "analyze code" {
		t.Fatalf("expected synthetic user message in position 1, got %+v", out[1])
	}
}

func TestNormalizerNoSyntheticWhenUserMessagePresent(t *testing.T) {
	n := NewNormalizer("", "", "analyze code")
	out := run(n, []event.Event{
		{Kind: event.KindSessionStart, SessionID: "s1", TimestampMs: 1},
		{Kind: event.KindMessage, Role: event.RoleUser, Text: "analyze code", TimestampMs: 2},
		{Kind: event.KindMessage, Role: event.RoleAssistant, Text: "done", TimestampMs: 3},
		{Kind: event.KindResult, Success: event.BoolPtr(true), TimestampMs: 4},
	})

	userCount := 0
	for _, e := range out {
		if e.Kind == event.KindMessage && e.Role == event.RoleUser {
			userCount++
		}
	}
	if userCount != 1 {
		t.Fatalf("expected exactly one user message, got %d in %+v", userCount, out)
	}
}

// Rule 3: empty assistant text dropped silently.
func TestNormalizerDropsEmptyAssistantMessage(t *testing.T) {
	n := NewNormalizer("", "", "")
	out := run(n, []event.Event{
		{Kind: event.KindSessionStart, TimestampMs: 1},
		{Kind: event.KindMessage, Role: event.RoleAssistant, Text: "", TimestampMs: 2},
	})
	if len(out) != 1 {
		t.Fatalf("expected empty assistant message to be dropped, got %+v", out)
	}
}

// P6: Result.text is filled from the last non-empty assistant message.
func TestNormalizerFillsResultText(t *testing.T) {
	n := NewNormalizer("", "", "")
	out := run(n, []event.Event{
		{Kind: event.KindSessionStart, TimestampMs: 1},
		{Kind: event.KindMessage, Role: event.RoleAssistant, Text: "analysis complete", TimestampMs: 2},
		{Kind: event.KindResult, Success: event.BoolPtr(true), TimestampMs: 3},
	})
	last := out[len(out)-1]
	if last.Kind != event.KindResult || last.Text != "analysis complete" {
		t.Fatalf("expected result text filled from last assistant message, got %+v", last)
	}
}

// P7/P8: usage accumulation and cost mirroring.
func TestNormalizerAccumulatesUsageAndMirrorsCost(t *testing.T) {
	n := NewNormalizer("", "", "")
	out := run(n, []event.Event{
		{Kind: event.KindSessionStart, TimestampMs: 1},
		{Kind: event.KindUsageDelta, Usage: &event.UsageData{InputTokens: event.Int64Ptr(100), CostUSD: event.Float64Ptr(0.01)}, TimestampMs: 2},
		{Kind: event.KindUsageDelta, Usage: &event.UsageData{InputTokens: event.Int64Ptr(50), CostUSD: event.Float64Ptr(0.005)}, TimestampMs: 3},
		{Kind: event.KindResult, Success: event.BoolPtr(true), TimestampMs: 4},
	})
	last := out[len(out)-1]
	if last.Usage == nil || *last.Usage.InputTokens != 150 {
		t.Fatalf("expected accumulated input tokens 150, got %+v", last.Usage)
	}
	if last.TotalCostUSD == nil || *last.TotalCostUSD != 0.015 {
		t.Fatalf("expected total_cost_usd mirrored to 0.015, got %v", last.TotalCostUSD)
	}
}

// Rule 6(e)/open question 3: duplicate Result is converted to a
// non-fatal duplicate_result error, never a second Result.
func TestNormalizerSuppressesDuplicateResult(t *testing.T) {
	n := NewNormalizer("", "", "")
	out := run(n, []event.Event{
		{Kind: event.KindSessionStart, TimestampMs: 1},
		{Kind: event.KindResult, Success: event.BoolPtr(true), TimestampMs: 2},
		{Kind: event.KindResult, Success: event.BoolPtr(true), TimestampMs: 3},
	})
	resultCount := 0
	var sawDuplicateError bool
	for _, e := range out {
		if e.Kind == event.KindResult {
			resultCount++
		}
		if e.Kind == event.KindError && e.Code == "duplicate_result" {
			sawDuplicateError = true
		}
	}
	if resultCount != 1 {
		t.Fatalf("expected exactly one Result (I4), got %d in %+v", resultCount, out)
	}
	if !sawDuplicateError {
		t.Fatalf("expected duplicate_result error, got %+v", out)
	}
}

// R2: running the normalizer on an already-normalized stream is a no-op.
func TestNormalizerIdempotence(t *testing.T) {
	n1 := NewNormalizer("/tmp", "m1", "do it")
	first := run(n1, []event.Event{
		{Kind: event.KindSessionStart, SessionID: "s1", TimestampMs: 1},
		{Kind: event.KindMessage, Role: event.RoleAssistant, Text: "ok", TimestampMs: 2},
		{Kind: event.KindUsageDelta, Usage: &event.UsageData{InputTokens: event.Int64Ptr(10)}, TimestampMs: 3},
		{Kind: event.KindResult, Success: event.BoolPtr(true), TimestampMs: 4},
	})

	n2 := NewNormalizer("/tmp", "m1", "do it")
	second := run(n2, first)

	if len(first) != len(second) {
		t.Fatalf("expected idempotent pass to produce the same event count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Kind != second[i].Kind || first[i].Text != second[i].Text {
			t.Fatalf("event %d differs between passes: %+v vs %+v", i, first[i], second[i])
		}
	}
}
