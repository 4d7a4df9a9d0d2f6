package claude

import (
	"testing"

	"github.com/ayshptk/agentrunner/internal/event"
	"github.com/ayshptk/agentrunner/internal/runner"
)

// S1: Claude happy path.
func TestParseLineHappyPath(t *testing.T) {
	a := New()

	lines := []string{
		`{"type":"system","subtype":"init","session_id":"mock-session","model":"mock-model","cwd":"/tmp"}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"I analyzed the code."}]}}`,
		`{"type":"result","subtype":"success","result":"Analysis complete.","session_id":"mock-session","duration_ms":500,"total_cost_usd":0.01}`,
	}

	var all []event.Event
	for _, line := range lines {
		events, err := a.ParseLine(line)
		if err != nil {
			t.Fatalf("unexpected parse error on %q: %v", line, err)
		}
		all = append(all, events...)
	}

	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(all), all)
	}
	if all[0].Kind != event.KindSessionStart || all[0].SessionID != "mock-session" || all[0].Model != "mock-model" {
		t.Fatalf("unexpected session start: %+v", all[0])
	}
	if all[1].Kind != event.KindMessage || all[1].Role != event.RoleAssistant || all[1].Text != "I analyzed the code." {
		t.Fatalf("unexpected message: %+v", all[1])
	}
	if all[2].Kind != event.KindResult || all[2].Success == nil || !*all[2].Success || all[2].Text != "Analysis complete." {
		t.Fatalf("unexpected result: %+v", all[2])
	}
}

func TestParseLineToolUseAndResult(t *testing.T) {
	a := New()

	_, err := a.ParseLine(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"call-1","name":"read","input":{"path":"x"}}]}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := a.ParseLine(`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"call-1","content":"file body"}]}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != event.KindToolEnd {
		t.Fatalf("expected one ToolEnd, got %+v", events)
	}
	if events[0].ToolName != "read" {
		t.Fatalf("expected tool name patched from prior ToolStart, got %q", events[0].ToolName)
	}
	if events[0].Output != "file body" {
		t.Fatalf("expected stringified content, got %q", events[0].Output)
	}
}

func TestParseLineUnknownToolNameFallback(t *testing.T) {
	a := New()
	events, err := a.ParseLine(`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"never-seen","content":"x"}]}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].ToolName != "unknown" {
		t.Fatalf("expected fallback tool name unknown, got %+v", events)
	}
}

func TestParseLineInvalidJSON(t *testing.T) {
	a := New()
	events, err := a.ParseLine(`not json`)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if events != nil {
		t.Fatalf("expected no events alongside parse error, got %+v", events)
	}
}

func TestBuildArgsOrdering(t *testing.T) {
	a := New()
	req := &runner.TaskRequest{Prompt: "analyze code", PermissionMode: runner.FullAccess}
	args := a.BuildArgs(req)
	if args[0] != "-p" || args[1] != req.Prompt {
		t.Fatalf("expected prompt immediately after -p, got %+v", args)
	}
}
