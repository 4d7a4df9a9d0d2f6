package cursor

import (
	"testing"

	"github.com/ayshptk/agentrunner/internal/event"
	"github.com/ayshptk/agentrunner/internal/runner"
)

// S3: Cursor tool cycle.
func TestParseLineToolCycle(t *testing.T) {
	a := New()

	lines := []string{
		`{"type":"system","subtype":"init","session_id":"tc-session","model":"mock-model"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"Refactored the module."}]}}`,
		`{"type":"tool_call","tool_call":{"call_id":"tc-1","subtype":"started","readToolCall":{"args":{"path":"src/main.rs"}}}}`,
		`{"type":"tool_call","tool_call":{"call_id":"tc-1","subtype":"completed","readToolCall":{"result":{"success":{"content":"fn main(){}"}}}}}`,
		`{"type":"result","subtype":"success","result":"done"}`,
	}

	var all []event.Event
	for _, line := range lines {
		events, err := a.ParseLine(line)
		if err != nil {
			t.Fatalf("unexpected parse error on %q: %v", line, err)
		}
		all = append(all, events...)
	}

	if len(all) != 5 {
		t.Fatalf("expected 5 events, got %d: %+v", len(all), all)
	}
	if all[2].Kind != event.KindToolStart || all[2].CallID != "tc-1" || all[2].ToolName != "read" {
		t.Fatalf("unexpected tool start: %+v", all[2])
	}
	if all[3].Kind != event.KindToolEnd || all[3].ToolName != "read" || all[3].Success == nil || !*all[3].Success {
		t.Fatalf("unexpected tool end: %+v", all[3])
	}
	if all[4].Kind != event.KindResult || all[4].Text != "done" {
		t.Fatalf("unexpected result: %+v", all[4])
	}
}

func TestBuildArgsPromptAlwaysLast(t *testing.T) {
	a := New()
	req := &runner.TaskRequest{Prompt: "do the thing", PermissionMode: runner.FullAccess}
	args := a.BuildArgs(req)
	if args[len(args)-1] != "do the thing" {
		t.Fatalf("expected prompt last, got %+v", args)
	}
	found := false
	for _, arg := range args {
		if arg == "--force" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected --force for FullAccess, got %+v", args)
	}
}
