package codex

import (
	"testing"

	"github.com/ayshptk/agentrunner/internal/event"
	"github.com/ayshptk/agentrunner/internal/runner"
)

func promptReq(prompt string) *runner.TaskRequest {
	return &runner.TaskRequest{Prompt: prompt, PermissionMode: runner.ReadOnly}
}

// S2: Codex with tool.
func TestParseLineWithTool(t *testing.T) {
	a := New()

	lines := []string{
		`{"type":"thread.started","thread_id":"th-mock"}`,
		`{"type":"item.completed","item":{"type":"agent_message","text":"Fixed the bug."}}`,
		`{"type":"item.started","item":{"id":"cmd-1","type":"command_execution","command":"git diff"}}`,
		`{"type":"item.completed","item":{"id":"cmd-1","type":"command_execution","command":"git diff","aggregated_output":"diff output","exit_code":0}}`,
		`{"type":"turn.completed","usage":{"input_tokens":100,"cached_input_tokens":50,"output_tokens":20}}`,
	}

	var all []event.Event
	for _, line := range lines {
		events, err := a.ParseLine(line)
		if err != nil {
			t.Fatalf("unexpected parse error on %q: %v", line, err)
		}
		all = append(all, events...)
	}

	if len(all) != 6 {
		t.Fatalf("expected 6 events (session start, message, tool start, tool end, usage, result), got %d: %+v", len(all), all)
	}
	if all[0].Kind != event.KindSessionStart || all[0].SessionID != "th-mock" {
		t.Fatalf("unexpected session start: %+v", all[0])
	}
	if all[1].Kind != event.KindMessage || all[1].Text != "Fixed the bug." {
		t.Fatalf("unexpected message: %+v", all[1])
	}
	if all[2].Kind != event.KindToolStart || all[2].CallID != "cmd-1" || all[2].ToolName != "shell" {
		t.Fatalf("unexpected tool start: %+v", all[2])
	}
	if all[3].Kind != event.KindToolEnd || all[3].Success == nil || !*all[3].Success || all[3].Output != "diff output" {
		t.Fatalf("unexpected tool end: %+v", all[3])
	}
	if all[4].Kind != event.KindUsageDelta || all[4].Usage == nil || *all[4].Usage.InputTokens != 100 || *all[4].Usage.CacheReadTokens != 50 {
		t.Fatalf("unexpected usage delta: %+v", all[4])
	}
	if all[5].Kind != event.KindResult || all[5].Success == nil || !*all[5].Success {
		t.Fatalf("unexpected result: %+v", all[5])
	}
}

func TestParseLineTurnFailed(t *testing.T) {
	a := New()
	events, err := a.ParseLine(`{"type":"turn.failed","error":"boom"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != event.KindError || events[0].Code != "turn_failed" || events[0].Message != "boom" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestBuildArgsPromptAlwaysLast(t *testing.T) {
	a := New()
	req := promptReq("fix the bug")
	args := a.BuildArgs(req)
	if args[len(args)-1] != "fix the bug" {
		t.Fatalf("expected prompt last, got %+v", args)
	}
}
