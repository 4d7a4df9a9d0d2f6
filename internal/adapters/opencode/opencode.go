// Package opencode implements the runner.Runner adapter for the OpenCode
// CLI: `opencode run --format json` argument construction and its
// step-based NDJSON schema, including the legacy schema aliases accepted
// for compatibility.
package opencode

import (
	"encoding/json"

	"github.com/ayshptk/agentrunner/internal/event"
	"github.com/ayshptk/agentrunner/internal/runner"
)

const backendID = "opencode"

var binaryCandidates = []string{"opencode"}

func init() {
	runner.Register(backendID, func() runner.Runner { return New() })
}

// Adapter implements runner.Runner for OpenCode. Not safe for concurrent
// use across runs; construct one per run.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return backendID }

func (a *Adapter) IsAvailable() bool {
	_, _, err := runner.LookPath("", binaryCandidates)
	return err == nil
}

func (a *Adapter) ResolveBinary(req *runner.TaskRequest) (string, error) {
	path, _, err := runner.LookPath(req.BinaryPathOverride, binaryCandidates)
	return path, err
}

func (a *Adapter) Capabilities() runner.Capabilities {
	return runner.Capabilities{SupportsModel: true}
}

// BuildArgs places the prompt positionally last, per the CLI shape
// `opencode run --format json [--model M] [--agent plan] EXTRA... <prompt>`.
func (a *Adapter) BuildArgs(req *runner.TaskRequest) []string {
	args := []string{"run", "--format", "json"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.PermissionMode == runner.ReadOnly {
		args = append(args, "--agent", "plan")
	}
	args = append(args, req.ExtraArgs...)
	args = append(args, req.Prompt)
	return args
}

func (a *Adapter) BuildEnv(req *runner.TaskRequest) map[string]string { return nil }

type wireLine struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionID"`
	Part      *wirePart `json:"part"`

	// legacy schema aliases
	Text    string `json:"text"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type wirePart struct {
	Text   string     `json:"text"`
	CallID string     `json:"callID"`
	Tool   string     `json:"tool"`
	State  *wireState `json:"state"`
	Reason string     `json:"reason"`
	Cost   *float64   `json:"cost"`
	Tokens *wireTokens `json:"tokens"`
}

type wireState struct {
	Status string          `json:"status"`
	Input  json.RawMessage `json:"input"`
	Output string          `json:"output"`
}

type wireTokens struct {
	Input  *int64      `json:"input"`
	Output *int64      `json:"output"`
	Cache  *wireCache  `json:"cache"`
}

type wireCache struct {
	Read  *int64 `json:"read"`
	Write *int64 `json:"write"`
}

func (a *Adapter) ParseLine(line string) ([]event.Event, error) {
	var raw wireLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		// OpenCode is the one adapter that tolerates non-JSON lines: a
		// non-JSON line is a raw assistant TextDelta, not a ParseError.
		return []event.Event{{Kind: event.KindTextDelta, Text: line}}, nil
	}
	switch raw.Type {
	case "step_start":
		return []event.Event{{Kind: event.KindSessionStart, SessionID: raw.SessionID, Agent: "opencode"}}, nil
	case "text":
		if raw.Part == nil || raw.Part.Text == "" {
			return nil, nil
		}
		return []event.Event{{Kind: event.KindMessage, Role: event.RoleAssistant, Text: raw.Part.Text}}, nil
	case "tool_use":
		return parseToolUse(raw), nil
	case "step_finish":
		return parseStepFinish(raw), nil
	case "session.start", "session.init", "init":
		return []event.Event{{Kind: event.KindSessionStart, SessionID: raw.SessionID, Agent: "opencode"}}, nil
	case "message", "assistant":
		text := raw.Text
		if text == "" && raw.Part != nil {
			text = raw.Part.Text
		}
		if text == "" {
			return nil, nil
		}
		return []event.Event{{Kind: event.KindMessage, Role: event.RoleAssistant, Text: text}}, nil
	case "result", "done", "complete":
		return []event.Event{{Kind: event.KindResult, Success: event.BoolPtr(true), SessionID: raw.SessionID}}, nil
	case "error":
		msg := raw.Error
		if msg == "" {
			msg = raw.Message
		}
		return []event.Event{{Kind: event.KindError, Message: msg}}, nil
	default:
		return nil, nil
	}
}

func parseToolUse(raw wireLine) []event.Event {
	if raw.Part == nil {
		return nil
	}
	p := raw.Part
	success := p.State != nil && p.State.Status == "completed"
	var input json.RawMessage
	if p.State != nil {
		input = p.State.Input
	}
	events := []event.Event{{Kind: event.KindToolStart, CallID: p.CallID, ToolName: p.Tool, Input: input}}
	output := ""
	if p.State != nil {
		output = p.State.Output
	}
	events = append(events, event.Event{Kind: event.KindToolEnd, CallID: p.CallID, ToolName: p.Tool, Success: event.BoolPtr(success), Output: output})
	return events
}

func parseStepFinish(raw wireLine) []event.Event {
	if raw.Part == nil {
		return nil
	}
	p := raw.Part
	ud := tokensToUsage(p.Tokens, p.Cost)
	var out []event.Event
	if ud != nil {
		out = append(out, event.Event{Kind: event.KindUsageDelta, Usage: ud})
	}
	if p.Reason == "stop" {
		out = append(out, event.Event{Kind: event.KindResult, Success: event.BoolPtr(true), SessionID: raw.SessionID, TotalCostUSD: p.Cost, Usage: ud})
	}
	return out
}

func tokensToUsage(t *wireTokens, cost *float64) *event.UsageData {
	if t == nil && cost == nil {
		return nil
	}
	ud := &event.UsageData{CostUSD: cost}
	if t != nil {
		ud.InputTokens = t.Input
		ud.OutputTokens = t.Output
		if t.Cache != nil {
			ud.CacheReadTokens = t.Cache.Read
			ud.CacheCreationTokens = t.Cache.Write
		}
	}
	if ud.IsEmpty() {
		return nil
	}
	return ud
}
