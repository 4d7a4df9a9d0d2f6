// Package cursor implements the runner.Runner adapter for the Cursor
// agent CLI: `agent -p --output-format stream-json` argument construction
// and its polymorphic `*ToolCall`-suffixed tool_call schema.
package cursor

import (
	"encoding/json"
	"strings"

	"github.com/ayshptk/agentrunner/internal/event"
	"github.com/ayshptk/agentrunner/internal/rerror"
	"github.com/ayshptk/agentrunner/internal/runner"
)

const backendID = "cursor"

var binaryCandidates = []string{"cursor-agent", "agent"}

func init() {
	runner.Register(backendID, func() runner.Runner { return New() })
}

// Adapter implements runner.Runner for Cursor. Not safe for concurrent
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
// `agent -p --output-format stream-json [--model M] [PERMISSION_FLAG] EXTRA... <prompt>`.
func (a *Adapter) BuildArgs(req *runner.TaskRequest) []string {
	args := []string{"-p", "--output-format", "stream-json"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	switch req.PermissionMode {
	case runner.FullAccess:
		args = append(args, "--force")
	case runner.ReadOnly:
		args = append(args, "--mode", "plan")
	}
	args = append(args, req.ExtraArgs...)
	args = append(args, req.Prompt)
	return args
}

func (a *Adapter) BuildEnv(req *runner.TaskRequest) map[string]string { return nil }

type wireLine struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype"`
	SessionID  string          `json:"session_id"`
	Model      string          `json:"model"`
	Cwd        string          `json:"cwd"`
	Message    *wireMessage    `json:"message"`
	ToolCall   json.RawMessage `json:"tool_call"`
	Result     string          `json:"result"`
	IsError    *bool           `json:"is_error"`
	DurationMs *int64          `json:"duration_ms"`
}

type wireMessage struct {
	Content []wireContent `json:"content"`
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (a *Adapter) ParseLine(line string) ([]event.Event, error) {
	var raw wireLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, rerror.NewParseError(line, err)
	}
	switch raw.Type {
	case "system":
		if raw.Subtype != "init" {
			return nil, nil
		}
		return []event.Event{{Kind: event.KindSessionStart, SessionID: raw.SessionID, Agent: "cursor", Model: raw.Model, Cwd: raw.Cwd}}, nil
	case "assistant":
		if text := concatText(raw.Message); text != "" {
			return []event.Event{{Kind: event.KindMessage, Role: event.RoleAssistant, Text: text}}, nil
		}
		return nil, nil
	case "user":
		if text := concatText(raw.Message); text != "" {
			return []event.Event{{Kind: event.KindMessage, Role: event.RoleUser, Text: text}}, nil
		}
		return nil, nil
	case "tool_call":
		return a.parseToolCall(raw), nil
	case "result":
		success := raw.Subtype == "success" && (raw.IsError == nil || !*raw.IsError)
		return []event.Event{{Kind: event.KindResult, Success: event.BoolPtr(success), Text: raw.Result, SessionID: raw.SessionID, DurationMs: raw.DurationMs}}, nil
	default:
		return nil, nil
	}
}

func concatText(msg *wireMessage) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// toolCallEnvelope captures the two wire shapes a tool_call body may take:
// a polymorphic object keyed by "<Name>ToolCall"/"<name>_tool_call", or a
// flat {name, arguments} pair.
type toolCallEnvelope struct {
	CallID  string `json:"call_id"`
	Subtype string `json:"subtype"`
	Name    string `json:"name"`
	Args    json.RawMessage `json:"arguments"`
}

func (a *Adapter) parseToolCall(raw wireLine) []event.Event {
	var env toolCallEnvelope
	if err := json.Unmarshal(raw.ToolCall, &env); err != nil {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw.ToolCall, &fields); err != nil {
		return nil
	}

	toolName := "unknown"
	var payload json.RawMessage
	payloadKey := "args"
	if env.Subtype == "completed" {
		payloadKey = "result"
	}
	for key, value := range fields {
		name, ok := toolCallKeyName(key)
		if !ok {
			continue
		}
		toolName = name
		var body map[string]json.RawMessage
		if err := json.Unmarshal(value, &body); err == nil {
			payload = body[payloadKey]
		}
		break
	}
	if toolName == "unknown" && env.Name != "" {
		toolName = env.Name
		payload = env.Args
	}

	callID := env.CallID
	switch env.Subtype {
	case "started":
		return []event.Event{{Kind: event.KindToolStart, CallID: callID, ToolName: toolName, Input: payload}}
	case "completed":
		return []event.Event{{Kind: event.KindToolEnd, CallID: callID, ToolName: toolName, Success: event.BoolPtr(true), Output: stringifyPayload(payload), RawOutput: payload}}
	default:
		return nil
	}
}

// toolCallKeyName extracts the tool name from a key matching the suffix
// "ToolCall" or "_tool_call" (e.g. "readToolCall" -> "read").
func toolCallKeyName(key string) (string, bool) {
	switch {
	case strings.HasSuffix(key, "ToolCall"):
		return strings.TrimSuffix(key, "ToolCall"), true
	case strings.HasSuffix(key, "_tool_call"):
		return strings.TrimSuffix(key, "_tool_call"), true
	default:
		return "", false
	}
}

func stringifyPayload(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
