// Package codex implements the runner.Runner adapter for the Codex CLI:
// `codex exec --json` argument construction and its item-dispatch NDJSON
// schema, including the legacy thread.completed terminal event.
package codex

import (
	"encoding/json"
	"strings"

	"github.com/ayshptk/agentrunner/internal/event"
	"github.com/ayshptk/agentrunner/internal/rerror"
	"github.com/ayshptk/agentrunner/internal/runner"
)

const backendID = "codex"

var binaryCandidates = []string{"codex"}

func init() {
	runner.Register(backendID, func() runner.Runner { return New() })
}

// Adapter implements runner.Runner for Codex. Not safe for concurrent use
// across runs; construct one per run.
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
// `codex exec --json [--model M] --sandbox MODE [--dangerously-bypass-approvals-and-sandbox] EXTRA... <prompt>`.
func (a *Adapter) BuildArgs(req *runner.TaskRequest) []string {
	args := []string{"exec", "--json"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	switch req.PermissionMode {
	case runner.FullAccess:
		args = append(args, "--sandbox", "danger-full-access", "--dangerously-bypass-approvals-and-sandbox")
	case runner.ReadOnly:
		args = append(args, "--sandbox", "read-only")
	}
	args = append(args, req.ExtraArgs...)
	args = append(args, req.Prompt)
	return args
}

func (a *Adapter) BuildEnv(req *runner.TaskRequest) map[string]string { return nil }

type wireLine struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Item   *wireItem       `json:"item"`
	Usage  *wireUsage      `json:"usage"`
	Error  string          `json:"error"`
	Message string         `json:"message"`
	Code   string          `json:"code"`
	ThreadID string        `json:"thread_id"`
	Model  string          `json:"model"`
	Summary *string        `json:"summary"`
	Result *string         `json:"result"`
	DurationMs *int64      `json:"duration_ms"`
}

type wireItem struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Text             string          `json:"text"`
	Content          json.RawMessage `json:"content"`
	Role             string          `json:"role"`
	Command          string          `json:"command"`
	ExitCode         *int            `json:"exit_code"`
	AggregatedOutput *string         `json:"aggregated_output"`
	Output           *string         `json:"output"`
	Path             string          `json:"path"`
}

type wireUsage struct {
	InputTokens       *int64 `json:"input_tokens"`
	CachedInputTokens *int64 `json:"cached_input_tokens"`
	OutputTokens      *int64 `json:"output_tokens"`
}

func (w *wireUsage) toUsageData() *event.UsageData {
	if w == nil || (w.InputTokens == nil && w.CachedInputTokens == nil && w.OutputTokens == nil) {
		return nil
	}
	return &event.UsageData{
		InputTokens:     w.InputTokens,
		OutputTokens:    w.OutputTokens,
		CacheReadTokens: w.CachedInputTokens,
	}
}

func (a *Adapter) ParseLine(line string) ([]event.Event, error) {
	var raw wireLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, rerror.NewParseError(line, err)
	}
	switch raw.Type {
	case "thread.started":
		sessionID := raw.ThreadID
		if sessionID == "" {
			sessionID = "unknown"
		}
		return []event.Event{{Kind: event.KindSessionStart, SessionID: sessionID, Agent: "codex", Model: raw.Model}}, nil
	case "item.started":
		if raw.Item != nil && raw.Item.Type == "command_execution" {
			return []event.Event{{Kind: event.KindToolStart, CallID: raw.Item.ID, ToolName: "shell", Input: commandInput(raw.Item.Command)}}, nil
		}
		return nil, nil
	case "item.completed", "item.created":
		return a.parseItemCompleted(raw), nil
	case "turn.completed":
		var out []event.Event
		if ud := raw.Usage.toUsageData(); ud != nil {
			out = append(out, event.Event{Kind: event.KindUsageDelta, Usage: ud})
		}
		out = append(out, event.Event{Kind: event.KindResult, Success: event.BoolPtr(true)})
		return out, nil
	case "turn.failed":
		msg := raw.Error
		if msg == "" {
			msg = raw.Message
		}
		return []event.Event{{Kind: event.KindError, Message: msg, Code: "turn_failed"}}, nil
	case "thread.completed":
		text := ""
		if raw.Summary != nil {
			text = *raw.Summary
		} else if raw.Result != nil {
			text = *raw.Result
		}
		return []event.Event{{Kind: event.KindResult, Success: event.BoolPtr(true), Text: text, SessionID: raw.ThreadID, DurationMs: raw.DurationMs}}, nil
	case "error":
		return []event.Event{{Kind: event.KindError, Message: raw.Message, Code: raw.Code}}, nil
	default:
		return nil, nil
	}
}

func (a *Adapter) parseItemCompleted(raw wireLine) []event.Event {
	if raw.Item == nil {
		return nil
	}
	item := raw.Item
	switch item.Type {
	case "agent_message", "message":
		text := item.Text
		if text == "" && len(item.Content) > 0 {
			text = extractContentText(item.Content)
		}
		if text == "" {
			return nil
		}
		role := event.RoleAssistant
		switch item.Role {
		case "user":
			role = event.RoleUser
		case "system":
			role = event.RoleSystem
		}
		return []event.Event{{Kind: event.KindMessage, Role: role, Text: text}}
	case "command_execution", "command", "shell":
		success := item.ExitCode == nil || *item.ExitCode == 0
		output := ""
		switch {
		case item.AggregatedOutput != nil:
			output = *item.AggregatedOutput
		case item.Output != nil:
			output = *item.Output
		default:
			output = item.Command
		}
		return []event.Event{{Kind: event.KindToolEnd, CallID: item.ID, ToolName: "shell", Success: event.BoolPtr(success), Output: output}}
	case "file_change":
		input := pathInput(item.Path)
		return []event.Event{
			{Kind: event.KindToolStart, CallID: item.ID, ToolName: "file_change", Input: input},
			{Kind: event.KindToolEnd, CallID: item.ID, ToolName: "file_change", Success: event.BoolPtr(true), Input: input},
		}
	default:
		return nil
	}
}

func commandInput(value string) json.RawMessage {
	b, err := json.Marshal(map[string]string{"command": value})
	if err != nil {
		return nil
	}
	return b
}

func pathInput(value string) json.RawMessage {
	b, err := json.Marshal(map[string]string{"path": value})
	if err != nil {
		return nil
	}
	return b
}

func extractContentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			sb.WriteString(b.Text)
		}
		return sb.String()
	}
	return ""
}
