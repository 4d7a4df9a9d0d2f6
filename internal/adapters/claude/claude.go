// Package claude implements the runner.Runner adapter for the Claude Code
// CLI: stream-json argument construction and its five-variant NDJSON
// schema (system/init, assistant, user, stream_event, result).
package claude

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ayshptk/agentrunner/internal/event"
	"github.com/ayshptk/agentrunner/internal/rerror"
	"github.com/ayshptk/agentrunner/internal/runner"
)

const backendID = "claude"

var binaryCandidates = []string{"claude"}

func init() {
	runner.Register(backendID, func() runner.Runner { return New() })
}

// Adapter implements runner.Runner for Claude Code. It is not safe for
// concurrent use by multiple supervisor runs; construct one per run.
type Adapter struct {
	// callIDToToolName tracks tool_use blocks seen on assistant messages
	// so a later user/tool_result block (which carries no tool name of
	// its own) can be patched with the originating tool name.
	callIDToToolName map[string]string
}

// New constructs a fresh Claude adapter.
func New() *Adapter {
	return &Adapter{callIDToToolName: make(map[string]string)}
}

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
	return runner.Capabilities{
		SupportsSystemPrompt:       true,
		SupportsAppendSystemPrompt: true,
		SupportsBudget:             true,
		SupportsModel:              true,
		SupportsMaxTurns:           true,
	}
}

func (a *Adapter) BuildArgs(req *runner.TaskRequest) []string {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	switch req.PermissionMode {
	case runner.FullAccess:
		args = append(args, "--dangerously-skip-permissions")
	case runner.ReadOnly:
		args = append(args, "--permission-mode", "plan")
	}
	if req.MaxTurns != nil {
		args = append(args, "--max-turns", strconv.Itoa(*req.MaxTurns))
	}
	if req.MaxBudgetUSD != nil {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(*req.MaxBudgetUSD, 'f', -1, 64))
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	if req.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.AppendSystemPrompt)
	}
	args = append(args, req.ExtraArgs...)
	return args
}

func (a *Adapter) BuildEnv(req *runner.TaskRequest) map[string]string {
	return nil
}

type wireLine struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype"`
	SessionID  string          `json:"session_id"`
	Model      string          `json:"model"`
	Cwd        string          `json:"cwd"`
	Message    *wireMessage    `json:"message"`
	Event      *wireStreamEvt  `json:"event"`
	Usage      *wireUsage      `json:"usage"`
	Result     string          `json:"result"`
	DurationMs *int64          `json:"duration_ms"`
	TotalCost  *float64        `json:"total_cost_usd"`
}

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type wireContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   *bool           `json:"is_error"`
}

type wireStreamEvt struct {
	Delta *struct {
		Text string `json:"text"`
	} `json:"delta"`
	Usage *wireUsage `json:"usage"`
}

type wireUsage struct {
	InputTokens              *int64   `json:"input_tokens"`
	OutputTokens              *int64   `json:"output_tokens"`
	CacheReadInputTokens      *int64   `json:"cache_read_input_tokens"`
	CacheCreationInputTokens  *int64   `json:"cache_creation_input_tokens"`
	CostUSD                   *float64 `json:"cost_usd"`
}

func (w *wireUsage) toUsageData() *event.UsageData {
	if w == nil {
		return nil
	}
	if w.InputTokens == nil && w.OutputTokens == nil && w.CacheReadInputTokens == nil && w.CacheCreationInputTokens == nil && w.CostUSD == nil {
		return nil
	}
	return &event.UsageData{
		InputTokens:         w.InputTokens,
		OutputTokens:        w.OutputTokens,
		CacheReadTokens:     w.CacheReadInputTokens,
		CacheCreationTokens: w.CacheCreationInputTokens,
		CostUSD:             w.CostUSD,
	}
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
		return []event.Event{{
			Kind:      event.KindSessionStart,
			SessionID: raw.SessionID,
			Agent:     "claude",
			Model:     raw.Model,
			Cwd:       raw.Cwd,
		}}, nil
	case "assistant":
		return a.parseAssistant(raw), nil
	case "user":
		return a.parseUser(raw), nil
	case "stream_event":
		return a.parseStreamEvent(raw), nil
	case "result":
		success := raw.Subtype == "success"
		return []event.Event{{
			Kind:         event.KindResult,
			Success:      event.BoolPtr(success),
			Text:         raw.Result,
			SessionID:    raw.SessionID,
			DurationMs:   raw.DurationMs,
			TotalCostUSD: raw.TotalCost,
			Usage:        raw.Usage.toUsageData(),
		}}, nil
	default:
		return nil, nil
	}
}

func (a *Adapter) parseAssistant(raw wireLine) []event.Event {
	if raw.Message == nil {
		return nil
	}
	var text strings.Builder
	var toolStarts []event.Event
	for _, block := range raw.Message.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			a.callIDToToolName[block.ID] = block.Name
			toolStarts = append(toolStarts, event.Event{
				Kind:     event.KindToolStart,
				CallID:   block.ID,
				ToolName: block.Name,
				Input:    block.Input,
			})
		}
	}
	var out []event.Event
	if text.Len() > 0 {
		out = append(out, event.Event{Kind: event.KindMessage, Role: event.RoleAssistant, Text: text.String()})
	}
	out = append(out, toolStarts...)
	return out
}

func (a *Adapter) parseUser(raw wireLine) []event.Event {
	if raw.Message == nil {
		return nil
	}
	var out []event.Event
	for _, block := range raw.Message.Content {
		if block.Type != "tool_result" {
			continue
		}
		toolName, ok := a.callIDToToolName[block.ToolUseID]
		if !ok || toolName == "" {
			toolName = "unknown"
		}
		success := true
		if block.IsError != nil {
			success = !*block.IsError
		}
		out = append(out, event.Event{
			Kind:     event.KindToolEnd,
			CallID:   block.ToolUseID,
			ToolName: toolName,
			Success:  event.BoolPtr(success),
			Output:   stringifyContent(block.Content),
		})
	}
	return out
}

func (a *Adapter) parseStreamEvent(raw wireLine) []event.Event {
	var out []event.Event
	if raw.Event != nil && raw.Event.Delta != nil && raw.Event.Delta.Text != "" {
		out = append(out, event.Event{Kind: event.KindTextDelta, Text: raw.Event.Delta.Text})
	}
	var usage *wireUsage
	if raw.Event != nil && raw.Event.Usage != nil {
		usage = raw.Event.Usage
	} else if raw.Usage != nil {
		usage = raw.Usage
	}
	if ud := usage.toUsageData(); ud != nil {
		out = append(out, event.Event{Kind: event.KindUsageDelta, Usage: ud})
	}
	return out
}

// stringifyContent implements the tool_result content stringification
// rule: verbatim if a JSON string, concatenated .text fields if an array
// of content blocks, JSON-stringified otherwise.
func stringifyContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
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
	return string(raw)
}
