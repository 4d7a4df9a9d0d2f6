// Command agentrunner is a thin demonstration binary wiring the runner
// factory, process supervisor, and normalizer together for one backend at
// a time. It is deliberately not a full product CLI: no list/check/config/
// models subcommands, no config precedence rules, no transcript logger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayshptk/agentrunner/internal/config"
	"github.com/ayshptk/agentrunner/internal/runner"
	"github.com/ayshptk/agentrunner/internal/supervisor"

	_ "github.com/ayshptk/agentrunner/internal/adapters/claude"
	_ "github.com/ayshptk/agentrunner/internal/adapters/codex"
	_ "github.com/ayshptk/agentrunner/internal/adapters/cursor"
	_ "github.com/ayshptk/agentrunner/internal/adapters/opencode"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentrunner",
		Short:        "Drive headless coding-agent CLIs and normalize their output",
		Long:         "agentrunner spawns a backend coding-agent CLI, parses its NDJSON transcript, and emits one unified event stream.",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd())
	return root
}

func buildRunCmd() *cobra.Command {
	var (
		backend    string
		prompt     string
		cwd        string
		model      string
		permission string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one task against a backend and stream normalized events as NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), backend, prompt, cwd, model, permission, configPath)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", fmt.Sprintf("backend identifier (one of %v)", runner.Registered()))
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt to send")
	cmd.Flags().StringVar(&cwd, "cwd", ".", "working directory for the child process")
	cmd.Flags().StringVar(&model, "model", "", "model override, if the backend supports it")
	cmd.Flags().StringVar(&permission, "permission", "read_only", "permission mode: full_access or read_only")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a RunnerDefaults YAML file (defaults to project/global discovery)")
	_ = cmd.MarkFlagRequired("backend")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func runTask(ctx context.Context, backendID, prompt, cwd, model, permission, configPath string) error {
	if configPath == "" {
		configPath = config.Discover()
	}
	defaults, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	builder := config.NewBuilder(defaults)
	if backendID == "" {
		backendID = builder.DefaultBackendOr(backendID)
	}

	adapter, err := runner.Get(backendID)
	if err != nil {
		return err
	}

	req := &runner.TaskRequest{
		Prompt:         prompt,
		BackendID:      backendID,
		Cwd:            cwd,
		Model:          model,
		PermissionMode: runner.PermissionMode(permission),
		Logger:         slog.Default(),
	}
	builder.Apply(backendID, req)

	for _, warning := range runner.ValidateConfig(adapter.Capabilities(), req) {
		slog.Default().Warn(warning)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, token, err := supervisor.Run(runCtx, adapter, req, supervisor.NewToken())
	if err != nil {
		return err
	}
	defer token.Cancel()

	norm := runner.NewNormalizer(cwd, model, prompt)
	enc := json.NewEncoder(os.Stdout)
	for raw := range events {
		for _, out := range norm.Process(raw) {
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encoding event: %w", err)
			}
		}
	}
	return nil
}
