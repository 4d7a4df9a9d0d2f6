// Package supervisor spawns a backend child process in its own process
// group, streams its stdout line by line through the adapter's parser,
// bounds stderr, and enforces cancellation with a terminate-then-kill
// signal sequence. It is grounded on the teacher's
// internal/mcp.StdioTransport subprocess-management shape, generalized
// from a JSON-RPC-over-stdio transport to a line-oriented NDJSON reader
// with process-group-wide cancellation.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ayshptk/agentrunner/internal/event"
	"github.com/ayshptk/agentrunner/internal/rerror"
	"github.com/ayshptk/agentrunner/internal/runner"
)

// maxStdoutLine bounds the scanner's line buffer at 1 MiB (B2): a single
// stdout line of that size must parse, or error, without aborting the run.
const maxStdoutLine = 1024 * 1024

// maxStderrCapture caps accumulated stderr bytes at 64 KiB (B4); further
// bytes are dropped.
const maxStderrCapture = 64 * 1024

// killGrace is the wait between the terminate signal and the kill signal
// during cancellation (spec.md section 4.2 step 5).
const killGrace = 2 * time.Second

// outputDepth is the suggested bound on the event channel (section 4.2).
const outputDepth = 256

// Token is a cancellation handle for one run. Cancel is idempotent: only
// the first call issues signals (R3).
type Token struct {
	cancel context.CancelFunc
	fired  atomic.Bool
}

// Cancel requests termination of the underlying child process group. Safe
// to call multiple times or after natural termination.
func (t *Token) Cancel() {
	if t.fired.CompareAndSwap(false, true) && t.cancel != nil {
		t.cancel()
	}
}

// NewToken creates a standalone cancellation token not yet bound to a run.
// Run replaces its internal cancel func with one tied to the spawned
// child, so a token may be created before the backend or request is known.
func NewToken() *Token {
	return &Token{cancel: func() {}}
}

// Run spawns req's backend via adapter and returns a channel of events
// plus the cancellation token governing the run. The channel is
// single-consumer and must be drained or cancelled to avoid leaking the
// child process. Errors raised before any event is produced (BinaryNotFound,
// SpawnFailed, InvalidWorkDir) are returned directly rather than as an
// in-band event, per the propagation policy in the error handling design.
func Run(ctx context.Context, adapter runner.Runner, req *runner.TaskRequest, token *Token) (<-chan event.Event, *Token, error) {
	logger := req.LoggerOrDefault().With("backend", adapter.Name(), "correlation_id", uuid.NewString())

	if req.Cwd != "" {
		info, err := os.Stat(req.Cwd)
		if err != nil || !info.IsDir() {
			return nil, nil, rerror.NewInvalidWorkDir(req.Cwd)
		}
	}

	binPath, err := adapter.ResolveBinary(req)
	if err != nil {
		return nil, nil, rerror.NewBinaryNotFound(adapter.Name(), []string{adapter.Name()})
	}

	runCtx, cancel := context.WithCancel(ctx)
	if token == nil {
		token = &Token{}
	}
	token.cancel = cancel

	args := adapter.BuildArgs(req)
	cmd := exec.Command(binPath, args...)
	cmd.Dir = req.Cwd
	cmd.Env = buildEnv(adapter.BuildEnv(req), req.ExtraEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, rerror.NewSpawnFailed(adapter.Name(), err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, nil, rerror.NewSpawnFailed(adapter.Name(), err)
	}

	logger.Info("spawning backend", "binary", binPath, "args", redactArgs(args))
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, rerror.NewSpawnFailed(adapter.Name(), err)
	}

	out := make(chan event.Event, outputDepth)
	stderrCap := &stderrCapture{}
	waitDone := make(chan struct{})

	// Task D: kill-after-timeout, triggered by cancellation. Runs for the
	// lifetime of the call regardless of how the other tasks finish, so
	// it is not tracked by readersWg below. It never calls cmd.Process.Wait
	// itself — only Task C reaps the child — and instead watches waitDone,
	// which Task C closes once cmd.Wait has returned.
	go func() {
		<-runCtx.Done()
		killProcessGroup(cmd, waitDone, logger)
	}()

	var readersWg sync.WaitGroup

	// Task B: stderr collector, drains until EOF or cap reached; never
	// blocks the stdout reader.
	readersWg.Add(1)
	go func() {
		defer readersWg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), maxStdoutLine)
		for scanner.Scan() {
			logger.Debug("child stderr", "line", scanner.Text())
			stderrCap.append(scanner.Text())
		}
	}()

	// Task A: stdout reader -> parser -> stamper -> channel sender.
	readersWg.Add(1)
	go func() {
		defer readersWg.Done()
		scanner := bufio.NewScanner(stdout)
		// Room for the line itself plus its "\r\n" terminator.
		scanner.Buffer(make([]byte, 64*1024), maxStdoutLine+2)
		for scanner.Scan() {
			if runCtx.Err() != nil {
				return
			}
			line := strings.TrimRight(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			events, perr := adapter.ParseLine(line)
			now := time.Now().UnixMilli()
			for i := range events {
				events[i].TimestampMs = now
				if !sendEvent(runCtx, out, events[i]) {
					return
				}
			}
			if perr != nil {
				var rerr *rerror.RunnerError
				if errors.As(perr, &rerr) {
					logger.Warn("parse error", "preview", rerr.Preview)
					if !sendEvent(runCtx, out, parseErrorEvent(rerr, now)) {
						return
					}
				}
			}
		}
	}()

	// Task C: exit waiter. Appends a terminal ProcessFailed event on
	// non-zero exit (section 4.2 step 7), then closes the channel. This
	// is the sole closer of out, so stdout/stderr readers above never
	// close it themselves.
	go func() {
		readersWg.Wait()
		waitErr := cmd.Wait()
		close(waitDone)

		if runCtx.Err() == nil {
			exitCode := 0
			var exitErr *exec.ExitError
			switch {
			case errors.As(waitErr, &exitErr):
				exitCode = exitErr.ExitCode()
			case waitErr != nil:
				exitCode = -1
			}
			if exitCode != 0 {
				logger.Warn("child exited non-zero", "code", exitCode)
				rerr := rerror.NewProcessFailed(exitCode, stderrCap.String())
				sendEvent(runCtx, out, parseErrorEvent(rerr, time.Now().UnixMilli()))
			}
		}
		close(out)
		cancel()
	}()

	return out, token, nil
}

type stderrCapture struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (s *stderrCapture) append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := maxStderrCapture - s.buf.Len()
	if remaining <= 0 {
		return
	}
	line += "\n"
	if len(line) > remaining {
		line = line[:remaining]
	}
	s.buf.WriteString(line)
}

func (s *stderrCapture) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func sendEvent(ctx context.Context, out chan<- event.Event, e event.Event) bool {
	select {
	case out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

func parseErrorEvent(rerr *rerror.RunnerError, tsMs int64) event.Event {
	return event.Event{Kind: event.KindError, Message: rerr.Msg, Code: string(rerr.Code), TimestampMs: tsMs}
}

func killProcessGroup(cmd *exec.Cmd, waitDone <-chan struct{}, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	logger.Info("cancelling run, signalling process group", "pgid", pgid)
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	timer := time.NewTimer(killGrace)
	defer timer.Stop()
	select {
	case <-waitDone:
	case <-timer.C:
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}

func buildEnv(adapterEnv, extraEnv map[string]string) []string {
	env := os.Environ()
	for k, v := range adapterEnv {
		env = append(env, k+"="+v)
	}
	for k, v := range extraEnv {
		env = append(env, k+"="+v)
	}
	return env
}

func redactArgs(args []string) []string {
	redacted := make([]string, len(args))
	copy(redacted, args)
	for i, a := range args {
		if strings.Contains(strings.ToLower(a), "key") || strings.Contains(strings.ToLower(a), "token") {
			redacted[i] = "[redacted]"
		}
	}
	return redacted
}
