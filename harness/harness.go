package harness

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/workload"
)

// Kind is the registry name of the process adapter.
const Kind = "process"

// DefaultCloseGrace is how long Close waits for a harness to exit on its
// own before killing it.
const DefaultCloseGrace = 5 * time.Second

// Runner launches a harness binary per trial and speaks the line
// protocol with it.
type Runner struct {
	Engine     string
	BinaryPath string
	ExtraArgs  []string
	Env        []string
	CloseGrace time.Duration
	Logger     *slog.Logger
}

// NewRunner creates a Runner for the named engine.
// For harnesses that need a wrapper (e.g. java -jar), pass the wrapper
// command as binaryPath and the JAR path in extraArgs. Env is appended to
// the inherited environment.
func NewRunner(
	name, binaryPath string,
	extraArgs, env []string,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		Engine:     name,
		BinaryPath: binaryPath,
		ExtraArgs:  extraArgs,
		Env:        env,
		CloseGrace: DefaultCloseGrace,
		Logger:     logger.With(slog.String("engine", name)),
	}
}

// Factory builds a process adapter from a suite spec.
func Factory(spec engine.Spec, logger *slog.Logger) (engine.Adapter, error) {
	if spec.Binary == "" {
		return nil, fmt.Errorf("engine %s: binary is required for kind %s", spec.Name, Kind)
	}

	cmd := WrapCommand(spec.Binary)

	args := make([]string, 0, len(cmd.ExtraArgs)+len(spec.Args)+2)
	args = append(args, cmd.ExtraArgs...)
	args = append(args, spec.Args...)

	if spec.Operator != "" {
		args = append(args, "--operator", spec.Operator)
	}

	return NewRunner(spec.Name, cmd.Binary, args, append(cmd.Env, spec.Env...), logger), nil
}

func (r *Runner) Name() string { return r.Engine }

// Open starts the harness process. The process outlives ctx; it ends when
// the handle is closed.
func (r *Runner) Open(ctx context.Context) (engine.Handle, error) {
	cmd := exec.Command(r.BinaryPath, r.ExtraArgs...)

	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("harness %s stdin: %w", r.Engine, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("harness %s stdout: %w", r.Engine, err)
	}

	h := &processHandle{
		runner:  r,
		cmd:     cmd,
		stdin:   stdin,
		replies: make(chan Reply, 16),
		exited:  make(chan struct{}),
		quit:    make(chan struct{}),
	}

	cmd.Stderr = &h.stderr

	r.Logger.DebugContext(ctx, "starting harness", slog.String("binary", r.BinaryPath))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start harness %s: %w", r.Engine, err)
	}

	h.enc = json.NewEncoder(stdin)

	go h.read(stdout)

	return h, nil
}

// lockedBuffer collects stderr written by the exec copier goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

type processHandle struct {
	runner   *Runner
	frontier engine.Frontier
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   lockedBuffer

	writeMu sync.Mutex
	enc     *json.Encoder

	replies chan Reply
	exited  chan struct{}
	exitErr error
	quit    chan struct{}

	closeOnce sync.Once
	closeErr  error
	killed    bool
}

// read forwards replies until stdout closes, then reaps the process.
func (h *processHandle) read(stdout io.Reader) {
	defer close(h.exited)
	defer close(h.replies)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)

	for scanner.Scan() {
		var reply Reply
		if err := json.Unmarshal(scanner.Bytes(), &reply); err != nil {
			reply = Reply{Error: fmt.Sprintf("malformed reply %q: %v", scanner.Text(), err)}
		}

		select {
		case h.replies <- reply:
		case <-h.quit:
		}
	}

	_, _ = io.Copy(io.Discard, stdout)
	h.exitErr = h.cmd.Wait()
}

// crashed builds the error for a harness that exited or broke protocol.
func (h *processHandle) crashed(op string, epoch engine.Epoch, cause string) error {
	// stderr is complete only once the process has been reaped.
	select {
	case <-h.exited:
	case <-time.After(time.Second):
	}

	return engine.Wrap(h.runner.Engine, op, epoch, fmt.Errorf(
		"%w: %s\nstderr: %s", engine.ErrBackendPanicked, cause, h.stderr.String(),
	))
}

func (h *processHandle) send(req Request) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := h.enc.Encode(req); err != nil {
		return h.crashed(req.Op, req.Epoch, fmt.Sprintf("write request: %v", err))
	}

	return nil
}

func (h *processHandle) Submit(batch []workload.Update, epoch engine.Epoch) error {
	if err := h.frontier.Submit(epoch); err != nil {
		return engine.Wrap(h.runner.Engine, OpSubmit, epoch, err)
	}

	return h.send(Request{Op: OpSubmit, Epoch: epoch, Updates: toWire(batch)})
}

func (h *processHandle) Advance(epoch engine.Epoch) error {
	if err := h.frontier.Advance(epoch); err != nil {
		return engine.Wrap(h.runner.Engine, OpAdvance, epoch, err)
	}

	return h.send(Request{Op: OpAdvance, Epoch: epoch})
}

func (h *processHandle) Drain(ctx context.Context, epoch engine.Epoch) (engine.DrainStats, error) {
	if h.frontier.Drained(epoch) {
		return engine.DrainStats{}, nil
	}

	if !h.frontier.Sealed(epoch) {
		<-ctx.Done()

		return engine.DrainStats{}, engine.Wrap(h.runner.Engine, OpDrain, epoch,
			engine.WaitError(ctx, epoch))
	}

	if err := h.send(Request{Op: OpDrain, Epoch: epoch}); err != nil {
		return engine.DrainStats{}, err
	}

	items := 0

	for {
		select {
		case <-ctx.Done():
			return engine.DrainStats{}, engine.Wrap(h.runner.Engine, OpDrain, epoch,
				engine.WaitError(ctx, epoch))

		case reply, ok := <-h.replies:
			if !ok {
				<-h.exited

				return engine.DrainStats{}, h.crashed(OpDrain, epoch,
					fmt.Sprintf("harness exited: %v", h.exitErr))
			}

			if reply.Error != "" {
				return engine.DrainStats{}, h.crashed(OpDrain, epoch, reply.Error)
			}

			items += reply.Items

			// A reply for an earlier epoch belongs to a drain that timed out.
			if reply.Epoch < epoch {
				continue
			}

			h.frontier.MarkDrained(epoch)

			return engine.DrainStats{Items: items}, nil
		}
	}
}

// Close asks the harness to stop, then kills it if it has not exited
// within the grace period.
func (h *processHandle) Close() error {
	h.closeOnce.Do(func() {
		_ = h.send(Request{Op: OpClose})
		_ = h.stdin.Close()
		close(h.quit)

		grace := h.runner.CloseGrace
		if grace <= 0 {
			grace = DefaultCloseGrace
		}

		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-h.exited:
		case <-timer.C:
			h.runner.Logger.Warn("harness did not exit, killing",
				slog.Duration("grace", grace),
			)

			h.killed = true
			_ = h.cmd.Process.Kill()
			<-h.exited
		}

		var exitErr *exec.ExitError
		if h.exitErr != nil && !h.killed && !errors.As(h.exitErr, &exitErr) {
			h.closeErr = fmt.Errorf("harness %s: %w", h.runner.Engine, h.exitErr)
		}
	})

	return h.closeErr
}
