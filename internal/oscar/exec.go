package oscar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// maxOutputTail bounds how much bridge output is quoted in an error.
const maxOutputTail = 4096

// waitDelay bounds the wait for output after the bridge is killed.
const waitDelay = 5 * time.Second

// ExecOptions configures an ExecModel.
type ExecOptions struct {
	// Command is the bridge executable and its fixed arguments.
	Command []string

	// Env is added to the inherited environment as KEY=VALUE pairs.
	Env []string

	// WorkRoot is where work directories are created.
	WorkRoot string

	// KeepWork leaves work directories in place.
	KeepWork bool

	// Timeout bounds one invocation; zero means no limit.
	Timeout time.Duration
}

// ExecModel runs the bridge as a local subprocess.
type ExecModel struct {
	Declaration
	opts   ExecOptions
	logger *zap.Logger
}

// NewExecModel creates an exec backend for a declared model.
func NewExecModel(decl Declaration, opts ExecOptions, logger *zap.Logger) (*ExecModel, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, model.NewCLIError(model.ExitConfigError, "exec backend requires a bridge command")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecModel{Declaration: decl, opts: opts, logger: logger}, nil
}

// Run stages the inputs, runs the bridge and reads the output back.
func (m *ExecModel) Run(ctx context.Context, ini, par, forcing *dataset.Dataset, opts RunOptions) (*dataset.Dataset, error) {
	ws, err := NewWorkspace(m.opts.WorkRoot)
	if err != nil {
		return nil, err
	}
	log := m.logger.With(
		zap.String("run_label", opts.Label.String()),
		zap.String("period", opts.Period.String()),
		zap.String("work_dir", ws.Dir),
	)
	defer func() {
		if m.opts.KeepWork {
			log.Debug("keeping work directory")
			return
		}
		if err := ws.Remove(); err != nil {
			log.Warn("failed to remove work directory", zap.Error(err))
		}
	}()

	if err := ws.Stage(ini, par, forcing); err != nil {
		return nil, err
	}

	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), m.opts.Command[1:]...), BridgeArgs(ws.Dir, opts.NT, opts.VarKeep)...)
	cmd := exec.CommandContext(ctx, m.opts.Command[0], args...)
	cmd.Env = append(os.Environ(), m.opts.Env...)
	// Grandchildren of the bridge can hold the output pipe open after a
	// kill; stop waiting for them.
	cmd.WaitDelay = waitDelay

	log.Debug("running model bridge", zap.Strings("argv", cmd.Args), zap.Int("nt", opts.NT))
	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return nil, model.WrapCLIError(
			model.ExitModelError,
			fmt.Sprintf("model bridge failed for %s %s: %s", opts.Label, opts.Period, Tail(output)),
			err,
		)
	}
	log.Info("model run finished", zap.Duration("elapsed", time.Since(start)))

	return ws.Collect(opts.VarKeep)
}

// Tail returns the last maxOutputTail bytes of the trimmed output.
func Tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputTail {
		s = "..." + s[len(s)-maxOutputTail:]
	}
	if s == "" {
		return "(no output)"
	}
	return s
}

// IsCanceled reports whether err stems from context cancellation or
// deadline expiry.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
