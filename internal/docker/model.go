package docker

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/oscar"
)

// ContainerWorkDir is where the work directory is mounted in the container.
const ContainerWorkDir = "/work"

// removeTimeout bounds container cleanup, which runs even after the run
// context is canceled.
const removeTimeout = 30 * time.Second

// ModelOptions configures the docker backend.
type ModelOptions struct {
	// Image is the bridge image.
	Image string

	// Command replaces the image command; bridge arguments are appended.
	// Empty means the image entrypoint takes the bridge arguments directly.
	Command []string

	// Env is passed to the container as KEY=VALUE pairs.
	Env []string

	// Pull pulls the image once before the first invocation.
	Pull bool

	// Keep leaves finished containers in place.
	Keep bool

	// WorkRoot is where work directories are created on the host.
	WorkRoot string

	// KeepWork leaves work directories in place.
	KeepWork bool

	// Timeout bounds one invocation; zero means no limit.
	Timeout time.Duration
}

// Model runs each invocation in a fresh container with the work directory
// bind-mounted at ContainerWorkDir.
type Model struct {
	oscar.Declaration
	cli    *Client
	opts   ModelOptions
	logger *zap.Logger
	now    func() time.Time

	pullOnce sync.Once
	pullErr  error
}

// NewModel creates a docker backend. The client stays owned by the caller.
func NewModel(cli *Client, decl oscar.Declaration, opts ModelOptions, logger *zap.Logger) (*Model, error) {
	if opts.Image == "" {
		return nil, model.NewCLIError(model.ExitConfigError, "docker backend requires an image")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{Declaration: decl, cli: cli, opts: opts, logger: logger, now: time.Now}, nil
}

// Run stages the inputs, runs the bridge container to completion and reads
// the output back.
func (m *Model) Run(ctx context.Context, ini, par, forcing *dataset.Dataset, opts oscar.RunOptions) (*dataset.Dataset, error) {
	if err := m.ensureImage(ctx); err != nil {
		return nil, err
	}

	ws, err := oscar.NewWorkspace(m.opts.WorkRoot)
	if err != nil {
		return nil, err
	}
	meta := RunMeta{Label: opts.Label, Period: opts.Period, RunID: ws.ID, CreatedAt: m.now()}
	log := m.logger.With(
		zap.String("run_label", opts.Label.String()),
		zap.String("period", opts.Period.String()),
		zap.String("work_dir", ws.Dir),
	)
	defer func() {
		if m.opts.KeepWork {
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

	cfg := &container.Config{
		Image:      m.opts.Image,
		Cmd:        append(append([]string(nil), m.opts.Command...), oscar.BridgeArgs(ContainerWorkDir, opts.NT, opts.VarKeep)...),
		Env:        m.opts.Env,
		Labels:     BuildLabels(meta),
		WorkingDir: ContainerWorkDir,
		User:       hostUser(),
	}
	host := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: ws.Dir,
			Target: ContainerWorkDir,
		}},
	}

	name := ContainerName(meta)
	created, err := m.cli.Inner().ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container %q", name), err)
	}
	log = log.With(zap.String("container", name))
	defer m.cleanup(created.ID, log)

	// Register the wait before starting so a fast exit is not missed.
	waitCh, errCh := m.cli.Inner().ContainerWait(ctx, created.ID, container.WaitConditionNextExit)
	if err := m.cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", name), err)
	}
	log.Debug("model container started", zap.Strings("cmd", cfg.Cmd), zap.Int("nt", opts.NT))
	start := time.Now()

	var status container.WaitResponse
	select {
	case status = <-waitCh:
	case err := <-errCh:
		return nil, model.WrapCLIError(model.ExitModelError,
			fmt.Sprintf("waiting for container %q failed", name), err)
	case <-ctx.Done():
		return nil, model.WrapCLIError(model.ExitModelError,
			fmt.Sprintf("model run %s %s interrupted", opts.Label, opts.Period), ctx.Err())
	}

	if status.StatusCode != 0 || status.Error != nil {
		logs, _ := containerLogs(context.Background(), m.cli, created.ID)
		msg := fmt.Sprintf("model container for %s %s exited with status %d: %s",
			opts.Label, opts.Period, status.StatusCode, oscar.Tail(logs))
		if status.Error != nil {
			msg += " (" + status.Error.Message + ")"
		}
		return nil, model.NewCLIError(model.ExitModelError, msg)
	}
	log.Info("model run finished", zap.Duration("elapsed", time.Since(start)))

	return ws.Collect(opts.VarKeep)
}

// ensureImage pulls the image once per Model when Pull is set.
func (m *Model) ensureImage(ctx context.Context) error {
	if !m.opts.Pull {
		return nil
	}
	m.pullOnce.Do(func() {
		m.pullErr = PullImage(ctx, m.cli, m.opts.Image, m.logger)
	})
	return m.pullErr
}

// cleanup removes the container unless Keep is set. It uses its own
// context so that a canceled run still cleans up.
func (m *Model) cleanup(id string, log *zap.Logger) {
	if m.opts.Keep {
		log.Debug("keeping model container")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := RemoveContainer(ctx, m.cli, id, true); err != nil {
		log.Warn("failed to remove model container", zap.Error(err))
	}
}

// hostUser returns "uid:gid" of this process so files the bridge writes
// in the bind mount stay owned by the caller. Empty on Windows.
func hostUser() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}
