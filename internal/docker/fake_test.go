package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeAPI records calls and lets tests script the container's behaviour.
// onStart plays the role of the bridge process: it receives the create
// config and host config and returns the exit status and log output.
type fakeAPI struct {
	mu sync.Mutex

	pulls      []string
	created    []*container.Config
	hosts      []*container.HostConfig
	names      []string
	removed    []string
	listOpts   []container.ListOptions
	containers []container.Summary

	onStart func(cfg *container.Config, host *container.HostConfig) (int64, string)
	block   bool // wait never completes

	exit chan container.WaitResponse
	logs string
}

var _ API = (*fakeAPI)(nil)

func (f *fakeAPI) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, nil
}

func (f *fakeAPI) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, ref)
	return io.NopCloser(bytes.NewBufferString(`{"status":"done"}`)), nil
}

func (f *fakeAPI) ContainerCreate(ctx context.Context, cfg *container.Config, host *container.HostConfig,
	_ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, cfg)
	f.hosts = append(f.hosts, host)
	f.names = append(f.names, name)
	f.exit = make(chan container.WaitResponse, 1)
	return container.CreateResponse{ID: "cid-" + name}, nil
}

func (f *fakeAPI) ContainerWait(ctx context.Context, id string, cond container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exit, make(chan error)
}

func (f *fakeAPI) ContainerStart(ctx context.Context, id string, options container.StartOptions) error {
	f.mu.Lock()
	cfg, host := f.created[len(f.created)-1], f.hosts[len(f.hosts)-1]
	exit, block, onStart := f.exit, f.block, f.onStart
	f.mu.Unlock()

	if block {
		return nil
	}
	var code int64
	if onStart != nil {
		var logs string
		code, logs = onStart(cfg, host)
		f.mu.Lock()
		f.logs = logs
		f.mu.Unlock()
	}
	exit <- container.WaitResponse{StatusCode: code}
	return nil
}

func (f *fakeAPI) ContainerLogs(ctx context.Context, id string, options container.LogsOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.logs)); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeAPI) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOpts = append(f.listOpts, options)
	if f.containers == nil {
		return nil, errors.New("daemon unavailable")
	}
	return f.containers, nil
}

func (f *fakeAPI) ContainerRemove(ctx context.Context, id string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeAPI) Close() error {
	return nil
}
