package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// ListManagedContainers returns every container (stopped ones included)
// labelled as created by this tool. A non-empty runLabel narrows the
// result to that run. Filtering happens server-side.
func ListManagedContainers(ctx context.Context, cli *Client, runLabel string) ([]model.ContainerInfo, error) {
	args := filters.NewArgs()
	for k, v := range FilterLabels(runLabel) {
		args.Add("label", k+"="+v)
	}

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// containerToInfo maps an SDK container summary to ContainerInfo. Labels
// that fail to parse leave the derived fields empty rather than hiding
// the container, so that remove can still clean it up.
func containerToInfo(c container.Summary) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		// The API reports names with a leading "/".
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	info := model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Status:        c.State,
		RunLabel:      c.Labels[LabelRunLabel],
		Period:        c.Labels[LabelPeriod],
		Labels:        c.Labels,
	}
	if meta, err := ParseLabels(c.Labels); err == nil {
		info.CreatedAt = meta.CreatedAt
	} else {
		info.CreatedAt = time.Unix(c.Created, 0).UTC()
	}
	return info
}

// GroupContainersByRun groups containers by their run label. Containers
// without one are skipped.
func GroupContainersByRun(containers []model.ContainerInfo) map[string][]model.ContainerInfo {
	groups := make(map[string][]model.ContainerInfo)
	for _, c := range containers {
		if c.RunLabel == "" {
			continue
		}
		groups[c.RunLabel] = append(groups[c.RunLabel], c)
	}
	return groups
}

// RemoveContainer removes a container by ID. With force, a running
// container is killed first.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}

// PullImage pulls ref and waits for the pull to complete. The progress
// stream is drained but not shown.
func PullImage(ctx context.Context, cli *Client, ref string, logger *zap.Logger) error {
	logger.Info("pulling image", zap.String("image", ref))
	rc, err := cli.Inner().ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", ref),
			err,
		)
	}
	defer rc.Close()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", ref),
			err,
		)
	}
	return nil
}

// containerLogs returns the combined stdout and stderr of a container,
// demultiplexed from the Docker log stream.
func containerLogs(ctx context.Context, cli *Client, containerID string) ([]byte, error) {
	rc, err := cli.Inner().ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return buf.Bytes(), err
	}
	return buf.Bytes(), nil
}
