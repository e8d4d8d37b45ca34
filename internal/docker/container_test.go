package docker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

func managedSummary(id, name, state string, meta RunMeta) container.Summary {
	return container.Summary{
		ID:     id,
		Names:  []string{"/" + name},
		State:  state,
		Labels: BuildLabels(meta),
	}
}

func TestContainerToInfo(t *testing.T) {
	meta := sampleMeta()
	info := containerToInfo(managedSummary("abc123", "oscar-JULES_DR_b-scenario-2f1c9a7e", "exited", meta))

	assert.Equal(t, "abc123", info.ContainerID)
	assert.Equal(t, "oscar-JULES_DR_b-scenario-2f1c9a7e", info.ContainerName, "leading slash should be stripped")
	assert.Equal(t, "exited", info.Status)
	assert.Equal(t, "JULES_DR_b", info.RunLabel)
	assert.Equal(t, "scenario", info.Period)
	assert.True(t, meta.CreatedAt.Equal(info.CreatedAt))
}

func TestContainerToInfo_BrokenLabels(t *testing.T) {
	c := container.Summary{
		ID:      "x",
		Created: 1700000000,
		Labels:  map[string]string{LabelManagedBy: ManagedByValue, LabelRunLabel: "JSBACH_a"},
	}

	info := containerToInfo(c)

	assert.Equal(t, "JSBACH_a", info.RunLabel)
	assert.Empty(t, info.ContainerName)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), info.CreatedAt)
}

func TestGroupContainersByRun(t *testing.T) {
	containers := []model.ContainerInfo{
		{ContainerID: "a1", RunLabel: "JSBACH_a"},
		{ContainerID: "a2", RunLabel: "JSBACH_a"},
		{ContainerID: "b1", RunLabel: "JSBACH_b"},
		{ContainerID: "orphan"},
	}

	groups := GroupContainersByRun(containers)

	require.Len(t, groups, 2)
	assert.Len(t, groups["JSBACH_a"], 2)
	assert.Len(t, groups["JSBACH_b"], 1)
}

func TestListManagedContainers(t *testing.T) {
	// Arrange
	older := sampleMeta()
	newer := sampleMeta()
	newer.Period = model.PeriodHistorical
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	fake := &fakeAPI{containers: []container.Summary{
		managedSummary("new", "n", "running", newer),
		managedSummary("old", "o", "exited", older),
	}}
	cli := NewClientFromAPI(fake)

	// Act
	got, err := ListManagedContainers(context.Background(), cli, "JULES_DR_b")

	// Assert
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "old", got[0].ContainerID, "results are ordered by creation time")
	require.Len(t, fake.listOpts, 1)
	assert.True(t, fake.listOpts[0].All)
	assert.True(t, fake.listOpts[0].Filters.ExactMatch("label", LabelManagedBy+"="+ManagedByValue))
	assert.True(t, fake.listOpts[0].Filters.ExactMatch("label", LabelRunLabel+"=JULES_DR_b"))
}

func TestListManagedContainers_DaemonError(t *testing.T) {
	_, err := ListManagedContainers(context.Background(), NewClientFromAPI(&fakeAPI{}), "")

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitDockerNotRunning, cliErr.Code)
}

func TestRemoveContainer(t *testing.T) {
	fake := &fakeAPI{}
	require.NoError(t, RemoveContainer(context.Background(), NewClientFromAPI(fake), "abc", true))
	assert.Equal(t, []string{"abc"}, fake.removed)
}

func TestPullImage(t *testing.T) {
	fake := &fakeAPI{}
	require.NoError(t, PullImage(context.Background(), NewClientFromAPI(fake), "oscar:3", zap.NewNop()))
	assert.Equal(t, []string{"oscar:3"}, fake.pulls)
}
