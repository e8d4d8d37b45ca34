package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmr-tortoise/oscar-runner/internal/model"
)

// Label keys recorded on every run container. Labels are the only record
// of which run a container belongs to; there is no state file.
const (
	// LabelPrefix namespaces all oscar-runner labels.
	LabelPrefix = "oscar-runner."

	// LabelManagedBy marks containers created by this tool and is the
	// label used for discovery.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRunLabel stores the run label, e.g. "JSBACH_a".
	LabelRunLabel = LabelPrefix + "run-label"

	// LabelPeriod stores "historical" or "scenario".
	LabelPeriod = LabelPrefix + "period"

	// LabelRunID stores the work directory ID of the invocation.
	LabelRunID = LabelPrefix + "run-id"

	// LabelCreatedAt stores the creation time in RFC3339, UTC.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "oscar-runner"

// RunMeta is what the labels of a run container record.
type RunMeta struct {
	Label     model.RunLabel
	Period    model.Period
	RunID     string
	CreatedAt time.Time
}

// BuildLabels constructs the label map for a run container.
func BuildLabels(meta RunMeta) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRunLabel:  meta.Label.String(),
		LabelPeriod:    meta.Period.String(),
		LabelRunID:     meta.RunID,
		LabelCreatedAt: meta.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs RunMeta from container labels. All missing
// labels are reported at once.
func ParseLabels(labels map[string]string) (*RunMeta, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelRunLabel,
		LabelPeriod,
		LabelRunID,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	label, err := model.ParseRunLabel(labels[LabelRunLabel])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelRunLabel, err)
	}

	period, err := model.ParsePeriod(labels[LabelPeriod])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelPeriod, err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &RunMeta{
		Label:     label,
		Period:    period,
		RunID:     labels[LabelRunID],
		CreatedAt: createdAt,
	}, nil
}

// FilterLabels returns the label filter selecting containers of this
// tool, optionally narrowed to one run label.
func FilterLabels(runLabel string) map[string]string {
	f := map[string]string{
		LabelManagedBy: ManagedByValue,
	}
	if runLabel != "" {
		f[LabelRunLabel] = runLabel
	}
	return f
}

// ContainerName derives a Docker container name for an invocation. Docker
// names allow [a-zA-Z0-9_.-]; anything else in the run label becomes "-".
func ContainerName(meta RunMeta) string {
	id := meta.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("oscar-%s-%s-%s", meta.Label, meta.Period, id)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}
