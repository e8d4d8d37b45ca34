package oscar

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/ncio"
)

// File names inside a work directory.
const (
	IniFile     = "ini.nc"
	ParFile     = "par.nc"
	ForcingFile = "for.nc"
	OutFile     = "out.nc"
)

// Workspace is the per-invocation directory shared with the bridge.
type Workspace struct {
	// ID is unique per invocation and also names docker containers.
	ID string

	// Dir is the absolute host path of the directory.
	Dir string
}

// NewWorkspace creates an empty work directory under root (the system temp
// directory when root is empty).
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work root %s: %w", root, err)
	}
	id := uuid.NewString()
	dir := filepath.Join(abs, "oscar-run-"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory %s: %w", dir, err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// Path returns the host path of a file in the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Stage writes the three model inputs.
func (w *Workspace) Stage(ini, par, forcing *dataset.Dataset) error {
	for _, in := range []struct {
		name string
		ds   *dataset.Dataset
	}{
		{IniFile, ini},
		{ParFile, par},
		{ForcingFile, forcing},
	} {
		if err := ncio.Write(w.Path(in.name), in.ds, ncio.StagingEncoding()); err != nil {
			return fmt.Errorf("failed to stage %s: %w", in.name, err)
		}
	}
	return nil
}

// Collect reads the bridge output and restricts it to varKeep.
func (w *Workspace) Collect(varKeep []string) (*dataset.Dataset, error) {
	out, err := ncio.Read(w.Path(OutFile))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitModelError, "model output is unreadable", err)
	}
	return RestrictOutput(out, varKeep)
}

// Remove deletes the workspace.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Dir)
}

// BridgeArgs builds the arguments appended to the bridge command. dir is
// the work directory as the bridge sees it.
func BridgeArgs(dir string, nt int, varKeep []string) []string {
	join := func(name string) string {
		// The bridge may run in a Linux container while the host is not,
		// so paths are joined with forward slashes.
		return strings.TrimRight(filepath.ToSlash(dir), "/") + "/" + name
	}
	return []string{
		"--ini", join(IniFile),
		"--par", join(ParFile),
		"--for", join(ForcingFile),
		"--out", join(OutFile),
		"--nt", strconv.Itoa(nt),
		"--var-keep", strings.Join(varKeep, ","),
	}
}

// RestrictOutput keeps only the varKeep variables of a model output. A
// requested variable the model did not produce is a model error.
func RestrictOutput(out *dataset.Dataset, varKeep []string) (*dataset.Dataset, error) {
	var missing []string
	for _, name := range varKeep {
		if !out.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, model.NewCLIError(model.ExitModelError,
			fmt.Sprintf("model output lacks requested variables: %s", strings.Join(missing, ", ")))
	}
	return out.Subset(varKeep)
}
