package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"

	"github.com/artpar/d2c/internal/core/domain"
)

// =============================================================================
// Snapshot File
// =============================================================================

// SnapshotFile reads a snapshot from saved `docker inspect` and
// `docker network inspect` output. A missing containers file is an empty
// snapshot; a missing networks file leaves drivers unknown.
type SnapshotFile struct {
	ContainersPath string
	NetworksPath   string
}

// Snapshot decodes both files.
func (f SnapshotFile) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}

	var containers []container.InspectResponse
	if err := readJSONArray(f.ContainersPath, &containers); err != nil {
		return snap, NewDockerError("Snapshot", "container", f.ContainersPath, err.Error(), err)
	}
	for _, c := range containers {
		snap.Containers = append(snap.Containers, ContainerFromInspect(c))
	}

	var networks []network.Summary
	if err := readJSONArray(f.NetworksPath, &networks); err != nil {
		return snap, NewDockerError("Snapshot", "network", f.NetworksPath, err.Error(), err)
	}
	for _, n := range networks {
		snap.Networks = append(snap.Networks, NetworkFromSummary(n))
	}
	return snap, nil
}

func readJSONArray(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotFileInvalid, err)
	}
	return nil
}
