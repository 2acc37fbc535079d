// Package docker reads the host's containers and networks through the Docker
// Engine API, or from saved inspect files, and maps them to domain records.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/artpar/d2c/internal/core/domain"
)

// =============================================================================
// Docker Client Implementation
// =============================================================================

// engineAPI is the subset of the Engine API the client uses.
type engineAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	Close() error
}

// Options configures a DockerClient.
type Options struct {
	// Host overrides DOCKER_HOST when set.
	Host string
	// All includes stopped containers.
	All bool
}

// DockerClient takes snapshots through the Docker Engine API.
type DockerClient struct {
	cli    engineAPI
	all    bool
	logger *slog.Logger
}

// NewDockerClient creates a new Docker client.
// If host is empty, it uses the default Docker host from environment.
// On macOS with Docker Desktop, it automatically detects the correct socket.
func NewDockerClient(opts Options, logger *slog.Logger) (*DockerClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "docker")

	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.Host))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", "failed to create client", ErrConnectionFailed)
	}

	ctx := context.Background()
	if _, pingErr := cli.Ping(ctx); pingErr != nil && opts.Host == "" {
		homeDir, _ := os.UserHomeDir()
		desktopSocket := "unix://" + homeDir + "/.docker/run/docker.sock"

		cli2, err2 := client.NewClientWithOpts(
			client.WithHost(desktopSocket),
			client.WithAPIVersionNegotiation(),
		)
		if err2 == nil {
			if _, pingErr2 := cli2.Ping(ctx); pingErr2 == nil {
				logger.Info("using Docker Desktop socket", "host", desktopSocket)
				cli.Close()
				return newWithAPI(cli2, opts.All, logger), nil
			}
			cli2.Close()
		}
	}

	return newWithAPI(cli, opts.All, logger), nil
}

func newWithAPI(api engineAPI, all bool, logger *slog.Logger) *DockerClient {
	return &DockerClient{cli: api, all: all, logger: logger}
}

// Ping checks if Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot lists and inspects every container and lists every network.
// Containers removed between listing and inspection are skipped.
func (d *DockerClient) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot

	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{All: d.all})
	if err != nil {
		return snap, NewDockerError("Snapshot", "container", "", err.Error(), err)
	}

	for _, s := range summaries {
		resp, err := d.cli.ContainerInspect(ctx, s.ID)
		if err != nil {
			if client.IsErrNotFound(err) {
				d.logger.Debug("container vanished before inspection", "container_id", s.ID)
				continue
			}
			return snap, NewDockerError("Snapshot", "container", s.ID, err.Error(), err)
		}
		rec := ContainerFromInspect(resp)
		if !rec.Running {
			d.logger.Warn("container is not running, network settings may be incomplete",
				"container", rec.CleanName())
		}
		snap.Containers = append(snap.Containers, rec)
	}

	networks, err := d.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return snap, NewDockerError("Snapshot", "network", "", err.Error(), err)
	}
	for _, n := range networks {
		snap.Networks = append(snap.Networks, NetworkFromSummary(n))
	}

	d.logger.Debug("snapshot taken", "containers", len(snap.Containers), "networks", len(snap.Networks))
	return snap, nil
}

// InspectContainer returns the record of one container.
func (d *DockerClient) InspectContainer(ctx context.Context, containerID string) (domain.ContainerRecord, error) {
	resp, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return domain.ContainerRecord{}, NewDockerError("InspectContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return domain.ContainerRecord{}, NewDockerError("InspectContainer", "container", containerID, err.Error(), err)
	}
	return ContainerFromInspect(resp), nil
}
