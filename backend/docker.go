package backend

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// dockerEngine implements Engine against the Docker Engine SDK.
type dockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects to the local Docker daemon using the standard
// environment configuration (DOCKER_HOST etc.).
func NewDockerEngine() (Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &dockerEngine{cli: cli}, nil
}

func (e *dockerEngine) Ping(ctx context.Context) error {
	_, err := e.cli.Ping(ctx)
	return err
}

func (e *dockerEngine) Inspect(ctx context.Context, name string) (*ContainerInfo, error) {
	info, err := e.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	ci := &ContainerInfo{ID: info.ID}
	if info.State != nil {
		ci.Running = info.State.Running
	}
	if info.Config != nil {
		ci.Env = info.Config.Env
	}
	if info.NetworkSettings != nil {
		ci.Ports = info.NetworkSettings.Ports
	}
	return ci, nil
}

func (e *dockerEngine) Create(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (e *dockerEngine) Start(ctx context.Context, id string) error {
	return e.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (e *dockerEngine) Stop(ctx context.Context, id string, grace time.Duration) error {
	secs := int(grace.Seconds())
	return e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs})
}

func (e *dockerEngine) Remove(ctx context.Context, id string, force bool) error {
	return e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
}

func (e *dockerEngine) Pull(ctx context.Context, ref string) error {
	reader, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	// Drain the progress stream; the pull completes when it ends.
	_, err = io.Copy(io.Discard, reader)
	return err
}
