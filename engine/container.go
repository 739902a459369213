package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"voxup/runner"
)

const (
	// DefaultImage is the prebuilt inference image used when the operator
	// prefers a container over a local checkout process.
	DefaultImage         = "ghcr.io/index-tts/index-tts:latest"
	DefaultContainerName = "voxup-indextts"

	workerContainerPort = "7860/tcp"
)

// ContainerRuntime runs the worker as a Docker container.
// Implements WorkerRuntime.
type ContainerRuntime struct {
	docker client.APIClient
	image  string
	name   string
}

// ContainerOption configures a ContainerRuntime.
type ContainerOption func(*ContainerRuntime)

func WithImage(img string) ContainerOption {
	return func(c *ContainerRuntime) { c.image = img }
}

func WithContainerName(name string) ContainerOption {
	return func(c *ContainerRuntime) { c.name = name }
}

// NewContainerRuntime creates a Docker-based worker runtime.
func NewContainerRuntime(docker client.APIClient, opts ...ContainerOption) *ContainerRuntime {
	c := &ContainerRuntime{
		docker: docker,
		image:  DefaultImage,
		name:   DefaultContainerName,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Launch pulls the image if needed, then creates and starts the
// container with the worker port published on the configured host port.
func (c *ContainerRuntime) Launch(ctx context.Context, cfg Config) (runner.Handle, error) {
	// Remove any leftover container from a previous run.
	_ = c.removeContainer(ctx) // best-effort; may not exist

	if err := c.startContainer(ctx, cfg); err != nil {
		return nil, fmt.Errorf("start worker container: %w", err)
	}
	slog.Info("Worker container started.", "name", c.name)

	h := &containerHandle{docker: c.docker, name: c.name, done: make(chan struct{})}
	go h.wait(context.Background())
	return h, nil
}

func (c *ContainerRuntime) startContainer(ctx context.Context, cfg Config) error {
	env := []string{}
	if cfg.HFEndpoint != "" {
		env = append(env, "HF_ENDPOINT="+cfg.HFEndpoint)
	}
	if cfg.Device == DeviceCPU {
		env = append(env, "CUDA_VISIBLE_DEVICES=")
	}

	containerCfg := &container.Config{
		Image: c.image,
		Env:   env,
		ExposedPorts: nat.PortSet{
			workerContainerPort: struct{}{},
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			workerContainerPort: []nat.PortBinding{{
				HostIP:   cfg.Host,
				HostPort: strconv.Itoa(cfg.Port),
			}},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: cfg.Dir,
				Target: "/workspace/index-tts",
			},
		},
	}

	_, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, c.name)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("create container: %w", err)
		}
		if err := c.pullImage(ctx); err != nil {
			return err
		}
		if _, err = c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, c.name); err != nil {
			return fmt.Errorf("create container after pull: %w", err)
		}
	}

	if err := c.docker.ContainerStart(ctx, c.name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	return nil
}

func (c *ContainerRuntime) pullImage(ctx context.Context) error {
	slog.Info("Pulling worker image.", "image", c.image)
	resp, err := c.docker.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull worker image: %w", err)
	}
	defer resp.Close()
	// Drain the pull output to completion.
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return fmt.Errorf("pull worker image: read response: %w", err)
	}
	return nil
}

func (c *ContainerRuntime) removeContainer(ctx context.Context) error {
	return c.docker.ContainerRemove(ctx, c.name, container.RemoveOptions{Force: true})
}

// containerHandle adapts a running container to runner.Handle.
type containerHandle struct {
	docker client.APIClient
	name   string

	done chan struct{}
	exit runner.Exit
}

func (h *containerHandle) wait(ctx context.Context) {
	waitCh, errCh := h.docker.ContainerWait(ctx, h.name, container.WaitConditionNotRunning)
	select {
	case res := <-waitCh:
		h.exit = runner.Exit{Code: int(res.StatusCode)}
	case err := <-errCh:
		h.exit = runner.Exit{Code: -1, Err: err}
	}
	close(h.done)
}

func (h *containerHandle) Done() <-chan struct{} { return h.done }

func (h *containerHandle) Exit() runner.Exit { return h.exit }

// Terminate stops and removes the container. Docker escalates to SIGKILL
// on its own once the stop timeout passes.
func (h *containerHandle) Terminate(ctx context.Context) error {
	if err := h.docker.ContainerStop(ctx, h.name, container.StopOptions{}); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("stop worker container: %w", err)
		}
	}
	if err := h.docker.ContainerRemove(ctx, h.name, container.RemoveOptions{Force: true}); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove worker container: %w", err)
		}
	}
	return nil
}
