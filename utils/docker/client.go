// Package docker provides a wrapper around the Docker SDK client.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"
)

// Client wraps the Docker SDK client. It satisfies the workload, stats, log
// and version backends used by the services.
type Client struct {
	*client.Client
}

// NewClient creates a Docker client for host. An empty host falls back to
// DOCKER_HOST or unix:///var/run/docker.sock.
func NewClient(host string) (*Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	log.Info().Str("host", cli.DaemonHost()).Msg("Docker client created")
	return &Client{Client: cli}, nil
}

// Ping verifies connection to the Docker daemon.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.Client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon ping failed: %w", err)
	}
	return nil
}
