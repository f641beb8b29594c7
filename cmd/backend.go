package main

import (
	"context"
	"errors"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
)

var errNoBackend = errors.New("container backend unavailable")

// unavailableBackend stands in for Docker when no client could be created.
type unavailableBackend struct{}

func (unavailableBackend) ContainerList(context.Context, container.ListOptions) ([]types.Container, error) {
	return nil, errNoBackend
}

func (unavailableBackend) ContainerStart(context.Context, string, container.StartOptions) error {
	return errNoBackend
}

func (unavailableBackend) ContainerStop(context.Context, string, container.StopOptions) error {
	return errNoBackend
}

func (unavailableBackend) ContainerRestart(context.Context, string, container.StopOptions) error {
	return errNoBackend
}
