// Package valkeytest runs a throwaway ValKey container for store tests.
package valkeytest

import (
	"context"
	"fmt"
	"net"

	"github.com/docker/go-connections/nat"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	valkeycontainer "github.com/testcontainers/testcontainers-go/modules/valkey"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/internal/config"
)

const (
	image    = "valkey/valkey:8-alpine"
	portSpec = nat.Port("6379/tcp")
)

// Instance is a running container and a client connected to it.
type Instance struct {
	Client valkey.Client
	Addr   string

	container *valkeycontainer.ValkeyContainer
}

// Start runs the container and connects a client.
func Start(ctx context.Context) (*Instance, error) {
	container, err := valkeycontainer.Run(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("starting valkey container: %w", err)
	}

	inst := &Instance{container: container}

	port, err := container.MappedPort(ctx, portSpec)
	if err != nil {
		inst.Terminate(ctx)
		return nil, fmt.Errorf("mapping valkey port: %w", err)
	}
	inst.Addr = net.JoinHostPort("localhost", port.Port())

	inst.Client, err = valkey.NewClient(valkey.ClientOption{InitAddress: []string{inst.Addr}})
	if err != nil {
		inst.Terminate(ctx)
		return nil, fmt.Errorf("connecting to valkey: %w", err)
	}

	slogctx.Debug(ctx, "Started valkey container", "address", inst.Addr)

	return inst, nil
}

// Config describes the instance the way config.yaml would.
func (i *Instance) Config(prefix string) config.ValKey {
	return config.ValKey{
		Host:     commoncfg.SourceRef{Source: "embedded", Value: i.Addr},
		User:     commoncfg.SourceRef{Source: "embedded", Value: ""},
		Password: commoncfg.SourceRef{Source: "embedded", Value: ""},
		Prefix:   prefix,
	}
}

// Terminate closes the client and removes the container.
func (i *Instance) Terminate(ctx context.Context) {
	if i.Client != nil {
		i.Client.Close()
	}

	if err := i.container.Terminate(ctx); err != nil {
		slogctx.Error(ctx, "Failed to terminate ValKey container", "error", err)
	}
}
