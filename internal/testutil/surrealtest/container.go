// Package surrealtest starts a throwaway SurrealDB container for integration tests.
package surrealtest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/sitechat/internal/db"
)

// Image is the SurrealDB image the tests run against.
const Image = "surrealdb/surrealdb:v3.0.0-beta.1"

// Container is a running SurrealDB instance.
type Container struct {
	container testcontainers.Container
	Config    db.Config
}

// Start launches SurrealDB with root/root credentials.
func Start(ctx context.Context) (*Container, error) {
	// Ryuk cleanup containers fail in some CI environments.
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        Image,
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start surrealdb container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("container host: %w", err)
	}
	// testcontainers may report "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := c.MappedPort(ctx, "8000")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("mapped port: %w", err)
	}

	return &Container{
		container: c,
		Config: db.Config{
			URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
			Namespace: "test",
			Database:  "test",
			Username:  "root",
			Password:  "root",
			AuthLevel: "root",
		},
	}, nil
}

// Terminate stops the container.
func (c *Container) Terminate(ctx context.Context) error {
	return c.container.Terminate(ctx)
}
