//go:build integration

package db_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sitechat/internal/db"
	"github.com/raphaelgruber/sitechat/internal/testutil/surrealtest"
)

var testCfg db.Config

func TestMain(m *testing.M) {
	ctx := context.Background()
	c, err := surrealtest.Start(ctx)
	if err != nil {
		log.Fatalf("Failed to start SurrealDB: %v", err)
	}
	testCfg = c.Config

	code := m.Run()
	_ = c.Terminate(ctx)
	os.Exit(code)
}

func connect(t *testing.T) *db.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := db.NewClient(ctx, testCfg, nil)
	require.NoError(t, err, "should connect to SurrealDB")
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

func TestClientInitSchemaIsIdempotent(t *testing.T) {
	client := connect(t)
	ctx := context.Background()

	require.NoError(t, client.InitSchema(ctx, "chunk", 4))
	require.NoError(t, client.InitSchema(ctx, "chunk", 4))

	rows, err := db.Select[map[string]any](ctx, client, "INFO FOR TABLE chunk", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestClientInitSchemaRejectsBadTable(t *testing.T) {
	client := connect(t)
	err := client.InitSchema(context.Background(), "chunk; REMOVE DATABASE test", 4)
	assert.ErrorIs(t, err, db.ErrInvalidTable)
}

func TestClientExecAndSelect(t *testing.T) {
	client := connect(t)
	ctx := context.Background()
	require.NoError(t, client.InitSchema(ctx, "chunk", 2))

	err := client.Exec(ctx, `CREATE chunk:one CONTENT {content: "hello", embedding: [1.0, 0.0], metadata: {client_id: "acme"}}`, nil)
	require.NoError(t, err)

	rows, err := db.Select[struct {
		Content string `json:"content"`
	}](ctx, client, "SELECT content FROM chunk WHERE metadata.client_id = $c", map[string]any{"c": "acme"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0].Content)

	require.NoError(t, client.Exec(ctx, "DELETE chunk", nil))
}

func TestClientReconnection(t *testing.T) {
	client := connect(t)
	ctx := context.Background()

	require.NoError(t, client.Exec(ctx, "RETURN 1", nil))
	time.Sleep(2 * time.Second)
	require.NoError(t, client.Exec(ctx, "RETURN 2", nil), "connection should stay alive")
}
