package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/opsdash/internal/auth"
	"github.com/h0rv/opsdash/internal/config"
	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
)

func open(t *testing.T, cfg *config.Config) *Backend {
	t.Helper()
	require.NoError(t, cfg.Validate())
	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, b.Close()) })
	return b
}

// insertAndWait writes a task and waits for the change signal the write produces.
func insertAndWait(t *testing.T, gw gateway.Gateway) {
	t.Helper()
	tasks := domain.TasksBoard().Table
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := gw.Subscribe(ctx, tasks)
	require.NoError(t, err)
	defer sub.Close()

	_, err = gw.Insert(ctx, tasks, gateway.Row{"title": "Ship it", "status": domain.TaskTodo})
	require.NoError(t, err)

	select {
	case <-sub.C:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after insert")
	}

	rows, err := gw.FetchAll(ctx, tasks, domain.Order{Column: "created_at"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ship it", rows[0]["title"])
}

func TestOpen_Memory(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Backend = config.BackendMemory
	insertAndWait(t, open(t, cfg))
}

func TestOpen_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.SQLite.Path = filepath.Join(dir, "test.db")
	insertAndWait(t, open(t, cfg))
}

func TestOpen_RedisFeed(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	cfg := config.Default(t.TempDir())
	cfg.Backend = config.BackendMemory
	cfg.Feed = config.FeedConfig{Kind: config.FeedRedis, RedisAddr: m.Addr()}
	insertAndWait(t, open(t, cfg))
}

func TestOpen_RedisUnreachable(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	addr := m.Addr()
	m.Close()

	cfg := config.Default(t.TempDir())
	cfg.Backend = config.BackendMemory
	cfg.Feed = config.FeedConfig{Kind: config.FeedRedis, RedisAddr: addr}

	_, err = Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestOpen_GraphQL(t *testing.T) {
	t.Run("key from environment", func(t *testing.T) {
		t.Setenv(auth.EnvVar, "anon-key")
		cfg := config.Default(t.TempDir())
		cfg.Backend = config.BackendGraphQL
		cfg.GraphQL.Endpoint = "http://127.0.0.1:1/graphql/v1"

		b := open(t, cfg)
		assert.NotNil(t, b.Gateway)
	})

	t.Run("local feed warns", func(t *testing.T) {
		t.Setenv(auth.EnvVar, "anon-key")
		cfg := config.Default(t.TempDir())
		cfg.Backend = config.BackendGraphQL
		cfg.GraphQL.Endpoint = "http://127.0.0.1:1/graphql/v1"

		logger, hook := test.NewNullLogger()
		b, err := Open(context.Background(), cfg, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })

		var warned bool
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "feed.kind") {
				warned = true
			}
		}
		assert.True(t, warned, "remote changes need a shared feed")
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv(auth.EnvVar, "")
		cfg := config.Default(t.TempDir())
		cfg.Backend = config.BackendGraphQL
		cfg.GraphQL.Endpoint = "http://127.0.0.1:1/graphql/v1"

		_, err := Open(context.Background(), cfg, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNoKey)
	})
}

func TestKeyProviders_Order(t *testing.T) {
	cfg := config.Default("/tmp/opsdash")
	assert.Len(t, keyProviders(cfg), 2)

	cfg.Auth.KeyCommand = "pass show opsdash"
	providers := keyProviders(cfg)
	require.Len(t, providers, 3)
	assert.IsType(t, auth.EnvProvider{}, providers[0])
	assert.Equal(t, auth.CommandProvider{Command: "pass show opsdash"}, providers[1])
	assert.Equal(t, auth.FileProvider{Path: cfg.APIKeyPath()}, providers[2])
}
