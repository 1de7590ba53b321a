package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/enginetest"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(enginetest.Dataset("org-1"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestBuild_MemoryBackends(t *testing.T) {
	cfg := config.Default()
	cfg.DataSource.Type = "memory"
	cfg.DataSource.FixturePath = writeFixture(t)
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = t.TempDir()

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	ids, err := a.Orgs.OrganizationIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1"}, ids)

	st, err := a.Engine.RunCycle(context.Background(), engine.CycleRequest{
		OrganizationID: "org-1",
		AsOf:           enginetest.AsOf,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Version)

	latest, err := a.Store.Latest(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, st.ID, latest.ID)
}

func TestBuild_RedisDispatch(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.DataSource.Type = "memory"
	cfg.DataSource.FixturePath = writeFixture(t)
	cfg.Storage.Type = "memory"
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Dispatch.Type = "redis"

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Engine.RunCycle(context.Background(), engine.CycleRequest{OrganizationID: "org-1", AsOf: enginetest.AsOf})
	require.NoError(t, err)

	items, err := mr.List("brain:actions")
	require.NoError(t, err)
	assert.NotEmpty(t, items)
}

func TestBuild_PostgresNeedsURL(t *testing.T) {
	_, err := Build(context.Background(), config.Default())
	assert.ErrorContains(t, err, "database.url")
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Brain.Curiosity.Weights.Impact = 0.9
	_, err := Build(context.Background(), cfg)
	assert.ErrorContains(t, err, "weights")
}
