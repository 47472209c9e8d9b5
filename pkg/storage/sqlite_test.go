package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/version"
)

func TestOpenCreatesDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "app.db")

	db, err := Open(ctx, config.Database{Path: path, SharedCache: true}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, db.Ping(ctx))

	createdBy, err := db.CreatedBy(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.Version, createdBy)
}

func TestEnsureCreatedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := Open(ctx, config.Database{Path: path}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, db.EnsureCreated(ctx))
	require.NoError(t, db.Close())

	originalVersion := version.Version
	version.Version = "9.9.9"
	defer func() { version.Version = originalVersion }()

	db, err = Open(ctx, config.Database{Path: path}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	createdBy, err := db.CreatedBy(ctx)
	require.NoError(t, err)
	assert.Equal(t, originalVersion, createdBy, "first creator is kept")
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), config.Database{Path: "  "}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:app.db?_pragma=busy_timeout%285000%29&_pragma=foreign_keys%281%29&cache=shared", DSN("app.db", true))
	assert.NotContains(t, DSN("app.db", false), "cache=shared")
}

func TestNilDB(t *testing.T) {
	var db *DB
	assert.Error(t, db.Ping(context.Background()))
	assert.NoError(t, db.Close())
}
