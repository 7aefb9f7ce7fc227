package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/uno/internal/storage/storagetest"
)

func setUpRepository(t *testing.T) *UserRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("error initializing test database: %s", err)
	}
	repo := NewUserRepository(db)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUserRepository(t *testing.T) {
	storagetest.Run(t, setUpRepository(t))
}

func TestHealth(t *testing.T) {
	repo := setUpRepository(t)
	require.NoError(t, repo.Health(context.Background()))
	require.NoError(t, repo.Close())
	assert.Error(t, repo.Health(context.Background()))
}
