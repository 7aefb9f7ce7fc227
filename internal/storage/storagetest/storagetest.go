// Package storagetest runs one behavioural suite against every credential
// store backend.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/uno/internal/storage"
)

// UserStore is the full backend surface under test.
type UserStore interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CheckPassword(ctx context.Context, username, password string) (bool, error)
	Email(ctx context.Context, username string) (string, error)
	EmailConfirmed(ctx context.Context, username string) (bool, error)
	InsertUser(ctx context.Context, u storage.NewUser) error
	ValidateEmail(ctx context.Context, username string) error
	IncrementWonTimes(ctx context.Context, username string) error
	IncrementLostTimes(ctx context.Context, username string) error
	Stats(ctx context.Context, username string) (storage.Stats, error)
	TwoFAHash(ctx context.Context, username string) (string, error)
	SetTwoFAHash(ctx context.Context, username, hash string) error
	TwoFATime(ctx context.Context, username string) (time.Time, error)
	SetTwoFATime(ctx context.Context, username string, at time.Time) error
}

var seq int

func uniqueUser(t *testing.T, prefix string) (storage.NewUser, string) {
	t.Helper()
	seq++
	name := fmt.Sprintf("%s%d_%d", prefix, seq, time.Now().UnixNano()%1_000_000)
	password := "Passw0rd" + name
	hash, err := storage.HashSecret(password)
	require.NoError(t, err)
	code, err := storage.HashSecret("ab1C2")
	require.NoError(t, err)
	return storage.NewUser{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: hash,
		TwoFAHash:    code,
		TwoFATime:    time.Now().UTC().Truncate(time.Millisecond),
	}, password
}

// Run exercises s against the contract every backend must honour.
func Run(t *testing.T, s UserStore) {
	ctx := context.Background()

	t.Run("insert and lookup", func(t *testing.T) {
		u, password := uniqueUser(t, "ins")
		require.NoError(t, s.InsertUser(ctx, u))

		exists, err := s.UsernameExists(ctx, u.Username)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = s.EmailExists(ctx, u.Email)
		require.NoError(t, err)
		assert.True(t, exists)

		email, err := s.Email(ctx, u.Username)
		require.NoError(t, err)
		assert.Equal(t, u.Email, email)

		ok, err := s.CheckPassword(ctx, u.Username, password)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.CheckPassword(ctx, u.Username, "wrong")
		require.NoError(t, err)
		assert.False(t, ok)

		confirmed, err := s.EmailConfirmed(ctx, u.Username)
		require.NoError(t, err)
		assert.False(t, confirmed)

		stats, err := s.Stats(ctx, u.Username)
		require.NoError(t, err)
		assert.Equal(t, storage.Stats{}, stats)
	})

	t.Run("duplicate username", func(t *testing.T) {
		u, _ := uniqueUser(t, "dup")
		require.NoError(t, s.InsertUser(ctx, u))
		u.Email = "other-" + u.Email
		assert.ErrorIs(t, s.InsertUser(ctx, u), storage.ErrUserExists)
	})

	t.Run("unknown user", func(t *testing.T) {
		exists, err := s.UsernameExists(ctx, "nobody-here")
		require.NoError(t, err)
		assert.False(t, exists)

		ok, err := s.CheckPassword(ctx, "nobody-here", "x")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Email(ctx, "nobody-here")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
		assert.ErrorIs(t, s.ValidateEmail(ctx, "nobody-here"), storage.ErrUserNotFound)
		assert.ErrorIs(t, s.IncrementWonTimes(ctx, "nobody-here"), storage.ErrUserNotFound)
	})

	t.Run("validate email", func(t *testing.T) {
		u, _ := uniqueUser(t, "val")
		require.NoError(t, s.InsertUser(ctx, u))
		require.NoError(t, s.ValidateEmail(ctx, u.Username))
		confirmed, err := s.EmailConfirmed(ctx, u.Username)
		require.NoError(t, err)
		assert.True(t, confirmed)
	})

	t.Run("stats", func(t *testing.T) {
		u, _ := uniqueUser(t, "st")
		require.NoError(t, s.InsertUser(ctx, u))
		require.NoError(t, s.IncrementWonTimes(ctx, u.Username))
		require.NoError(t, s.IncrementWonTimes(ctx, u.Username))
		require.NoError(t, s.IncrementLostTimes(ctx, u.Username))
		stats, err := s.Stats(ctx, u.Username)
		require.NoError(t, err)
		assert.Equal(t, storage.Stats{Won: 2, Lost: 1}, stats)
	})

	t.Run("two factor", func(t *testing.T) {
		u, _ := uniqueUser(t, "tfa")
		require.NoError(t, s.InsertUser(ctx, u))

		hash, err := s.TwoFAHash(ctx, u.Username)
		require.NoError(t, err)
		assert.True(t, storage.CheckSecret("ab1C2", hash))

		at, err := s.TwoFATime(ctx, u.Username)
		require.NoError(t, err)
		assert.WithinDuration(t, u.TwoFATime, at, time.Second)

		newHash, err := storage.HashSecret("zz9Y8")
		require.NoError(t, err)
		require.NoError(t, s.SetTwoFAHash(ctx, u.Username, newHash))
		later := u.TwoFATime.Add(time.Hour)
		require.NoError(t, s.SetTwoFATime(ctx, u.Username, later))

		hash, err = s.TwoFAHash(ctx, u.Username)
		require.NoError(t, err)
		assert.True(t, storage.CheckSecret("zz9Y8", hash))
		at, err = s.TwoFATime(ctx, u.Username)
		require.NoError(t, err)
		assert.WithinDuration(t, later, at, time.Second)
	})
}
