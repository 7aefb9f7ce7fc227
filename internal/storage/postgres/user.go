package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/uno/internal/storage"
)

// UserRepository provides user account persistence operations.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a UserRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// UsernameExists reports whether a user row exists for username.
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying username: %w", err)
	}
	return exists, nil
}

// EmailExists reports whether any user registered email.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying email: %w", err)
	}
	return exists, nil
}

// CheckPassword verifies password against the stored hash.
//
// Postcondition: Returns false with a nil error when the user does not exist.
func (r *UserRepository) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := r.db.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE username = $1`, username,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("querying password: %w", err)
	}
	return storage.CheckSecret(password, hash), nil
}

// Email returns the user's registered address.
func (r *UserRepository) Email(ctx context.Context, username string) (string, error) {
	var email string
	if err := r.queryUser(ctx, `SELECT email FROM users WHERE username = $1`, username, &email); err != nil {
		return "", err
	}
	return email, nil
}

// EmailConfirmed reports whether the user completed email verification.
func (r *UserRepository) EmailConfirmed(ctx context.Context, username string) (bool, error) {
	var confirmed bool
	if err := r.queryUser(ctx, `SELECT email_confirmed FROM users WHERE username = $1`, username, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}

// InsertUser creates an unconfirmed account.
//
// Postcondition: Returns storage.ErrUserExists if the username or email is taken.
func (r *UserRepository) InsertUser(ctx context.Context, u storage.NewUser) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (username, email, password_hash, two_fa_hash, two_fa_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.Username, u.Email, u.PasswordHash, u.TwoFAHash, u.TwoFATime,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrUserExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// ValidateEmail marks the user's email as confirmed.
func (r *UserRepository) ValidateEmail(ctx context.Context, username string) error {
	return r.execUser(ctx, `UPDATE users SET email_confirmed = TRUE WHERE username = $1`, username)
}

// IncrementWonTimes adds one win to the user's record.
func (r *UserRepository) IncrementWonTimes(ctx context.Context, username string) error {
	return r.execUser(ctx, `UPDATE users SET won_times = won_times + 1 WHERE username = $1`, username)
}

// IncrementLostTimes adds one loss to the user's record.
func (r *UserRepository) IncrementLostTimes(ctx context.Context, username string) error {
	return r.execUser(ctx, `UPDATE users SET lost_times = lost_times + 1 WHERE username = $1`, username)
}

// Stats returns the user's win and loss counts.
func (r *UserRepository) Stats(ctx context.Context, username string) (storage.Stats, error) {
	var s storage.Stats
	err := r.db.QueryRow(ctx,
		`SELECT won_times, lost_times FROM users WHERE username = $1`, username,
	).Scan(&s.Won, &s.Lost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Stats{}, storage.ErrUserNotFound
		}
		return storage.Stats{}, fmt.Errorf("querying stats: %w", err)
	}
	return s, nil
}

// TwoFAHash returns the hash of the user's pending verification code.
func (r *UserRepository) TwoFAHash(ctx context.Context, username string) (string, error) {
	var hash string
	if err := r.queryUser(ctx, `SELECT two_fa_hash FROM users WHERE username = $1`, username, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// SetTwoFAHash replaces the user's pending verification code hash.
func (r *UserRepository) SetTwoFAHash(ctx context.Context, username, hash string) error {
	return r.execUser(ctx, `UPDATE users SET two_fa_hash = $2 WHERE username = $1`, username, hash)
}

// TwoFATime returns when the pending verification code was issued.
//
// Postcondition: Returns the zero time with a nil error if none was recorded.
func (r *UserRepository) TwoFATime(ctx context.Context, username string) (time.Time, error) {
	var ts *time.Time
	if err := r.queryUser(ctx, `SELECT two_fa_time FROM users WHERE username = $1`, username, &ts); err != nil {
		return time.Time{}, err
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// SetTwoFATime records when the pending verification code was issued.
func (r *UserRepository) SetTwoFATime(ctx context.Context, username string, at time.Time) error {
	return r.execUser(ctx, `UPDATE users SET two_fa_time = $2 WHERE username = $1`, username, at)
}

func (r *UserRepository) queryUser(ctx context.Context, sql, username string, dest any) error {
	err := r.db.QueryRow(ctx, sql, username).Scan(dest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrUserNotFound
		}
		return fmt.Errorf("querying user: %w", err)
	}
	return nil
}

func (r *UserRepository) execUser(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// SQLSTATE 23505 is unique_violation
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
