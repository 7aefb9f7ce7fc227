// Package sqlite implements the credential store on an embedded SQLite file
// through gorm, for single-host deployments without PostgreSQL.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cory-johannsen/uno/internal/storage"
)

// User is the persisted account row.
type User struct {
	ID             uint64     `gorm:"primaryKey"`
	Username       string     `gorm:"unique;not null"`
	Email          string     `gorm:"unique;not null"`
	PasswordHash   string     `gorm:"not null"`
	EmailConfirmed bool       `gorm:"default:false"`
	TwoFAHash      string     `gorm:"column:two_fa_hash"`
	TwoFATime      *time.Time `gorm:"column:two_fa_time"`
	WonTimes       int        `gorm:"default:0"`
	LostTimes      int        `gorm:"default:0"`
	CreatedAt      time.Time
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("migrating sqlite database: %w", err)
	}
	return db, nil
}

// UserRepository provides user account persistence operations.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a UserRepository backed by db.
//
// Precondition: db has been migrated by Open.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Health checks that the database file is still usable.
func (r *UserRepository) Health(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection.
func (r *UserRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *UserRepository) find(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) exists(ctx context.Context, column, value string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&User{}).Where(column+" = ?", value).Count(&n).Error; err != nil {
		return false, fmt.Errorf("counting users by %s: %w", column, err)
	}
	return n > 0, nil
}

func (r *UserRepository) update(ctx context.Context, username string, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("updating user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// UsernameExists reports whether a user row exists for username.
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username", username)
}

// EmailExists reports whether any user registered email.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", email)
}

// CheckPassword verifies password against the stored hash.
func (r *UserRepository) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	u, err := r.find(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return storage.CheckSecret(password, u.PasswordHash), nil
}

// Email returns the user's registered address.
func (r *UserRepository) Email(ctx context.Context, username string) (string, error) {
	u, err := r.find(ctx, username)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// EmailConfirmed reports whether the user completed email verification.
func (r *UserRepository) EmailConfirmed(ctx context.Context, username string) (bool, error) {
	u, err := r.find(ctx, username)
	if err != nil {
		return false, err
	}
	return u.EmailConfirmed, nil
}

// InsertUser creates an unconfirmed account.
func (r *UserRepository) InsertUser(ctx context.Context, nu storage.NewUser) error {
	at := nu.TwoFATime
	u := User{
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		TwoFAHash:    nu.TwoFAHash,
		TwoFATime:    &at,
	}
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrUserExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// ValidateEmail marks the user's email as confirmed.
func (r *UserRepository) ValidateEmail(ctx context.Context, username string) error {
	return r.update(ctx, username, "email_confirmed", true)
}

// IncrementWonTimes adds one win to the user's record.
func (r *UserRepository) IncrementWonTimes(ctx context.Context, username string) error {
	return r.update(ctx, username, "won_times", gorm.Expr("won_times + 1"))
}

// IncrementLostTimes adds one loss to the user's record.
func (r *UserRepository) IncrementLostTimes(ctx context.Context, username string) error {
	return r.update(ctx, username, "lost_times", gorm.Expr("lost_times + 1"))
}

// Stats returns the user's win and loss counts.
func (r *UserRepository) Stats(ctx context.Context, username string) (storage.Stats, error) {
	u, err := r.find(ctx, username)
	if err != nil {
		return storage.Stats{}, err
	}
	return storage.Stats{Won: u.WonTimes, Lost: u.LostTimes}, nil
}

// TwoFAHash returns the hash of the user's pending verification code.
func (r *UserRepository) TwoFAHash(ctx context.Context, username string) (string, error) {
	u, err := r.find(ctx, username)
	if err != nil {
		return "", err
	}
	return u.TwoFAHash, nil
}

// SetTwoFAHash replaces the user's pending verification code hash.
func (r *UserRepository) SetTwoFAHash(ctx context.Context, username, hash string) error {
	return r.update(ctx, username, "two_fa_hash", hash)
}

// TwoFATime returns when the pending verification code was issued, or the
// zero time if none was recorded.
func (r *UserRepository) TwoFATime(ctx context.Context, username string) (time.Time, error) {
	u, err := r.find(ctx, username)
	if err != nil {
		return time.Time{}, err
	}
	if u.TwoFATime == nil {
		return time.Time{}, nil
	}
	return *u.TwoFATime, nil
}

// SetTwoFATime records when the pending verification code was issued.
func (r *UserRepository) SetTwoFATime(ctx context.Context, username string, at time.Time) error {
	return r.update(ctx, username, "two_fa_time", at)
}
