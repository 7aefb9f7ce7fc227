package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/mail"
	"github.com/cory-johannsen/uno/internal/protocol"
	"github.com/cory-johannsen/uno/internal/storage"
)

// TwoFASubject is the subject line of verification mails.
const TwoFASubject = "2FA Token"

// Store is the credential store surface used by the login flows.
type Store interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CheckPassword(ctx context.Context, username, password string) (bool, error)
	Email(ctx context.Context, username string) (string, error)
	EmailConfirmed(ctx context.Context, username string) (bool, error)
	InsertUser(ctx context.Context, u storage.NewUser) error
	ValidateEmail(ctx context.Context, username string) error
	TwoFAHash(ctx context.Context, username string) (string, error)
	SetTwoFAHash(ctx context.Context, username, hash string) error
	TwoFATime(ctx context.Context, username string) (time.Time, error)
	SetTwoFATime(ctx context.Context, username string, at time.Time) error
}

// Service runs the pre-authentication flows against a Store.
type Service struct {
	store    Store
	mailer   mail.Sender
	tokens   *Authenticator
	twoFATTL time.Duration
	logger   *zap.Logger

	now     func() time.Time
	newCode func(n int) (string, error)
}

// NewService creates a Service.
//
// Precondition: every argument is non-nil and twoFATTL > 0.
func NewService(store Store, mailer mail.Sender, tokens *Authenticator, twoFATTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		mailer:   mailer,
		tokens:   tokens,
		twoFATTL: twoFATTL,
		logger:   logger,
		now:      time.Now,
		newCode:  RandomCode,
	}
}

// Tokens returns the Authenticator tokens are issued into.
func (s *Service) Tokens() *Authenticator { return s.tokens }

// Login checks credentials. An account whose email is unconfirmed is sent a
// fresh verification code instead of a token.
//
// Postcondition: the token is non-empty only when the result is LoginSuccess.
func (s *Service) Login(ctx context.Context, username, password string) (protocol.LoginResult, string) {
	exists, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return s.loginFailed("checking username", username, err)
	}
	if !exists {
		return protocol.LoginUsernameDoesNotExist, ""
	}

	ok, err := s.store.CheckPassword(ctx, username, password)
	if err != nil {
		return s.loginFailed("checking password", username, err)
	}
	if !ok {
		return protocol.LoginWrongPassword, ""
	}

	confirmed, err := s.store.EmailConfirmed(ctx, username)
	if err != nil {
		return s.loginFailed("checking email confirmation", username, err)
	}
	if !confirmed {
		if err := s.resendCode(ctx, username); err != nil {
			s.logger.Warn("resending verification code", zap.String("username", username), zap.Error(err))
		}
		return protocol.LoginTwoFactorAuthenticationSent, ""
	}

	token, err := s.tokens.Issue(username)
	if err != nil {
		return s.loginFailed("issuing token", username, err)
	}
	s.logger.Info("login succeeded", zap.String("username", username))
	return protocol.LoginSuccess, token
}

func (s *Service) loginFailed(step, username string, err error) (protocol.LoginResult, string) {
	s.logger.Error("login failed", zap.String("step", step), zap.String("username", username), zap.Error(err))
	return protocol.LoginUnknownError, ""
}

// resendCode stores a new code for an existing account and mails it.
func (s *Service) resendCode(ctx context.Context, username string) error {
	email, err := s.store.Email(ctx, username)
	if err != nil {
		return err
	}
	code, hash, err := s.generateCode()
	if err != nil {
		return err
	}
	if err := s.store.SetTwoFATime(ctx, username, s.now()); err != nil {
		return err
	}
	if err := s.store.SetTwoFAHash(ctx, username, hash); err != nil {
		return err
	}
	return s.sendCode(ctx, email, code)
}

func (s *Service) generateCode() (code, hash string, err error) {
	code, err = s.newCode(TwoFACodeLength)
	if err != nil {
		return "", "", err
	}
	hash, err = storage.HashSecret(code)
	if err != nil {
		return "", "", fmt.Errorf("hashing code: %w", err)
	}
	return code, hash, nil
}

func (s *Service) sendCode(ctx context.Context, email, code string) error {
	return s.mailer.Send(ctx, email, TwoFASubject, "Your 2FA token is: "+code)
}

// Register validates and stores a new, unconfirmed account and mails its
// verification code. Checks run in a fixed order and the first failing one
// decides the result.
func (s *Service) Register(ctx context.Context, username, password, email string) protocol.RegisterResult {
	exists, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return s.registerFailed("checking username", username, err)
	}
	switch {
	case exists:
		return protocol.RegisterUsernameExists
	case !ValidUsername(username):
		return protocol.RegisterInvalidUsername
	case !ValidPassword(password):
		return protocol.RegisterInvalidPassword
	case !ValidEmail(email):
		return protocol.RegisterInvalidEmail
	}

	inUse, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return s.registerFailed("checking email", username, err)
	}
	if inUse {
		return protocol.RegisterEmailInUse
	}

	code, codeHash, err := s.generateCode()
	if err != nil {
		return s.registerFailed("generating code", username, err)
	}
	if err := s.sendCode(ctx, email, code); err != nil {
		s.logger.Warn("verification mail rejected", zap.String("username", username), zap.Error(err))
		return protocol.RegisterInvalidEmail
	}

	passwordHash, err := storage.HashSecret(password)
	if err != nil {
		return s.registerFailed("hashing password", username, err)
	}
	err = s.store.InsertUser(ctx, storage.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		TwoFAHash:    codeHash,
		TwoFATime:    s.now(),
	})
	if errors.Is(err, storage.ErrUserExists) {
		return protocol.RegisterUsernameExists
	}
	if err != nil {
		return s.registerFailed("inserting user", username, err)
	}
	s.logger.Info("user registered", zap.String("username", username))
	return protocol.RegisterTwoFactorAuthenticationSent
}

func (s *Service) registerFailed(step, username string, err error) protocol.RegisterResult {
	s.logger.Error("registration failed", zap.String("step", step), zap.String("username", username), zap.Error(err))
	return protocol.RegisterUnknownError
}

// VerifyTwoFA confirms the account's email when code matches the most recent
// unexpired verification code.
func (s *Service) VerifyTwoFA(ctx context.Context, username, code string) protocol.TwoFAResult {
	exists, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return s.twoFAFailed("checking username", username, err)
	}
	if !exists {
		return protocol.TwoFAInvalidUsername
	}

	sentAt, err := s.store.TwoFATime(ctx, username)
	if err != nil {
		return s.twoFAFailed("reading code time", username, err)
	}
	if sentAt.IsZero() {
		return protocol.TwoFAUnknownError
	}
	if s.now().Sub(sentAt) > s.twoFATTL {
		return protocol.TwoFACodeExpired
	}

	hash, err := s.store.TwoFAHash(ctx, username)
	if err != nil {
		return s.twoFAFailed("reading code hash", username, err)
	}
	if !storage.CheckSecret(code, hash) {
		return protocol.TwoFAWrongCode
	}
	if err := s.store.ValidateEmail(ctx, username); err != nil {
		return s.twoFAFailed("validating email", username, err)
	}
	s.logger.Info("email verified", zap.String("username", username))
	return protocol.TwoFASuccess
}

func (s *Service) twoFAFailed(step, username string, err error) protocol.TwoFAResult {
	s.logger.Error("verification failed", zap.String("step", step), zap.String("username", username), zap.Error(err))
	return protocol.TwoFAUnknownError
}
