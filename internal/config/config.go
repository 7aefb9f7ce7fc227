// Package config provides Viper-based configuration loading for the Uno server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ListenerConfig holds settings for one TCP endpoint.
type ListenerConfig struct {
	// Host is the bind address for the listener.
	Host string `mapstructure:"host" yaml:"host"`
	// Port is the TCP port for the listener. Zero selects an ephemeral port.
	Port int `mapstructure:"port" yaml:"port"`
	// HandshakeTimeout bounds the whole key exchange.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	// ReadTimeout is the per-frame idle timeout. Zero disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout is the per-frame write timeout. Zero disables it.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// TransportConfig holds framing and per-connection buffering limits.
type TransportConfig struct {
	// MaxFrameBytes is the largest accepted frame payload.
	MaxFrameBytes int `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
	// OutboxSize is the number of queued outbound messages per connection.
	OutboxSize int `mapstructure:"outbox_size" yaml:"outbox_size"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level" yaml:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Name            string        `mapstructure:"name" yaml:"name"`
	SSLMode         string        `mapstructure:"sslmode" yaml:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// AdmissionConfig holds connection rate limits applied before the handshake.
type AdmissionConfig struct {
	// PerSourceLimit is the number of connections one address may open per window.
	PerSourceLimit int `mapstructure:"per_source_limit" yaml:"per_source_limit"`
	// GlobalLimit is the number of connections all addresses may open per window.
	GlobalLimit int `mapstructure:"global_limit" yaml:"global_limit"`
	// Window is the decay period of a single admission.
	Window time.Duration `mapstructure:"window" yaml:"window"`
	// Freeze is how long every connection is refused after GlobalLimit trips.
	Freeze time.Duration `mapstructure:"freeze" yaml:"freeze"`
}

// AuthConfig holds session token and second-factor settings.
type AuthConfig struct {
	// TokenTTL bounds how long an issued token stays valid. Zero means forever.
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	// TwoFATTL is how long an emailed verification code stays valid.
	TwoFATTL time.Duration `mapstructure:"two_fa_ttl" yaml:"two_fa_ttl"`
}

// GameConfig holds lobby and rule parameters.
type GameConfig struct {
	// MaxPlayers is the seat cap of every lobby.
	MaxPlayers int `mapstructure:"max_players" yaml:"max_players"`
	// HandSize is the number of cards dealt to each player.
	HandSize int `mapstructure:"hand_size" yaml:"hand_size"`
}

// MailConfig holds outbound notification settings.
type MailConfig struct {
	// Driver is "smtp" or "log".
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	From     string `mapstructure:"from" yaml:"from"`
}

// Addr returns the "host:port" SMTP relay address.
func (m MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// Config is the top-level application configuration.
type Config struct {
	AuthListener     ListenerConfig  `mapstructure:"auth_listener" yaml:"auth_listener"`
	GameplayListener ListenerConfig  `mapstructure:"gameplay_listener" yaml:"gameplay_listener"`
	Transport        TransportConfig `mapstructure:"transport" yaml:"transport"`
	Logging          LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Store            StoreConfig     `mapstructure:"store" yaml:"store"`
	Database         DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Admission        AdmissionConfig `mapstructure:"admission" yaml:"admission"`
	Auth             AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Game             GameConfig      `mapstructure:"game" yaml:"game"`
	Mail             MailConfig      `mapstructure:"mail" yaml:"mail"`
}

// redacted replaces a non-empty secret in Dump output.
const redacted = "********"

// Dump renders c as YAML in the layout Load reads, with secrets masked.
func (c Config) Dump() ([]byte, error) {
	if c.Database.Password != "" {
		c.Database.Password = redacted
	}
	if c.Mail.Password != "" {
		c.Mail.Password = redacted
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateListener("auth_listener", c.AuthListener); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateListener("gameplay_listener", c.GameplayListener); err != nil {
		errs = append(errs, err.Error())
	}
	if c.AuthListener.Port != 0 && c.AuthListener.Port == c.GameplayListener.Port &&
		c.AuthListener.Host == c.GameplayListener.Host {
		errs = append(errs, "auth_listener and gameplay_listener must not share an address")
	}
	if err := validateTransport(c.Transport); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStore(c.Store); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Store.Driver == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateAdmission(c.Admission); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAuth(c.Auth); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateMail(c.Mail); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateListener(name string, l ListenerConfig) error {
	var errs []string
	if l.Host == "" {
		errs = append(errs, fmt.Sprintf("%s.host must not be empty", name))
	}
	if l.Port < 0 || l.Port > 65535 {
		errs = append(errs, fmt.Sprintf("%s.port must be 0-65535, got %d", name, l.Port))
	}
	if l.HandshakeTimeout < 0 {
		errs = append(errs, fmt.Sprintf("%s.handshake_timeout must not be negative", name))
	}
	if l.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("%s.read_timeout must not be negative", name))
	}
	if l.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("%s.write_timeout must not be negative", name))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTransport(t TransportConfig) error {
	var errs []string
	if t.MaxFrameBytes < 64 {
		errs = append(errs, fmt.Sprintf("transport.max_frame_bytes must be >= 64, got %d", t.MaxFrameBytes))
	}
	if t.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("transport.outbox_size must be >= 1, got %d", t.OutboxSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateStore(s StoreConfig) error {
	switch s.Driver {
	case "postgres":
		return nil
	case "sqlite":
		if s.SQLitePath == "" {
			return errors.New("store.sqlite_path must not be empty when store.driver is sqlite")
		}
		return nil
	default:
		return fmt.Errorf("store.driver must be one of [postgres, sqlite], got %q", s.Driver)
	}
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAdmission(a AdmissionConfig) error {
	var errs []string
	if a.PerSourceLimit < 1 {
		errs = append(errs, fmt.Sprintf("admission.per_source_limit must be >= 1, got %d", a.PerSourceLimit))
	}
	if a.GlobalLimit < 1 {
		errs = append(errs, fmt.Sprintf("admission.global_limit must be >= 1, got %d", a.GlobalLimit))
	}
	if a.Window <= 0 {
		errs = append(errs, "admission.window must be positive")
	}
	if a.Freeze < 0 {
		errs = append(errs, "admission.freeze must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	var errs []string
	if a.TokenTTL < 0 {
		errs = append(errs, "auth.token_ttl must not be negative")
	}
	if a.TwoFATTL <= 0 {
		errs = append(errs, "auth.two_fa_ttl must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.MaxPlayers < 2 || g.MaxPlayers > 10 {
		errs = append(errs, fmt.Sprintf("game.max_players must be 2-10, got %d", g.MaxPlayers))
	}
	if g.HandSize < 1 || g.HandSize > 10 {
		errs = append(errs, fmt.Sprintf("game.hand_size must be 1-10, got %d", g.HandSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateMail(m MailConfig) error {
	switch m.Driver {
	case "log":
		return nil
	case "smtp":
		var errs []string
		if m.Host == "" {
			errs = append(errs, "mail.host must not be empty")
		}
		if m.Port < 1 || m.Port > 65535 {
			errs = append(errs, fmt.Sprintf("mail.port must be 1-65535, got %d", m.Port))
		}
		if m.From == "" {
			errs = append(errs, "mail.from must not be empty")
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	default:
		return fmt.Errorf("mail.driver must be one of [smtp, log], got %q", m.Driver)
	}
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with UNO_ prefix
	v.SetEnvPrefix("UNO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("auth_listener.host", "127.0.0.1")
	v.SetDefault("auth_listener.port", 25000)
	v.SetDefault("auth_listener.handshake_timeout", "10s")
	v.SetDefault("auth_listener.read_timeout", "5m")
	v.SetDefault("auth_listener.write_timeout", "30s")

	v.SetDefault("gameplay_listener.host", "127.0.0.1")
	v.SetDefault("gameplay_listener.port", 25001)
	v.SetDefault("gameplay_listener.handshake_timeout", "10s")
	v.SetDefault("gameplay_listener.read_timeout", "0s")
	v.SetDefault("gameplay_listener.write_timeout", "30s")

	v.SetDefault("transport.max_frame_bytes", 1<<20)
	v.SetDefault("transport.outbox_size", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "uno.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "uno")
	v.SetDefault("database.password", "uno")
	v.SetDefault("database.name", "uno")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("admission.per_source_limit", 25)
	v.SetDefault("admission.global_limit", 50)
	v.SetDefault("admission.window", "1m")
	v.SetDefault("admission.freeze", "5s")

	v.SetDefault("auth.token_ttl", "0s")
	v.SetDefault("auth.two_fa_ttl", "5m")

	v.SetDefault("game.max_players", 4)
	v.SetDefault("game.hand_size", 7)

	v.SetDefault("mail.driver", "log")
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "uno@localhost")
}
