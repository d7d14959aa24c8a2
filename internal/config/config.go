// Package config provides configuration loading and management for the roster sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acectf/roster-sync/internal/telemetry"
)

// EnvPrefix is the prefix used for every environment variable read by the server
const EnvPrefix = "ROSTER_SYNC"

const (
	// StorageTypeDatabase stores the local roster in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeMemory keeps the local roster in process memory (development only)
	StorageTypeMemory = "memory"
)

// Environment variables consulted when the matching *File setting is empty
const (
	EnvRegistrationPassword = EnvPrefix + "_REGISTRATION_PASSWORD"
	EnvWebhookSecret        = EnvPrefix + "_WEBHOOK_SECRET"
	EnvJWTSecret            = EnvPrefix + "_JWT_SECRET"
	EnvSessionSecret        = EnvPrefix + "_SESSION_SECRET"
	EnvDatabasePassword     = EnvPrefix + "_DATABASE_PASSWORD"
)

const (
	defaultRegistrationTimeout = 10 * time.Second
	defaultTeamInterval        = time.Minute
	defaultScoreInterval       = 30 * time.Second
	defaultWebhookTimeout      = 2 * time.Minute
	defaultSessionTTL          = 12 * time.Hour
	defaultTeamEmailDomain     = "ace-ctf.local"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Registration RegistrationConfig `yaml:"registration"`
	Sync         SyncConfig         `yaml:"sync,omitempty"`
	Webhook      WebhookConfig      `yaml:"webhook,omitempty"`
	SSO          SSOConfig          `yaml:"sso,omitempty"`
	Storage      StorageConfig      `yaml:"storage,omitempty"`
	Database     *DatabaseConfig    `yaml:"database,omitempty"`
	Telemetry    *telemetry.Config  `yaml:"telemetry,omitempty"`
	Authz        *AuthzConfig       `yaml:"authz,omitempty"`
}

// RegistrationConfig describes how to reach the external registration service
type RegistrationConfig struct {
	// BaseURL is the API root, for example "http://backend:5000/api"
	BaseURL string `yaml:"baseURL"`

	// AdminEmail is the account used to obtain a bearer token
	AdminEmail string `yaml:"adminEmail"`

	// AdminPasswordFile holds the admin password; falls back to ROSTER_SYNC_REGISTRATION_PASSWORD
	AdminPasswordFile string `yaml:"adminPasswordFile,omitempty"`

	// Timeout bounds every call to the registration service (e.g. "10s")
	Timeout string `yaml:"timeout,omitempty"`
}

// SyncConfig holds the reconciliation and score push settings
type SyncConfig struct {
	// TeamInterval is the period of the full roster reconciliation
	TeamInterval string `yaml:"teamInterval,omitempty"`

	// ScoreInterval is the period of the score push
	ScoreInterval string `yaml:"scoreInterval,omitempty"`

	// TeamEmailDomain is the domain of the placeholder login email given to synced teams
	TeamEmailDomain string `yaml:"teamEmailDomain,omitempty"`

	// AllowPartialNameMatch enables the last, heuristic tier of team deletion lookup
	AllowPartialNameMatch bool `yaml:"allowPartialNameMatch,omitempty"`

	// WebhookTimeout bounds how long a targeted webhook action waits for a running pass
	WebhookTimeout string `yaml:"webhookTimeout,omitempty"`
}

// WebhookConfig holds the inbound webhook settings
type WebhookConfig struct {
	// SecretFile holds the shared HMAC secret; falls back to ROSTER_SYNC_WEBHOOK_SECRET
	SecretFile string `yaml:"secretFile,omitempty"`
}

// SSOConfig holds the session bridge settings
type SSOConfig struct {
	// JWTSecretFile holds the secret shared with the registration service
	JWTSecretFile string `yaml:"jwtSecretFile,omitempty"`

	// SessionSecretFile holds the secret used to sign local sessions
	SessionSecretFile string `yaml:"sessionSecretFile,omitempty"`

	// PublicURL is the externally visible URL of the scoring platform
	PublicURL string `yaml:"publicURL,omitempty"`

	// SessionTTL is the lifetime of a local session (e.g. "12h")
	SessionTTL string `yaml:"sessionTTL,omitempty"`

	// AllowedOrigins lists the origins allowed to call the SSO endpoint from a browser
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// Authorization actions evaluated for admin routes
const (
	// ActionRead covers status and preview endpoints
	ActionRead = "read"

	// ActionRun covers manual sync triggers
	ActionRun = "run"
)

// AuthzConfig overrides the admin authorization defaults
type AuthzConfig struct {
	// PolicyFile holds Cedar policies replacing the built-in ones
	PolicyFile string `yaml:"policyFile,omitempty"`

	// Roles maps local session roles to the actions they are granted.
	// When empty, admins get every action and other roles get none.
	Roles []RoleMappingEntry `yaml:"roles,omitempty"`
}

// RoleMappingEntry grants actions to a session role
type RoleMappingEntry struct {
	Role    string   `yaml:"role"`
	Actions []string `yaml:"actions"`
}

// GetPolicies returns the custom policy text, or nil when the built-in policies apply
func (a *AuthzConfig) GetPolicies() ([]byte, error) {
	if a == nil || a.PolicyFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(a.PolicyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", a.PolicyFile, err)
	}
	return data, nil
}

// GetRoles returns the role mapping, applying the default when none is configured
func (a *AuthzConfig) GetRoles() []RoleMappingEntry {
	if a == nil || len(a.Roles) == 0 {
		return []RoleMappingEntry{{Role: "admin", Actions: []string{ActionRead, ActionRun}}}
	}
	return a.Roles
}

func validateAuthz(a *AuthzConfig) error {
	for i, entry := range a.Roles {
		if entry.Role == "" {
			return fmt.Errorf("authz.roles[%d].role is required", i)
		}
		for _, action := range entry.Actions {
			if action != ActionRead && action != ActionRun {
				return fmt.Errorf("authz.roles[%d]: unknown action %q (want %q or %q)", i, action, ActionRead, ActionRun)
			}
		}
	}
	return nil
}

// StorageConfig selects the local roster backend
type StorageConfig struct {
	Type string `yaml:"type,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of idle connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// readSecret returns the secret stored in path, or the value of envVar when path is empty.
// Leading and trailing whitespace is trimmed from file content.
func readSecret(path, envVar string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file %s: %w", path, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("secret file %s is empty", path)
		}
		return secret, nil
	}

	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	return "", fmt.Errorf("no secret configured: set a secret file or the %s environment variable", envVar)
}

// GetPassword returns the registration admin password
func (r *RegistrationConfig) GetPassword() (string, error) {
	return readSecret(r.AdminPasswordFile, EnvRegistrationPassword)
}

// GetTimeout returns the per-call timeout, defaulting to 10s
func (r *RegistrationConfig) GetTimeout() time.Duration {
	return parseDurationOr(r.Timeout, defaultRegistrationTimeout)
}

// GetSecret returns the shared webhook HMAC secret
func (w *WebhookConfig) GetSecret() (string, error) {
	return readSecret(w.SecretFile, EnvWebhookSecret)
}

// GetJWTSecret returns the secret used to verify identity tokens
func (s *SSOConfig) GetJWTSecret() (string, error) {
	return readSecret(s.JWTSecretFile, EnvJWTSecret)
}

// GetSessionSecret returns the secret used to sign local sessions
func (s *SSOConfig) GetSessionSecret() (string, error) {
	return readSecret(s.SessionSecretFile, EnvSessionSecret)
}

// GetSessionTTL returns the session lifetime, defaulting to 12h
func (s *SSOConfig) GetSessionTTL() time.Duration {
	return parseDurationOr(s.SessionTTL, defaultSessionTTL)
}

// GetTeamInterval returns the full reconciliation period
func (s *SyncConfig) GetTeamInterval() time.Duration {
	return parseDurationOr(s.TeamInterval, defaultTeamInterval)
}

// GetScoreInterval returns the score push period
func (s *SyncConfig) GetScoreInterval() time.Duration {
	return parseDurationOr(s.ScoreInterval, defaultScoreInterval)
}

// GetWebhookTimeout returns how long a targeted webhook action may wait for the team-sync lock
func (s *SyncConfig) GetWebhookTimeout() time.Duration {
	return parseDurationOr(s.WebhookTimeout, defaultWebhookTimeout)
}

// GetTeamEmailDomain returns the placeholder email domain for synced teams
func (s *SyncConfig) GetTeamEmailDomain() string {
	if s.TeamEmailDomain == "" {
		return defaultTeamEmailDomain
	}
	return s.TeamEmailDomain
}

// GetType returns the storage type, defaulting to database
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeDatabase
	}
	return s.Type
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from ROSTER_SYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	return readSecret(d.PasswordFile, EnvDatabasePassword)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ValidateSecrets checks that every secret the server needs at runtime can be resolved.
// It is called by the serve command only, so that offline commands such as migrate do not
// require the webhook or SSO secrets.
func (c *Config) ValidateSecrets() error {
	if _, err := c.Registration.GetPassword(); err != nil {
		return fmt.Errorf("registration.adminPasswordFile: %w", err)
	}
	if _, err := c.Webhook.GetSecret(); err != nil {
		return fmt.Errorf("webhook.secretFile: %w", err)
	}
	if _, err := c.SSO.GetJWTSecret(); err != nil {
		return fmt.Errorf("sso.jwtSecretFile: %w", err)
	}
	if _, err := c.SSO.GetSessionSecret(); err != nil {
		return fmt.Errorf("sso.sessionSecretFile: %w", err)
	}
	return nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateRegistration(&c.Registration); err != nil {
		return err
	}

	if err := validateSync(&c.Sync); err != nil {
		return err
	}

	if c.SSO.SessionTTL != "" {
		if _, err := time.ParseDuration(c.SSO.SessionTTL); err != nil {
			return fmt.Errorf("sso.sessionTTL must be a valid duration: %w", err)
		}
	}

	switch c.Storage.GetType() {
	case StorageTypeDatabase:
		if c.Database == nil {
			return fmt.Errorf("database configuration is required when storage.type is %q", StorageTypeDatabase)
		}
	case StorageTypeMemory:
	default:
		return fmt.Errorf("storage.type must be %q or %q, got %q", StorageTypeDatabase, StorageTypeMemory, c.Storage.Type)
	}

	if c.Authz != nil {
		if err := validateAuthz(c.Authz); err != nil {
			return err
		}
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}

// validateRegistration validates the registration service settings
func validateRegistration(reg *RegistrationConfig) error {
	if reg.BaseURL == "" {
		return fmt.Errorf("registration.baseURL is required")
	}
	u, err := url.Parse(reg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("registration.baseURL must be an absolute http(s) URL, got %q", reg.BaseURL)
	}
	if reg.AdminEmail == "" {
		return fmt.Errorf("registration.adminEmail is required")
	}
	if reg.Timeout != "" {
		if _, err := time.ParseDuration(reg.Timeout); err != nil {
			return fmt.Errorf("registration.timeout must be a valid duration (e.g., '10s'): %w", err)
		}
	}
	return nil
}

// validateSync validates the sync intervals
func validateSync(s *SyncConfig) error {
	intervals := []struct {
		field string
		value string
	}{
		{"sync.teamInterval", s.TeamInterval},
		{"sync.scoreInterval", s.ScoreInterval},
		{"sync.webhookTimeout", s.WebhookTimeout},
	}
	for _, iv := range intervals {
		if iv.value == "" {
			continue
		}
		d, err := time.ParseDuration(iv.value)
		if err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g., '30s', '1m'): %w", iv.field, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", iv.field, iv.value)
		}
	}
	return nil
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
