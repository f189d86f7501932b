// Package config handles configuration loading, validation, and persistence
// for the GMBridge daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000
	DefaultGamePort   = 8888
)

// Config is the root configuration structure for GMBridge.
type Config struct {
	mu   sync.RWMutex
	path string

	GameData        GameData        `json:"game_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// GameData contains game server connection and GM credential settings.
type GameData struct {
	// Game server endpoint
	Host string `json:"gm_host"`
	Port int    `json:"gm_port"`

	// GM credentials
	Account  string `json:"gm_account"`
	Password string `json:"gm_password"`

	// REST surface
	APIPort int `json:"api_port"`

	// Request handling
	RequestTimeoutSec int `json:"request_timeout_sec"`
	LoginTimeoutSec   int `json:"login_timeout_sec"`

	// Reconnect policy
	ReconnectAttempts int `json:"reconnect_attempts"`
	ReconnectDelaySec int `json:"reconnect_delay_sec"`
}

// RequestTimeout returns the per-request response wait as a duration.
func (g GameData) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSec) * time.Second
}

// LoginTimeout returns the login handshake wait as a duration.
func (g GameData) LoginTimeout() time.Duration {
	return time.Duration(g.LoginTimeoutSec) * time.Second
}

// ReconnectDelay returns the pause between reconnect attempts as a duration.
func (g GameData) ReconnectDelay() time.Duration {
	return time.Duration(g.ReconnectDelaySec) * time.Second
}

// ApplicationData contains bridge application configuration.
type ApplicationData struct {
	Timers   TimerConfig    `json:"timers"`
	Database DatabaseConfig `json:"database"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// TimerConfig holds health check and task interval settings.
type TimerConfig struct {
	GeneralHealthInterval int `json:"general_health_interval_sec"`
	StatsPollingInterval  int `json:"stats_polling_interval_sec"`
	HeartbeatInterval     int `json:"heartbeat_interval_sec"`
	AuditPurgeInterval    int `json:"audit_purge_interval_sec"`
}

// DatabaseConfig holds local storage settings.
type DatabaseConfig struct {
	Path               string `json:"path"`
	AuditRetentionDays int    `json:"audit_retention_days"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	JWTSecret      string   `json:"jwt_secret"`
	TokenTTLHours  int      `json:"token_ttl_hours"`
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GameData: GameData{
			Host:              "127.0.0.1",
			Port:              DefaultGamePort,
			APIPort:           DefaultAPIPort,
			RequestTimeoutSec: 3,
			LoginTimeoutSec:   10,
			ReconnectAttempts: 30,
			ReconnectDelaySec: 3,
		},
		ApplicationData: ApplicationData{
			Timers: TimerConfig{
				GeneralHealthInterval: 60,
				StatsPollingInterval:  10,
				HeartbeatInterval:     60,
				AuditPurgeInterval:    3600,
			},
			Database: DatabaseConfig{
				Path:               "data/gmbridge.db",
				AuditRetentionDays: 30,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Security: SecurityConfig{
				TokenTTLHours: 24,
				RateLimitRPS:  100,
				AuthDisabled:  false,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetGameData returns a copy of the game data configuration.
func (c *Config) GetGameData() GameData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GameData
}

// SetGameData updates the game data configuration.
func (c *Config) SetGameData(data GameData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GameData = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// UpdateGameField updates a specific field in game data.
func (c *Config) UpdateGameField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current game data to map
	data, _ := json.Marshal(c.GameData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	// Update field
	m[key] = value

	// Unmarshal back
	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.GameData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// UpdateAppField updates a specific field in application data.
func (c *Config) UpdateAppField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.ApplicationData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.ApplicationData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GameData.Account == "" || c.GameData.Password == ""
}
