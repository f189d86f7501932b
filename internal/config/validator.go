package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateGameData(&cfg.GameData, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateGameData(data *GameData, result *ValidationResult) {
	// Required fields
	if strings.TrimSpace(data.Host) == "" {
		result.AddError("game_data.gm_host", "game server host is required")
	}

	if strings.TrimSpace(data.Account) == "" {
		result.AddError("game_data.gm_account", "GM account is required")
	}

	if strings.TrimSpace(data.Password) == "" {
		result.AddError("game_data.gm_password", "GM password is required")
	}

	// Port validation
	validatePort(data.Port, "game_data.gm_port", result)
	validatePort(data.APIPort, "game_data.api_port", result)

	if data.Port == data.APIPort {
		result.AddError("game_data.ports", "game port and API port must differ")
	}

	// Timeouts
	if data.RequestTimeoutSec < 1 {
		result.AddError("game_data.request_timeout_sec", "request timeout must be at least 1 second")
	}
	if data.RequestTimeoutSec > 30 {
		result.AddWarning("game_data.request_timeout_sec",
			fmt.Sprintf("request timeout of %ds will hold HTTP clients open", data.RequestTimeoutSec))
	}
	if data.LoginTimeoutSec < 1 {
		result.AddError("game_data.login_timeout_sec", "login timeout must be at least 1 second")
	}

	// Reconnect policy
	if data.ReconnectAttempts < 1 {
		result.AddError("game_data.reconnect_attempts", "must allow at least 1 reconnect attempt")
	}
	if data.ReconnectDelaySec < 1 {
		result.AddWarning("game_data.reconnect_delay_sec",
			"reconnect delay under 1s may hammer the game server")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	// Timer validation
	validateTimers(&data.Timers, result)

	// Database
	if strings.TrimSpace(data.Database.Path) == "" {
		result.AddError("application_data.database.path", "database path is required")
	}
	if data.Database.AuditRetentionDays < 1 {
		result.AddError("application_data.database.audit_retention_days",
			"audit retention must be at least 1 day")
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	// Security
	if !data.Security.AuthDisabled && strings.TrimSpace(data.Security.JWTSecret) == "" {
		result.AddError("application_data.security.jwt_secret",
			"JWT secret is required when authentication is enabled")
	}
	if data.Security.TokenTTLHours < 1 {
		result.AddError("application_data.security.token_ttl_hours",
			"token TTL must be at least 1 hour")
	}

	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	if data.Security.AuthDisabled {
		result.AddWarning("application_data.security.auth_disabled",
			"authentication is disabled, every caller has admin access")
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.HeartbeatInterval < 10 {
		result.AddWarning("timers.heartbeat_interval",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
	if timers.GeneralHealthInterval < 10 {
		result.AddWarning("timers.general_health_interval",
			"health check interval less than 10s may cause excessive probing")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
