package backend

import (
	"fmt"
	"time"
)

// ManagerConfig содержит конфигурацию менеджера remotes и их circuit breaker'а
type ManagerConfig struct {
	HealthCheckInterval     time.Duration `yaml:"health_check_interval"`
	CheckTimeout            time.Duration `yaml:"check_timeout"`
	FailureThreshold        int           `yaml:"failure_threshold"`
	SuccessThreshold        int           `yaml:"success_threshold"`
	CircuitBreakerWindow    time.Duration `yaml:"circuit_breaker_window"`
	CircuitBreakerThreshold int           `yaml:"circuit_breaker_threshold"`
	InitialState            RemoteState   `yaml:"initial_state"`
}

// Config содержит полную конфигурацию модуля remotes. Remotes - упорядоченный список
// (не map), потому что приоритет/порядок конфигурации имеет значение для Read Router.
type Config struct {
	Manager ManagerConfig  `yaml:"manager"`
	Remotes []RemoteConfig `yaml:"remotes"`
}

// DefaultManagerConfig возвращает конфигурацию менеджера по умолчанию
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HealthCheckInterval:     15 * time.Second,
		CheckTimeout:            5 * time.Second,
		FailureThreshold:        3,
		SuccessThreshold:        2,
		CircuitBreakerWindow:    60 * time.Second,
		CircuitBreakerThreshold: 5,
		InitialState:            StateProbing,
	}
}

// DefaultConfig возвращает конфигурацию по умолчанию с одним локальным remote
func DefaultConfig() *Config {
	readRequest := true
	return &Config{
		Manager: DefaultManagerConfig(),
		Remotes: []RemoteConfig{
			{
				Name:        "local-minio",
				Priority:    1,
				ReadRequest: &readRequest,
				S3: S3Config{
					Endpoint:  "http://localhost:9000",
					Region:    "us-east-1",
					Bucket:    "test-bucket",
					AccessKey: "minioadmin",
					SecretKey: "minioadmin",
				},
			},
		},
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if err := c.Manager.Validate(); err != nil {
		return fmt.Errorf("invalid manager config: %w", err)
	}

	if len(c.Remotes) == 0 {
		return fmt.Errorf("at least one remote must be configured")
	}

	seen := make(map[string]bool, len(c.Remotes))
	for _, remote := range c.Remotes {
		if seen[remote.Name] {
			return fmt.Errorf("duplicate remote name '%s'", remote.Name)
		}
		seen[remote.Name] = true

		if err := remote.Validate(); err != nil {
			return fmt.Errorf("invalid remote config '%s': %w", remote.Name, err)
		}
	}

	return nil
}

// Validate проверяет корректность конфигурации менеджера
func (mc *ManagerConfig) Validate() error {
	if mc.HealthCheckInterval <= 0 {
		return fmt.Errorf("health_check_interval must be positive")
	}

	if mc.CheckTimeout <= 0 {
		return fmt.Errorf("check_timeout must be positive")
	}

	if mc.CheckTimeout >= mc.HealthCheckInterval {
		return fmt.Errorf("check_timeout must be less than health_check_interval")
	}

	if mc.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive")
	}

	if mc.SuccessThreshold <= 0 {
		return fmt.Errorf("success_threshold must be positive")
	}

	if mc.CircuitBreakerWindow <= 0 {
		return fmt.Errorf("circuit_breaker_window must be positive")
	}

	if mc.CircuitBreakerThreshold <= 0 {
		return fmt.Errorf("circuit_breaker_threshold must be positive")
	}

	if mc.InitialState != StateUp && mc.InitialState != StateDown && mc.InitialState != StateProbing {
		return fmt.Errorf("initial_state must be one of: UP, DOWN, PROBING")
	}

	return nil
}

// Validate проверяет корректность конфигурации одного remote
func (rc *RemoteConfig) Validate() error {
	if rc.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if rc.S3.Endpoint == "" {
		return fmt.Errorf("s3.endpoint cannot be empty")
	}

	if rc.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket cannot be empty")
	}

	if rc.S3.AccessKey == "" {
		return fmt.Errorf("s3.access_key cannot be empty")
	}

	if rc.S3.SecretKey == "" {
		return fmt.Errorf("s3.secret_key cannot be empty")
	}

	return nil
}
