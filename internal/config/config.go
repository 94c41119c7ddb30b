package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

var validEnvironments = []string{"development", "preproduction", "production"}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	AuthBaseURL string `env:"INBENTA_AUTH_BASE_URL" envDefault:"https://api.inbenta.io"`
	APIVersion  string `env:"INBENTA_API_VERSION" envDefault:"v1"`

	APIKey             string `env:"INBENTA_API_KEY"`
	Secret             string `env:"INBENTA_SECRET"`
	Source             string `env:"INBENTA_SOURCE" envDefault:"convobench"`
	Environment        string `env:"INBENTA_ENV" envDefault:"development"`
	Lang               string `env:"INBENTA_LANG" envDefault:"en"`
	Timezone           string `env:"INBENTA_TIMEZONE"`
	UserType           *int   `env:"INBENTA_USER_TYPE"`
	SkipWelcomeMessage bool   `env:"INBENTA_SKIP_WELCOME_MESSAGE"`
	UseVoting          bool   `env:"INBENTA_USE_VOTING"`

	EditorAPIKey         string `env:"INBENTA_EDITOR_API_KEY"`
	EditorSecret         string `env:"INBENTA_EDITOR_SECRET"`
	EditorPersonalSecret string `env:"INBENTA_EDITOR_PERSONAL_SECRET"`

	GateConcurrency    int `env:"GATE_CONCURRENCY" envDefault:"1"`
	SessionIdleSeconds int `env:"SESSION_IDLE_SECONDS" envDefault:"900"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleSeconds) * time.Second
}

// ValidateChat checks everything the conversational connector needs
// before any network call is made.
func (c *Config) ValidateChat() error {
	if c.APIKey == "" {
		return fmt.Errorf("INBENTA_API_KEY is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("INBENTA_SECRET is required")
	}
	if !isValidEnvironment(c.Environment) {
		return fmt.Errorf("INBENTA_ENV must be one of development, preproduction, production (got %q)", c.Environment)
	}
	if c.GateConcurrency < 1 {
		return fmt.Errorf("GATE_CONCURRENCY must be at least 1")
	}
	return nil
}

// ValidateEditor checks the editor-scoped credentials used only by
// intent synchronization.
func (c *Config) ValidateEditor() error {
	if c.EditorAPIKey == "" {
		return fmt.Errorf("INBENTA_EDITOR_API_KEY is required")
	}
	if c.EditorSecret == "" {
		return fmt.Errorf("INBENTA_EDITOR_SECRET is required")
	}
	if c.EditorPersonalSecret == "" {
		return fmt.Errorf("INBENTA_EDITOR_PERSONAL_SECRET is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func isValidEnvironment(environment string) bool {
	for _, e := range validEnvironments {
		if environment == e {
			return true
		}
	}
	return false
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
