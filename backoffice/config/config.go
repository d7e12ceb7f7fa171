package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries everything the server reads from the environment. Secrets
// and deployment endpoints live here; behavioral tunables live in Settings.
type Config struct {
	Port        int    `env:"PORT" envDefault:"8000"`
	DatabaseUri string `env:"DATABASE_URI,required"`
	JwtSecret   string `env:"JWT_SECRET,required"`
	LogDir      string `env:"LOG_DIR" envDefault:"logs"`

	PublicOrigin string `env:"PUBLIC_ORIGIN" envDefault:"*"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminEmail    string `env:"ADMIN_EMAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	// "basic" runs the local credential directory; "keycloak" delegates
	// identity to an external Keycloak server.
	IdentityProvider string `env:"IDENTITY_PROVIDER" envDefault:"basic"`

	KeycloakServerUrl     string `env:"KEYCLOAK_SERVER_URL"`
	KeycloakAdminUsername string `env:"KEYCLOAK_ADMIN_USER"`
	KeycloakAdminPassword string `env:"KEYCLOAK_ADMIN_PASSWORD"`
	UseSslInLogin         bool   `env:"USE_SSL_IN_LOGIN"`
	CertPath              string `env:"CERT_PATH"`
	KeyPath               string `env:"KEY_PATH"`

	SettingsFile string `env:"SETTINGS_FILE"`
}

// Settings are the behavioral tunables, loaded from an optional yaml file so
// operators can adjust them without touching the environment of the process.
type Settings struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`

	SessionTtlHours int `yaml:"session_ttl_hours"`
}

func defaultSettings() Settings {
	return Settings{
		DefaultPageSize: 10,
		MaxPageSize:     100,
		SessionTtlHours: 12,
	}
}

// Load reads the optional env file, then the environment, then the optional
// settings file. Defaults cover everything but credentials and the database.
func Load(envFile string) (Config, Settings, error) {
	if envFile != "" {
		slog.Info("loading env from file", "env_file", envFile)
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, Settings{}, fmt.Errorf("error loading env file '%v': %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, Settings{}, fmt.Errorf("error parsing environment: %w", err)
	}

	if cfg.IdentityProvider == "keycloak" && cfg.KeycloakServerUrl == "" {
		return Config{}, Settings{}, fmt.Errorf("KEYCLOAK_SERVER_URL is required when IDENTITY_PROVIDER is keycloak")
	}

	settings := defaultSettings()
	if cfg.SettingsFile != "" {
		data, err := os.ReadFile(cfg.SettingsFile)
		if err != nil {
			return Config{}, Settings{}, fmt.Errorf("error reading settings file '%v': %w", cfg.SettingsFile, err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Config{}, Settings{}, fmt.Errorf("error parsing settings file '%v': %w", cfg.SettingsFile, err)
		}
	}

	if settings.DefaultPageSize <= 0 || settings.MaxPageSize < settings.DefaultPageSize {
		return Config{}, Settings{}, fmt.Errorf("invalid page size settings: default %v, max %v", settings.DefaultPageSize, settings.MaxPageSize)
	}

	return cfg, settings, nil
}
