package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	BlizzardClientID     string
	BlizzardClientSecret string
	TelegramBotToken     string
	TelegramChatID       string
	TelegramLeagueName   string
	CronSecret           string
	DBPath               string
	ServerPort           string
	ConfigDir            string
	Locale               string
	LogLevel             string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		BlizzardClientID:     getEnv("BLIZZARD_CLIENT_ID", ""),
		BlizzardClientSecret: getEnv("BLIZZARD_CLIENT_SECRET", ""),
		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:       getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramLeagueName:   getEnv("TELEGRAM_LEAGUE_NAME", "Midnight Progress League"),
		CronSecret:           getEnv("CRON_SECRET", ""),
		DBPath:               getEnv("DB_PATH", "tracker.db"),
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		ConfigDir:            getEnv("CONFIG_DIR", "config"),
		Locale:               getEnv("LOCALE_DEFAULT", "en_US"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("config_dir", cfg.ConfigDir).
		Str("locale", cfg.Locale).
		Bool("telegram_send_configured", cfg.TelegramBotToken != "" && cfg.TelegramChatID != "").
		Msg("configuration loaded")

	return cfg, nil
}

// RequireBlizzardCredentials fails when polling credentials are absent.
// Loading stays lazy so read-only surfaces work without them.
func (c *Config) RequireBlizzardCredentials() error {
	if c.BlizzardClientID == "" || c.BlizzardClientSecret == "" {
		return fmt.Errorf("missing BLIZZARD_CLIENT_ID or BLIZZARD_CLIENT_SECRET: set them before running polling jobs")
	}
	return nil
}

// RequireTelegramSend fails when the digest send target is not configured.
func (c *Config) RequireTelegramSend() error {
	if c.TelegramBotToken == "" || c.TelegramChatID == "" {
		return fmt.Errorf("missing TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID: digest sending is disabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
