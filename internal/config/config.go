package config

import (
	"os"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr string

	// DatabaseURL is optional: when empty the server runs on the in-memory
	// store and directory (development mode).
	DatabaseURL string

	AllowedOrigins []string

	// BotFallbackWait is how long a searching player waits for a real
	// opponent before a bot match starts. Zero means the bot match is
	// created immediately when the queue is empty.
	BotFallbackWait time.Duration

	BotTickInterval time.Duration
	BotReplyDelay   time.Duration

	// ReplyTemplateDir optionally extends the embedded bot reply catalog.
	ReplyTemplateDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:        ":8080",
		BotFallbackWait: 0,
		BotTickInterval: 5 * time.Second,
		BotReplyDelay:   time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.HTTPAddr = ":" + v
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("BOT_FALLBACK_WAIT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.BotFallbackWait = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOT_TICK_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.BotTickInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOT_REPLY_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.BotReplyDelay = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOT_REPLY_DIR")); v != "" {
		cfg.ReplyTemplateDir = v
	}

	return cfg, nil
}
