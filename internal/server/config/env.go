package config

import (
	"os"
	"strconv"
	"strings"
)

// parseEnv overlays configuration from environment variables. The variable
// names follow the bridge's deployment convention (.env loaded by main):
//
//	ADDRESS, DATABASE_DSN, SMS_BRIDGE_SECRET,
//	TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID, TELEGRAM_FORMAT,
//	TELEGRAM_API_BASE_URL,
//	AUTH_REQUIRED, ALLOW_SECRET_AUTH, ALLOW_LEGACY_SECRET,
//	HMAC_WINDOW_SECONDS, DEDUP_WINDOW_SECONDS
//
// Unset variables leave the current value untouched.
func parseEnv(config *Config) {
	setString(&config.EndpointAddr, "ADDRESS")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.Secret, "SMS_BRIDGE_SECRET")
	setString(&config.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&config.ChatID, "TELEGRAM_CHAT_ID")
	setString(&config.TelegramAPIBaseURL, "TELEGRAM_API_BASE_URL")

	if v, ok := os.LookupEnv("TELEGRAM_FORMAT"); ok {
		config.TelegramFormat = strings.ToLower(strings.TrimSpace(v))
	}

	setBool(&config.AuthRequired, "AUTH_REQUIRED")
	setBool(&config.AllowSecretFallback, "ALLOW_SECRET_AUTH")
	setBool(&config.AllowLegacySecret, "ALLOW_LEGACY_SECRET")

	setInt(&config.HMACWindowSeconds, "HMAC_WINDOW_SECONDS")
	setInt(&config.DedupWindowSeconds, "DEDUP_WINDOW_SECONDS")
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

// setBool accepts 1/true/yes/y (any case) as true; everything else is false.
func setBool(dst *bool, name string) {
	if v, ok := os.LookupEnv(name); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y":
			*dst = true
		default:
			*dst = false
		}
	}
}
