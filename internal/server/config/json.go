package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/smsbridge/internal/flagx"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It is an intermediate DTO: after unmarshalling, its fields
// are copied into the runtime Config struct. The telegram timeout is given
// in seconds.
type JsonConfig struct {
	EndpointAddr           string `json:"endpoint_addr"`
	DatabaseDSN            string `json:"database_dsn"`
	Secret                 string `json:"secret"`
	BotToken               string `json:"telegram_bot_token"`
	ChatID                 string `json:"telegram_chat_id"`
	TelegramFormat         string `json:"telegram_format"`
	TelegramAPIBaseURL     string `json:"telegram_api_base_url"`
	TelegramTimeoutSeconds int    `json:"telegram_timeout_seconds"`
	AuthRequired           *bool  `json:"auth_required"`
	AllowSecretFallback    *bool  `json:"allow_secret_auth"`
	AllowLegacySecret      *bool  `json:"allow_legacy_secret"`
	HMACWindowSeconds      int    `json:"hmac_window_seconds"`
	DedupWindowSeconds     int    `json:"dedup_window_seconds"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; without them no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.Secret != "" {
		config.Secret = c.Secret
	}
	if c.BotToken != "" {
		config.BotToken = c.BotToken
	}
	if c.ChatID != "" {
		config.ChatID = c.ChatID
	}
	if c.TelegramFormat != "" {
		config.TelegramFormat = c.TelegramFormat
	}
	if c.TelegramAPIBaseURL != "" {
		config.TelegramAPIBaseURL = c.TelegramAPIBaseURL
	}
	if c.TelegramTimeoutSeconds > 0 {
		config.TelegramTimeout = time.Duration(c.TelegramTimeoutSeconds) * time.Second
	}
	if c.AuthRequired != nil {
		config.AuthRequired = *c.AuthRequired
	}
	if c.AllowSecretFallback != nil {
		config.AllowSecretFallback = *c.AllowSecretFallback
	}
	if c.AllowLegacySecret != nil {
		config.AllowLegacySecret = *c.AllowLegacySecret
	}
	if c.HMACWindowSeconds > 0 {
		config.HMACWindowSeconds = c.HMACWindowSeconds
	}
	if c.DedupWindowSeconds > 0 {
		config.DedupWindowSeconds = c.DedupWindowSeconds
	}
}
