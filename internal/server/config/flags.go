package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/smsbridge/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-d string   PostgreSQL DSN
//	-s string   shared bridge secret (HMAC / legacy auth)
//	-b string   Telegram bot token
//	-i string   Telegram chat id
//	-f string   Telegram format ("plain" or "markdown")
//	-w int      dedup window, seconds
//	-m int      HMAC replay window, seconds
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-b", "-i", "-f", "-w", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Secret, "s", config.Secret, "shared bridge secret")
	fs.StringVar(&config.BotToken, "b", config.BotToken, "telegram bot token")
	fs.StringVar(&config.ChatID, "i", config.ChatID, "telegram chat id")
	fs.StringVar(&config.TelegramFormat, "f", config.TelegramFormat, "telegram format (plain|markdown)")
	fs.IntVar(&config.DedupWindowSeconds, "w", config.DedupWindowSeconds, "dedup window (in seconds)")
	fs.IntVar(&config.HMACWindowSeconds, "m", config.HMACWindowSeconds, "hmac window (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
