// Package telegram formats and delivers bridge notifications through the
// Telegram Bot API.
package telegram

import (
	"fmt"
	"strings"
)

// Format selects how outbound notifications are rendered.
type Format string

const (
	FormatPlain    Format = "plain"
	FormatMarkdown Format = "markdown"
)

// ParseModeMarkdownV2 is the Bot API parse_mode for escaped markup.
const ParseModeMarkdownV2 = "MarkdownV2"

// markdownV2Reserved are the characters MarkdownV2 requires escaping:
// https://core.telegram.org/bots/api#markdownv2-style
const markdownV2Reserved = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 backslash-escapes every MarkdownV2-reserved character so
// attacker-controlled sender or body text cannot inject formatting.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownV2Reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatMessage renders a notification for one inbound SMS. The returned
// parseMode is empty for plain text and ParseModeMarkdownV2 for the rich
// layout, where every interpolated field is escaped and the body sits in a
// fenced block.
func FormatMessage(format Format, fromNumber, body, ts string) (text, parseMode string) {
	if format == FormatMarkdown {
		f := EscapeMarkdownV2(fromNumber)
		t := EscapeMarkdownV2(ts)
		b := EscapeMarkdownV2(body)
		text = "*\U0001F4E9 New SMS*\n" +
			"*From:* `" + f + "`\n" +
			"*Time:* `" + t + "`\n" +
			"*Body:*\n" +
			"```\n" + b + "\n```"
		return text, ParseModeMarkdownV2
	}

	return fmt.Sprintf("SMS\nFrom: %s\nTime: %s\nBody:\n%s", fromNumber, ts, body), ""
}
