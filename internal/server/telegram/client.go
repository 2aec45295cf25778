package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/smsbridge/internal/logging"
)

// DefaultBaseURL is the production Bot API endpoint; tests point the client
// at a local server instead.
const DefaultBaseURL = "https://api.telegram.org"

// StatusError is a non-success Bot API response. Error() returns the
// response body verbatim, which is what gets persisted as the delivery error.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return e.Body
}

// Client performs sendMessage calls for one bot and chat.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	chatID     string
	logger     logging.Logger
}

func NewClient(baseURL, botToken, chatID string, timeout time.Duration, logger logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		botToken:   botToken,
		chatID:     chatID,
		logger:     logger.With("module", "telegram"),
	}
}

// sendMessageResponse is the subset of the Bot API reply the bridge reads.
type sendMessageResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Send performs exactly one sendMessage POST. On HTTP success it returns
// the echoed message id, or nil when the reply body cannot be parsed
// (delivered, just without an id). A non-success status comes back as a
// *StatusError carrying the response body.
func (c *Client) Send(ctx context.Context, text, parseMode string) (*int64, error) {
	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")
	if parseMode != "" {
		form.Set("parse_mode", parseMode)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(body, &parsed); err != nil || !parsed.OK {
		// Delivered, but the reply is not usable; degrade to "no message id".
		c.logger.Warn(ctx, "unparseable sendMessage response", "body_len", len(body))
		return nil, nil
	}

	id := parsed.Result.MessageID
	return &id, nil
}
