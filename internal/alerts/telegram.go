package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"standx-mm-bot/internal/config"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	// maxMessageRunes is the bot API limit for sendMessage text.
	maxMessageRunes = 4096
	maxRetryAfter   = 30 * time.Second
)

// Telegram posts alert text through the bot API. Each message is tagged with
// the configured prefix so several bots can share one chat.
type Telegram struct {
	enabled bool
	token   string
	chatID  string
	prefix  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		prefix:  strings.TrimSpace(cfg.Prefix),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

type sendResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send delivers message once; a 429 answer is retried a single time after the
// delay the API asks for.
func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	text := t.render(message)
	if text == "" {
		return errors.New("telegram message is empty")
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return err
	}
	wait, err := t.post(ctx, body)
	if wait <= 0 {
		return err
	}
	t.log.Debug("telegram rate limited", zap.Duration("retry_after", wait))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	case <-timer.C:
	}
	_, err = t.post(ctx, body)
	return err
}

// post returns a positive delay when the API rate limited the request.
func (t *Telegram) post(ctx context.Context, body []byte) (time.Duration, error) {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var result sendResult
	decodeErr := json.Unmarshal(raw, &result)
	if resp.StatusCode == http.StatusTooManyRequests {
		wait := time.Duration(result.Parameters.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		if wait > maxRetryAfter {
			wait = maxRetryAfter
		}
		return wait, fmt.Errorf("telegram send rate limited: %s", strings.TrimSpace(result.Description))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr == nil && !result.OK {
		desc := strings.TrimSpace(result.Description)
		if desc == "" {
			desc = "unknown telegram error"
		}
		return 0, fmt.Errorf("telegram send failed: %s", desc)
	}
	return 0, nil
}

func (t *Telegram) render(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ""
	}
	if t.prefix != "" {
		message = "[" + t.prefix + "] " + message
	}
	if utf8.RuneCountInString(message) <= maxMessageRunes {
		return message
	}
	runes := []rune(message)
	return string(runes[:maxMessageRunes-1]) + "…"
}
