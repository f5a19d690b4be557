package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SecretHeader carries the webhook secret on every update Telegram delivers.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const sendTimeout = 15 * time.Second

// Client wraps the bot API. Send reports failure instead of masking it so
// callers only persist "sent" after an acknowledged delivery.
type Client struct {
	Bot *tgbotapi.BotAPI
}

func New(token string) (*Client, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint)
}

// NewWithEndpoint points the client at a different Bot API server
// (self-hosted api server, tests).
func NewWithEndpoint(token, endpoint string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: sendTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	return &Client{Bot: bot}, nil
}

func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return nil
}

// SetWebhook registers url for updates, restricted to messages and signed
// with secret.
func (c *Client) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = `["message"]`

	if _, err := c.Bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook is required before long polling: getUpdates fails while a
// webhook is registered.
func (c *Client) DeleteWebhook() error {
	if _, err := c.Bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	return nil
}

func (c *Client) Username() string {
	return c.Bot.Self.UserName
}
