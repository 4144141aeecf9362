package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// TelegramConfig configures the Telegram Bot API channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token" yaml:"token"`
	ChatID  string `json:"chat_id" yaml:"chat_id"`
}

// Telegram sends digests through the Bot API sendMessage endpoint.
type Telegram struct {
	client *resty.Client
	chatID string
}

// NewTelegram builds a Telegram notifier for the given bot token and chat.
func NewTelegram(cfg TelegramConfig) *Telegram {
	client := resty.New()
	client.SetBaseURL(fmt.Sprintf("https://api.telegram.org/bot%s", cfg.Token))
	client.SetTimeout(15 * time.Second)
	return &Telegram{client: client, chatID: cfg.ChatID}
}

func (t *Telegram) Name() string { return "telegram" }

// Send posts the message with the title rendered bold.
func (t *Telegram) Send(title, body string) error {
	text := body
	if title != "" {
		text = "<b>" + title + "</b>\n" + body
	}
	resp, err := t.client.R().
		SetFormData(map[string]string{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post("/sendMessage")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("telegram sendMessage: %s: %s", resp.Status(), resp.String())
	}
	return nil
}
