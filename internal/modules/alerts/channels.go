package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/aristath/playbook/internal/config"
)

// Channel delivers a fired alert over one medium. Send must honour the
// context deadline; the dispatcher applies the per-channel timeout.
type Channel interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// BuildChannels constructs the channels that have endpoints configured,
// keyed by name.
func BuildChannels(cfg config.Channels) map[string]Channel {
	channels := make(map[string]Channel)
	if cfg.SMTPHost != "" && cfg.EmailTo != "" {
		channels["email"] = &EmailChannel{cfg: cfg}
	}
	if cfg.WebhookURL != "" {
		channels["webhook"] = &WebhookChannel{url: cfg.WebhookURL, client: &http.Client{}}
	}
	if cfg.BotAPIURL != "" && cfg.BotChatID != "" {
		channels["bot"] = &BotChannel{cfg: cfg, client: &http.Client{}}
	}
	return channels
}

func subject(event Event) string {
	kind := "Trigger"
	if event.Invalidator {
		kind = "Invalidator"
	}
	return fmt.Sprintf("[%s] %s fired for %s", kind, event.TriggerID, event.Symbol)
}

func body(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", event.ReasonEN, event.ReasonCN)
	fmt.Fprintf(&b, "Card: %s\nSymbol: %s\nFired: %s\n", event.CardID, event.Symbol, event.FiredAt)
	if event.Price > 0 {
		fmt.Fprintf(&b, "Price: %.2f\n", event.Price)
	}
	return b.String()
}

// EmailChannel sends alerts over plain SMTP.
type EmailChannel struct {
	cfg config.Channels
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, event Event) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		c.cfg.EmailFrom, c.cfg.EmailTo, subject(event), body(event))

	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPHost, c.cfg.SMTPPort)

	// net/smtp has no context support; run the send aside and race the
	// deadline so a stuck server cannot stall the fan-out.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, nil, c.cfg.EmailFrom,
			strings.Split(c.cfg.EmailTo, ","), []byte(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WebhookChannel posts a slack-compatible payload to a configured URL.
type WebhookChannel struct {
	url    string
	client *http.Client
}

type webhookField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type webhookAttachment struct {
	Color  string         `json:"color"`
	Fields []webhookField `json:"fields"`
}

type webhookMessage struct {
	Text        string              `json:"text"`
	Attachments []webhookAttachment `json:"attachments,omitempty"`
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, event Event) error {
	color := "good"
	if event.Invalidator {
		color = "danger"
	}

	payload := webhookMessage{
		Text: subject(event),
		Attachments: []webhookAttachment{{
			Color: color,
			Fields: []webhookField{
				{Title: "Symbol", Value: event.Symbol, Short: true},
				{Title: "Price", Value: fmt.Sprintf("%.2f", event.Price), Short: true},
				{Title: "Reason", Value: event.ReasonEN, Short: false},
				{Title: "原因", Value: event.ReasonCN, Short: false},
			},
		}},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// BotChannel sends alerts through a Telegram-style bot API.
type BotChannel struct {
	cfg    config.Channels
	client *http.Client
}

type botMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func (c *BotChannel) Name() string { return "bot" }

func (c *BotChannel) Send(ctx context.Context, event Event) error {
	url := strings.TrimRight(c.cfg.BotAPIURL, "/")
	if c.cfg.BotToken != "" {
		url = fmt.Sprintf("%s/bot%s/sendMessage", url, c.cfg.BotToken)
	} else {
		url += "/sendMessage"
	}

	data, err := json.Marshal(botMessage{
		ChatID:                c.cfg.BotChatID,
		Text:                  subject(event) + "\n\n" + body(event),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal bot payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build bot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bot request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed botResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode bot response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("bot API rejected message: %s", parsed.Description)
	}
	return nil
}
