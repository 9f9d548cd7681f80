package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antigravity/feed-gateway/internal/settings"
)

// TelegramSender posts alerts through the Bot API sendMessage method. The bot
// token and chat id come from the current settings snapshot on every send.
type TelegramSender struct {
	apiBase  string
	settings *settings.Provider
	client   *http.Client
}

// NewTelegramSender builds a sender against apiBase (https://api.telegram.org
// in production).
func NewTelegramSender(apiBase string, provider *settings.Provider) *TelegramSender {
	return &TelegramSender{
		apiBase:  strings.TrimRight(apiBase, "/"),
		settings: provider,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramSender) Channel() string { return "telegram" }

// Send delivers e as an HTML formatted message.
func (t *TelegramSender) Send(ctx context.Context, e Event) error {
	snap := t.settings.Current()
	if !snap.TelegramConfigured() {
		return ErrNotConfigured
	}

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, snap.TelegramBotToken)

	params := url.Values{}
	params.Add("chat_id", snap.TelegramChatID)
	params.Add("text", FormatMessage(e))
	params.Add("parse_mode", "HTML")
	params.Add("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// url.Error 会带上包含 token 的地址
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram API error: %s, status code: %d", string(body), resp.StatusCode)
	}

	var response struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("telegram API returned not OK status: %s", response.Description)
	}
	return nil
}

// FormatMessage renders the alert body. Every caller supplied value is escaped.
func FormatMessage(e Event) string {
	var b strings.Builder
	b.WriteString("<b>🚨 Security alert</b>\n\n")
	line(&b, "Reason", e.Reason)
	line(&b, "Key", e.KeyName)
	line(&b, "Owner", e.OwnerName)
	line(&b, "Contact", e.OwnerContact)
	line(&b, "IP", e.IP)
	line(&b, "Country", e.Country)
	domain := e.Domain
	if domain == "" {
		domain = "-"
	}
	line(&b, "Domain", domain)
	line(&b, "Time", e.Time.Format("2006-01-02 15:04:05 MST"))
	return strings.TrimRight(b.String(), "\n")
}

func line(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<b>%s:</b> %s\n", label, html.EscapeString(value))
}
