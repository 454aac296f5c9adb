// Package messenger delivers guardian text messages through LINE.
//
// The destination address decides the delivery API: a LINE user ID ("U" followed by
// 32 hex characters) is pushed through the Messaging API with the channel access token;
// any other value is treated as a LINE Notify personal token.
package messenger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	userIDPrefix = "U"
	userIDLength = 33
)

// Route identifies the delivery API used for an address.
type Route string

const (
	RoutePush   Route = "push"
	RouteNotify Route = "notify"
)

// Messenger sends one text message to one destination address.
type Messenger interface {
	Send(ctx context.Context, to, text string) error
}

// RouteFor reports which delivery API an address is sent through.
func RouteFor(address string) Route {
	if strings.HasPrefix(address, userIDPrefix) && len(address) == userIDLength {
		return RoutePush
	}
	return RouteNotify
}

// Config configures the LINE client.
type Config struct {
	ChannelAccessToken string
	APIEndpoint        string
	NotifyURL          string
	Timeout            time.Duration
}

// LineMessenger implements Messenger with the LINE Messaging API SDK for push and
// plain HTTP for LINE Notify, which has no SDK.
type LineMessenger struct {
	cfg    Config
	client *http.Client
}

// NewLineMessenger constructs a LINE messenger.
func NewLineMessenger(cfg Config) *LineMessenger {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = "https://api.line.me"
	}
	if cfg.NotifyURL == "" {
		cfg.NotifyURL = "https://notify-api.line.me/api/notify"
	}
	return &LineMessenger{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

// Send delivers text to the address, choosing the API from the address shape.
func (m *LineMessenger) Send(ctx context.Context, to, text string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("line: empty destination")
	}
	if RouteFor(to) == RoutePush {
		return m.push(ctx, to, text)
	}
	return m.notify(ctx, to, text)
}

func (m *LineMessenger) push(ctx context.Context, to, text string) error {
	if m.cfg.ChannelAccessToken == "" {
		return fmt.Errorf("line push: channel access token not configured")
	}
	// WithContext mutates the client, so each send gets its own.
	api, err := messaging_api.NewMessagingApiAPI(m.cfg.ChannelAccessToken,
		messaging_api.WithEndpoint(m.cfg.APIEndpoint),
		messaging_api.WithHTTPClient(m.client))
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	_, err = api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: []messaging_api.MessageInterface{messaging_api.TextMessage{Text: text}},
	}, "")
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	return nil
}

func (m *LineMessenger) notify(ctx context.Context, token, text string) error {
	form := url.Values{}
	form.Set("message", text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.NotifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("line notify: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	return m.do(req, "line notify")
}

func (m *LineMessenger) do(req *http.Request, label string) error {
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", label, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
