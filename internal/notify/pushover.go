package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// pushoverEndpoint is Pushover's single message-send API; there is no
// ecosystem Go client for it in the pack, so this channel speaks the
// HTTP form-POST contract directly.
const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// PushoverChannel sends notifications through Pushover, the channel
// spec's PUSHOVER_TOKEN/PUSHOVER_USER env vars name explicitly.
type PushoverChannel struct {
	token string
	user  string
	http  *http.Client
}

func NewPushoverChannel(token, user string) *PushoverChannel {
	return &PushoverChannel{
		token: token,
		user:  user,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PushoverChannel) Name() string { return "pushover" }

func (p *PushoverChannel) Send(ctx context.Context, n Notification) error {
	if p.token == "" || p.user == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.user)
	form.Set("title", n.Title)
	form.Set("message", n.Message)
	form.Set("priority", pushoverPriority(n.Severity))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushoverEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: pushover send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: pushover returned status %d", resp.StatusCode)
	}
	return nil
}

func pushoverPriority(s Severity) string {
	switch s {
	case SeverityCritical:
		return "1"
	case SeverityWarning:
		return "0"
	default:
		return "-1"
	}
}
