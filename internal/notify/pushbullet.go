package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const pushbulletURL = "https://api.pushbullet.com/v2/pushes"

// PushbulletSender sends a push notification via Pushbullet
type PushbulletSender struct {
	token      string
	httpClient *http.Client
}

func NewPushbulletSender(token string) *PushbulletSender {
	return &PushbulletSender{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PushbulletSender) Name() string { return "pushbullet" }

func (p *PushbulletSender) Send(ctx context.Context, message, title string) error {
	payload, err := json.Marshal(map[string]string{
		"type":  "note",
		"title": title,
		"body":  message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushbulletURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Access-Token", p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pushbullet push failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushbullet returned status %d", resp.StatusCode)
	}
	return nil
}
