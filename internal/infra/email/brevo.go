// Package email delivers digests through the Brevo transactional email API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"medirate_alerts/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

const (
	sendPath       = "/smtp/email"
	defaultTimeout = 30 * time.Second
	// maxErrorBody caps how much of a rejected response ends up in the error.
	maxErrorBody = 512
)

// Contact is a sender or recipient address.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type sendRequest struct {
	Sender      Contact   `json:"sender"`
	To          []Contact `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// BrevoGateway implements notification.Gateway.
type BrevoGateway struct {
	baseURL string
	apiKey  string
	sender  Contact
	http    *http.Client
	log     *logrus.Entry
}

var _ notification.Gateway = (*BrevoGateway)(nil)

func NewBrevoGateway(baseURL, apiKey string, sender Contact, log *logrus.Entry) *BrevoGateway {
	return &BrevoGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		sender:  sender,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

// Send posts one digest. Any non-2xx status is an error carrying the response body.
func (g *BrevoGateway) Send(ctx context.Context, msg notification.Message) error {
	body, err := json.Marshal(sendRequest{
		Sender:      g.sender,
		To:          []Contact{{Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call brevo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("brevo rejected email: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out sendResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	g.log.WithFields(logrus.Fields{
		"to":         msg.To,
		"records":    msg.Records,
		"message_id": out.MessageID,
	}).Info("Digest email accepted")
	return nil
}
