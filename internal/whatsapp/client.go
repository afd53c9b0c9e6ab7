// Package whatsapp sends messages through the WhatsApp Business (Graph) API
// and declares the webhook payload types. Unlike the storage layer, this
// boundary fails loudly: a send that didn't happen is the caller's problem.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v18.0"
	sendTimeout    = 10 * time.Second
	readTimeout    = 5 * time.Second
)

// Client communicates with the Graph API for one business phone number.
type Client struct {
	token      string
	phoneID    string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client with the given access token and phone number ID.
func NewClient(token, phoneID string) *Client {
	return &Client{
		token:   token,
		phoneID: phoneID,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(token, phoneID, baseURL string) *Client {
	c := NewClient(token, phoneID)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// sendRequest is the JSON body for POST /{phoneID}/messages.
type sendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to,omitempty"`
	Type             string       `json:"type,omitempty"`
	Text             *TextContent `json:"text,omitempty"`
	Status           string       `json:"status,omitempty"`
	MessageID        string       `json:"message_id,omitempty"`
}

// SendText delivers a single text message to the recipient. Transport
// failures and non-2xx responses are returned as errors.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	body = strings.TrimSpace(body)
	if to == "" || body == "" {
		return fmt.Errorf("whatsapp: recipient and message are required")
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	return c.post(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &TextContent{Body: body},
	})
}

// MarkRead flags an inbound message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("whatsapp: message id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	return c.post(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
}

func (c *Client) post(ctx context.Context, payload sendRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
