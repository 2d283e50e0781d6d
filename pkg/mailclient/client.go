/**
 * @description
 * Client for the external transactional mail API. The billing service only
 * ever calls Send and logs the result; delivery guarantees belong to the
 * provider.
 */
package mailclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the mail API.
type Client struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewClient creates a new mail API client.
func NewClient(baseURL, apiKey, from string) *Client {
	normalizedURL := strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL: normalizedURL,
		apiKey:  apiKey,
		from:    from,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Send delivers one message. The context bounds the request; the caller
// decides how long a send may take.
func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	if c.baseURL == "" {
		return fmt.Errorf("mail API base URL is not configured")
	}

	payload := sendRequest{
		From:    c.from,
		To:      to,
		Subject: subject,
		HTML:    html,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mail payload: %w", err)
	}

	url := fmt.Sprintf("%s/emails", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to mail API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail API returned error status %d", resp.StatusCode)
	}

	return nil
}
