// Package printer is the HTTP client for the external thermal print server.
// The server owns the Bluetooth driver protocol; this side only posts
// rendered receipt text and checks device readiness.
package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the print server
type Client struct {
	baseURL    string
	device     string
	httpClient *http.Client
}

// NewClient creates a print server client
func NewClient(baseURL, device string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		device:  device,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Options control thermal printer formatting
type Options struct {
	CharacterSet string `json:"characterSet"`
	FontSize     string `json:"fontSize"`
	Alignment    string `json:"alignment"`
}

type printRequest struct {
	Text    string  `json:"text"`
	Printer string  `json:"printer"`
	Options Options `json:"options"`
}

// PrintResponse is the print server's reply
type PrintResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Printer   string `json:"printer"`
	Timestamp string `json:"timestamp"`
}

// Status reports device connectivity and readiness
type Status struct {
	Connected  bool   `json:"connected"`
	Printer    string `json:"printer"`
	Status     string `json:"status"`
	PaperLevel string `json:"paperLevel"`
	LastPrint  string `json:"lastPrint"`
}

// Print sends rendered receipt text to the print server
func (c *Client) Print(ctx context.Context, text string) (*PrintResponse, error) {
	payload := printRequest{
		Text:    text,
		Printer: c.device,
		Options: Options{
			CharacterSet: "UTF8",
			FontSize:     "small",
			Alignment:    "left",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal print request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/print", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("print server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("print server returned status %d", resp.StatusCode)
	}

	var result PrintResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode print response: %w", err)
	}
	return &result, nil
}

// Status checks the print server's device readiness
func (c *Client) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("print server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("print server returned status %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}
