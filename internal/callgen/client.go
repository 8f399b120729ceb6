package callgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/types"
	"github.com/google/uuid"
)

// Accepted is the server's answer to a submitted call
type Accepted struct {
	CallID string           `json:"callId"`
	Tier   types.Tier       `json:"tier"`
	Status types.CallStatus `json:"status"`
}

// Client submits calls to a running switchboard server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL
// (e.g. "http://localhost:8080")
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type submitRequest struct {
	Tier   types.Tier `json:"tier"`
	CallID string     `json:"callId"`
}

// SubmitCall posts a new call with a generated ID to /calls
func (c *Client) SubmitCall(ctx context.Context, tier types.Tier) (Accepted, error) {
	body, err := json.Marshal(submitRequest{
		Tier:   tier,
		CallID: uuid.New().String(),
	})
	if err != nil {
		return Accepted{}, fmt.Errorf("marshal submit request: %w", err)
	}

	url := c.baseURL + "/calls"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Accepted{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Accepted{}, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		return Accepted{}, fmt.Errorf("POST %s returned status %d: %s", url, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var accepted Accepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return Accepted{}, fmt.Errorf("decode submit response: %w", err)
	}
	return accepted, nil
}
