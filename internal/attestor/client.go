package attestor

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// Client talks to a remote producer over its HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for baseURL, e.g. "http://attestor:8081".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Produce(ctx context.Context, roundID string, mt domain.MarketType, p Params) (domain.Attestation, error) {
	req := GenerateRequest{RoundID: roundID, MarketType: mt}
	if len(p.ChainHash) > 0 || len(p.CommunitySeeds) > 0 {
		req.Params = &WireParams{ChainHash: p.ChainHash, CommunitySeeds: p.CommunitySeeds}
	}
	var att domain.Attestation
	if err := c.do(ctx, http.MethodPost, "/generate_outcome", req, &att); err != nil {
		return domain.Attestation{}, fmt.Errorf("attestor/client: generate outcome %s: %w", roundID, err)
	}
	return att, nil
}

func (c *Client) UpdateStreak(ctx context.Context, wallet string, won bool) (uint32, error) {
	var resp struct {
		NewStreak uint32 `json:"new_streak"`
	}
	if err := c.do(ctx, http.MethodPost, "/update_streak", UpdateStreakRequest{Wallet: wallet, Won: won}, &resp); err != nil {
		return 0, fmt.Errorf("attestor/client: update streak: %w", err)
	}
	return resp.NewStreak, nil
}

// PublicKey fetches the producer's signing key from /health.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	var resp struct {
		PublicKey string `json:"public_key"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("attestor/client: health: %w", err)
	}
	return hex.DecodeString(resp.PublicKey)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		if eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, eb.Error)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ Source = (*Client)(nil)
