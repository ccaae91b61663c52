// Package custody moves token balances through the external custody
// service that actually holds funds. The ledger records positions; custody
// settles them.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Client is an HTTP client for the custody service's transfer API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type transferRequest struct {
	Asset     string `json:"asset"`
	User      string `json:"user"`
	Amount    int64  `json:"amount"`
	Direction string `json:"direction"`
}

// TransferIn pulls amount of asset from the user's custody balance into
// the protocol's pool.
func (c *Client) TransferIn(ctx context.Context, asset string, from common.Address, amount int64) error {
	return c.post(ctx, transferRequest{
		Asset:     asset,
		User:      from.Hex(),
		Amount:    amount,
		Direction: "in",
	})
}

// TransferOut pushes amount of asset from the pool to the user.
func (c *Client) TransferOut(ctx context.Context, asset string, to common.Address, amount int64) error {
	return c.post(ctx, transferRequest{
		Asset:     asset,
		User:      to.Hex(),
		Amount:    amount,
		Direction: "out",
	})
}

func (c *Client) post(ctx context.Context, tr transferRequest) error {
	body, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("custody request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("custody rejected transfer: status=%d body=%s", resp.StatusCode, msg)
	}
	return nil
}
