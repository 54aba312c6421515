// Package provider is the client for the external payment processor that
// holds deposit addresses and executes on-chain withdrawals.
package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"wtcoin/internal/api"
	"wtcoin/internal/logger"
	"wtcoin/internal/metrics"
)

// SuccessCode is the only response code the provider uses for success.
const SuccessCode = 10000

const (
	HeaderAppID     = "Appid"
	HeaderSign      = "Sign"
	HeaderTimestamp = "Timestamp"
)

type WithdrawalOrder struct {
	CoinID  int64  `json:"coinId"`
	Address string `json:"address"`
	OrderID string `json:"orderId"`
	Chain   string `json:"chain"`
	Amount  string `json:"amount"`
	Memo    string `json:"memo,omitempty"`
}

type DepositAddress struct {
	Address string `json:"address"`
	Memo    string `json:"memo"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	baseURL    string
	appID      string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

func New(baseURL, appID, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		appID:   appID,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Sign is hex(HMAC-SHA256(secret, appID + timestamp + body)). Outbound
// requests and inbound webhooks use the same scheme.
func Sign(secret, appID, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(appID))
	h.Write([]byte(timestamp))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) SubmitWithdrawal(ctx context.Context, order WithdrawalOrder) (string, error) {
	var data struct {
		RecordID string `json:"recordId"`
	}
	if err := c.call(ctx, "applyAppWithdrawToNetwork", order, &data); err != nil {
		return "", err
	}
	if data.RecordID == "" {
		return "", fmt.Errorf("%w: provider returned no record id for order %s", api.ErrExternalService, order.OrderID)
	}
	return data.RecordID, nil
}

func (c *Client) CreateDepositAddress(ctx context.Context, referenceID, chain string) (*DepositAddress, error) {
	req := map[string]string{"referenceId": referenceID, "chain": chain}
	addr := &DepositAddress{}
	if err := c.call(ctx, "getOrCreateAppDepositAddress", req, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func (c *Client) call(ctx context.Context, operation string, payload, out interface{}) error {
	start := time.Now()
	err := c.do(ctx, operation, payload, out)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordProviderCall(operation, outcome, time.Since(start).Seconds())
	return err
}

func (c *Client) do(ctx context.Context, operation string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+operation, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}

	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAppID, c.appID)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSign, Sign(c.secret, c.appID, ts, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", api.ErrExternalService, operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", api.ErrExternalService, operation, err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Warn("provider returned non-OK status", "operation", operation, "status", resp.StatusCode)
		return fmt.Errorf("%w: %s: http status %d", api.ErrExternalService, operation, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", api.ErrExternalService, operation, err)
	}
	if env.Code != SuccessCode {
		logger.Warn("provider rejected request", "operation", operation, "code", env.Code, "msg", env.Msg)
		return fmt.Errorf("%w: %s: code %d: %s", api.ErrExternalService, operation, env.Code, env.Msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: %s: decode data: %v", api.ErrExternalService, operation, err)
		}
	}
	return nil
}
