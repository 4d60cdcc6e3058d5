package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	bybitBaseURL    = "https://api.bybit.com"
	bybitRecvWindow = "5000"
)

// method -> REST path
var bybitPaths = map[string]string{
	MethodClosedPositions: "/v5/position/closed-pnl",
	MethodTransactionLog:  "/v5/account/transaction-log",
}

// BybitClient v5 REST client, HMAC-signed GET requests only
type BybitClient struct {
	apiKey    string
	secretKey string
	baseURL   string
	http      *http.Client
}

// NewBybitClient creates a Bybit v5 API client
func NewBybitClient(apiKey, secretKey string) *BybitClient {
	return &BybitClient{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   bybitBaseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the API host (testnet, tests)
func (c *BybitClient) SetBaseURL(base string) {
	c.baseURL = base
}

func (c *BybitClient) Name() string {
	return "bybit"
}

// Call fetches one page from a v5 endpoint
func (c *BybitClient) Call(ctx context.Context, method string, params Params) (*Page, error) {
	path, ok := bybitPaths[method]
	if !ok {
		return nil, NewAPIError(c.Name(), method, "method not supported")
	}

	query := url.Values{}
	query.Set("category", "linear")
	if v := params.String("category"); v != "" {
		query.Set("category", v)
	}
	if v := params.Int64("startTime"); v > 0 {
		query.Set("startTime", strconv.FormatInt(v, 10))
	}
	if v := params.Int64("endTime"); v > 0 {
		query.Set("endTime", strconv.FormatInt(v, 10))
	}
	if v := params.String("cursor"); v != "" {
		query.Set("cursor", v)
	}
	limit := params.Int64("limit")
	if limit <= 0 {
		limit = 50
	}
	query.Set("limit", strconv.FormatInt(limit, 10))
	if v := params.String("symbol"); v != "" {
		query.Set("symbol", v)
	}

	body, err := c.doRequest(ctx, path, query.Encode())
	if err != nil {
		return nil, err
	}

	var response struct {
		RetCode int                    `json:"retCode"`
		RetMsg  string                 `json:"retMsg"`
		Result  map[string]interface{} `json:"result"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, NewAPIError(c.Name(), method, "failed to decode response: %v", err)
	}
	if response.RetCode != 0 {
		return nil, NewAPIError(c.Name(), method, "retCode %d: %s", response.RetCode, response.RetMsg)
	}
	if response.Result == nil {
		return nil, NewAPIError(c.Name(), method, "response missing result")
	}

	return ParsePage(c.Name(), method, response.Result)
}

// doRequest performs a signed GET request.
// Signature payload per v5: timestamp + apiKey + recvWindow + queryString.
func (c *BybitClient) doRequest(ctx context.Context, path, rawQuery string) ([]byte, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + c.apiKey + bybitRecvWindow + rawQuery))
	signature := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+rawQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
