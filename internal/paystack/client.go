// Package paystack implements the payment gateway contract against the
// Paystack transaction API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
)

const DefaultBaseURL = "https://api.paystack.co"

type Client struct {
	baseURL   string
	secretKey string
	httpc     *http.Client
}

// NewClient creates a Paystack API client
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpc:     &http.Client{Timeout: 30 * time.Second},
	}
}

type initializeRequest struct {
	Email    string                 `json:"email"`
	Amount   int64                  `json:"amount"`
	Metadata models.GatewayMetadata `json:"metadata"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize creates a charge for the given amount in kobo. The returned
// reference identifies this attempt in every later verification.
func (c *Client) Initialize(ctx context.Context, email string, amount int64, metadata models.GatewayMetadata) (*service.InitializeResult, error) {
	body, err := json.Marshal(initializeRequest{Email: email, Amount: amount, Metadata: metadata})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initialize request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp initializeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode initialize response: %w", err)
	}
	if !resp.Status {
		return nil, fmt.Errorf("paystack initialize rejected: %s", resp.Message)
	}

	return &service.InitializeResult{
		Reference:        resp.Data.Reference,
		AuthorizationURL: resp.Data.AuthorizationURL,
		AccessCode:       resp.Data.AccessCode,
	}, nil
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		IPAddress string `json:"ip_address"`
	} `json:"data"`
}

// Verify fetches the outcome of a charge by reference.
func (c *Client) Verify(ctx context.Context, reference string) (*service.VerifyResult, error) {
	raw, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	var resp verifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if !resp.Status {
		return nil, fmt.Errorf("paystack verify rejected: %s", resp.Message)
	}

	return &service.VerifyResult{
		Status:    resp.Data.Status,
		Amount:    resp.Data.Amount,
		IPAddress: resp.Data.IPAddress,
		Raw:       raw,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read paystack response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paystack returned %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}
