package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/models"
)

func TestInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))

		var body struct {
			Email    string                 `json:"email"`
			Amount   int64                  `json:"amount"`
			Metadata models.GatewayMetadata `json:"metadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body.Email)
		assert.Equal(t, int64(15750), body.Amount)
		assert.Len(t, body.Metadata.CustomFields, 3)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Authorization URL created",
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code": "abc123",
				"reference": "ref-xyz"
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_secret")
	order := &models.Order{ID: "ord-1", ResellerAmount: 15750, Items: []models.OrderLineItem{{ItemName: "chair", Quantity: 2}}}

	init, err := client.Initialize(context.Background(), "ada@example.com", 15750, order.Metadata())
	require.NoError(t, err)
	assert.Equal(t, "ref-xyz", init.Reference)
	assert.Equal(t, "https://checkout.paystack.com/abc123", init.AuthorizationURL)
	assert.Equal(t, "abc123", init.AccessCode)
}

func TestInitializeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": false, "message": "Invalid key"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key")
	_, err := client.Initialize(context.Background(), "ada@example.com", 1000, models.GatewayMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid key")
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/ref-xyz", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"status": "success",
				"amount": 15750,
				"ip_address": "102.89.1.1"
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_secret")

	verify, err := client.Verify(context.Background(), "ref-xyz")
	require.NoError(t, err)
	assert.Equal(t, "success", verify.Status)
	assert.Equal(t, int64(15750), verify.Amount)
	assert.Equal(t, "102.89.1.1", verify.IPAddress)
	assert.NotEmpty(t, verify.Raw)
}

func TestVerifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_secret")
	_, err := client.Verify(context.Background(), "ref-xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
