package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shop-agent/backend/internal/intent"
	"github.com/shop-agent/backend/internal/shopifyql"
)

func testQuery() *shopifyql.Query {
	return &shopifyql.Query{
		Intent:     intent.SalesTrend,
		GraphQL:    `{ orders(first: 10) { edges { node { id } } } }`,
		Parameters: map[string]string{},
	}
}

func stubClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL})
	return client, server
}

func TestExecuteSendsCredentialAndQuery(t *testing.T) {
	var gotToken, gotPath string
	var gotBody map[string]string

	client, _ := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"data": {"orders": {"edges": [{"node": {"id": "gid://shopify/Order/1"}}]}}}`))
	})

	result, err := client.Execute(context.Background(), testQuery(), "test-store.myshopify.com", "shpat_secret")

	require.NoError(t, err)
	assert.Equal(t, "shpat_secret", gotToken)
	assert.Equal(t, "/admin/api/2023-10/graphql.json", gotPath)
	assert.Equal(t, testQuery().GraphQL, gotBody["query"])
	require.NotNil(t, result.Data.Orders)
	assert.Len(t, result.Data.Orders.Edges, 1)
}

func TestExecuteClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		kind      ErrorKind
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrorUnauthorized, false},
		{"forbidden", http.StatusForbidden, ErrorUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, ErrorRateLimited, true},
		{"bad request", http.StatusBadRequest, ErrorMalformed, false},
		{"unprocessable", http.StatusUnprocessableEntity, ErrorMalformed, false},
		{"server error", http.StatusInternalServerError, ErrorTransient, true},
		{"bad gateway", http.StatusBadGateway, ErrorTransient, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			_, err := client.Execute(context.Background(), testQuery(), "test-store.myshopify.com", "token")

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.kind, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.retryable, apiErr.Retryable())
		})
	}
}

func TestExecuteTreatsGraphQLErrorsAsMalformed(t *testing.T) {
	client, _ := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors": [{"message": "Field 'bogus' doesn't exist"}]}`))
	})

	_, err := client.Execute(context.Background(), testQuery(), "test-store.myshopify.com", "token")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorMalformed, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "bogus")
	assert.False(t, apiErr.Retryable())
}

func TestExecuteWrapsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.Execute(context.Background(), testQuery(), "test-store.myshopify.com", "token")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorTransient, apiErr.Kind)
	assert.True(t, apiErr.Retryable())
}

func TestExecuteOpensCircuitAfterRepeatedFailures(t *testing.T) {
	calls := 0
	client, _ := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	// FailureThreshold is 5; the sixth call must be rejected locally.
	for i := 0; i < 5; i++ {
		client.Execute(context.Background(), testQuery(), "test-store.myshopify.com", "token")
	}

	_, err := client.Execute(context.Background(), testQuery(), "test-store.myshopify.com", "token")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorTransient, apiErr.Kind)
	assert.Equal(t, 5, calls, "open circuit must not reach the provider")
}

func TestIsEmpty(t *testing.T) {
	var nilResult *QueryResult
	assert.True(t, nilResult.IsEmpty())

	assert.True(t, (&QueryResult{}).IsEmpty())

	assert.True(t, (&QueryResult{
		Data: ResultData{Orders: &OrderConnection{}},
	}).IsEmpty())

	assert.False(t, (&QueryResult{
		Data: ResultData{Orders: &OrderConnection{Edges: []OrderEdge{{Node: Order{ID: "1"}}}}},
	}).IsEmpty())
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Kind: ErrorRateLimited, Status: 429, Message: "rate limited by provider"}
	assert.Contains(t, err.Error(), "rate_limited")
	assert.Contains(t, err.Error(), "429")
}
