package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/shopifyql"
	"github.com/shop-agent/backend/pkg/circuitbreaker"
	"github.com/shop-agent/backend/pkg/logger"
)

type ErrorKind string

const (
	ErrorUnauthorized ErrorKind = "unauthorized"
	ErrorRateLimited  ErrorKind = "rate_limited"
	ErrorTransient    ErrorKind = "transient"
	ErrorMalformed    ErrorKind = "malformed"
	ErrorUnknown      ErrorKind = "unknown"
)

type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("shopify api error (%s, status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("shopify api error (%s): %s", e.Kind, e.Message)
}

// Retryable reports whether a repeat of the same request may succeed.
// Bad credentials and malformed queries are deterministic failures.
func (e *APIError) Retryable() bool {
	return e.Kind == ErrorRateLimited || e.Kind == ErrorTransient
}

type Config struct {
	APIVersion string
	Timeout    time.Duration
	// BaseURL overrides the per-store admin URL. Used against stub
	// providers in tests and local development.
	BaseURL string
}

type Client struct {
	httpClient *http.Client
	apiVersion string
	baseURL    string
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-10"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("shopify", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiVersion: cfg.APIVersion,
		baseURL:    cfg.BaseURL,
		cb:         cb,
	}
}

// Execute runs the query against the store's Admin GraphQL endpoint. The
// credential is used for this one request and never retained.
func (c *Client) Execute(ctx context.Context, query *shopifyql.Query, storeDomain, accessToken string) (*QueryResult, error) {
	payload, err := json.Marshal(map[string]string{"query": query.GraphQL})
	if err != nil {
		return nil, &APIError{Kind: ErrorMalformed, Message: fmt.Sprintf("encode query: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(storeDomain), bytes.NewReader(payload))
	if err != nil {
		return nil, &APIError{Kind: ErrorMalformed, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	var result *QueryResult

	cbErr := c.cb.Execute(ctx, func() error {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &APIError{Kind: ErrorTransient, Message: err.Error()}
		}
		defer resp.Body.Close()

		if apiErr := classifyStatus(resp.StatusCode); apiErr != nil {
			logger.Warn("Shopify API returned error status",
				zap.Int("status", resp.StatusCode),
				zap.String("kind", string(apiErr.Kind)),
				zap.String("store", storeDomain),
			)
			return apiErr
		}

		var decoded QueryResult
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return &APIError{Kind: ErrorUnknown, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
		}

		if len(decoded.Errors) > 0 {
			return &APIError{
				Kind:    ErrorMalformed,
				Status:  resp.StatusCode,
				Message: decoded.Errors[0].Message,
			}
		}

		result = &decoded
		return nil
	})

	if cbErr != nil {
		if cbErr == circuitbreaker.ErrCircuitOpen || cbErr == circuitbreaker.ErrTooManyRequests {
			return nil, &APIError{Kind: ErrorTransient, Message: cbErr.Error()}
		}
		return nil, cbErr
	}

	logger.Debug("Shopify query executed",
		zap.String("store", storeDomain),
		zap.String("intent", string(query.Intent)),
	)

	return result, nil
}

func (c *Client) endpoint(storeDomain string) string {
	base := c.baseURL
	if base == "" {
		base = fmt.Sprintf("https://%s", storeDomain)
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", base, c.apiVersion)
}

func classifyStatus(status int) *APIError {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &APIError{Kind: ErrorUnauthorized, Status: status, Message: "invalid or expired access token"}
	case status == http.StatusTooManyRequests:
		return &APIError{Kind: ErrorRateLimited, Status: status, Message: "rate limited by provider"}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &APIError{Kind: ErrorMalformed, Status: status, Message: "query rejected by provider"}
	case status >= 500:
		return &APIError{Kind: ErrorTransient, Status: status, Message: "provider unavailable"}
	default:
		return &APIError{Kind: ErrorUnknown, Status: status, Message: "unexpected provider response"}
	}
}
