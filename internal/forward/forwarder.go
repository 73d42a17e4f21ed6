// Package forward is the client side of the pipeline: it invokes the
// process-question endpoint from another service with per-attempt
// timeouts, bounded exponential backoff and an overall deadline. Only
// transient failures are retried; deterministic ones surface after a
// single attempt.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/agent"
	"github.com/shop-agent/backend/internal/metrics"
	"github.com/shop-agent/backend/pkg/logger"
	"github.com/shop-agent/backend/pkg/retry"
)

// ErrTransient marks attempt failures the retry loop is allowed to repeat.
var ErrTransient = errors.New("transient pipeline failure")

type ErrorKind string

const (
	KindExhausted    ErrorKind = "exhausted"
	KindNonRetryable ErrorKind = "non_retryable"
)

type ForwardError struct {
	Kind     ErrorKind
	Attempts int
	Reason   string
	Err      error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward failed (%s) after %d attempt(s): %s", e.Kind, e.Attempts, e.Reason)
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}

// Config is supplied by the calling service; nothing here is hard-coded
// or read from process-wide state.
type Config struct {
	BaseURL           string
	PerAttemptTimeout time.Duration
	MaxAttempts       int
	BaseDelay         time.Duration
	JitterFraction    float64
}

func (cfg *Config) normalize() {
	if cfg.PerAttemptTimeout == 0 {
		cfg.PerAttemptTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
}

type Forwarder struct {
	cfg        Config
	httpClient *http.Client
}

func NewForwarder(cfg Config) *Forwarder {
	cfg.normalize()
	return &Forwarder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.PerAttemptTimeout},
	}
}

// overallDeadline bounds the whole retry loop: every attempt at its full
// timeout plus the worst-case backoff between attempts.
func (f *Forwarder) overallDeadline() time.Duration {
	total := time.Duration(f.cfg.MaxAttempts) * f.cfg.PerAttemptTimeout
	delay := f.cfg.BaseDelay
	for i := 1; i < f.cfg.MaxAttempts; i++ {
		total += delay
		delay *= 2
	}
	return total + time.Duration(float64(total)*f.cfg.JitterFraction)
}

// Forward submits the question to the remote pipeline, retrying only
// transient failures with base*2^n backoff.
func (f *Forwarder) Forward(ctx context.Context, q agent.Question) (*agent.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, f.overallDeadline())
	defer cancel()

	retryCfg := retry.Config{
		MaxAttempts:     f.cfg.MaxAttempts,
		InitialDelay:    f.cfg.BaseDelay,
		Multiplier:      2.0,
		JitterFraction:  f.cfg.JitterFraction,
		RetryableErrors: []error{ErrTransient},
		Logger:          logger.GetLogger(),
	}

	var (
		answer   *agent.Answer
		attempts int
	)

	err := retry.Do(ctx, retryCfg, func() error {
		attempts++
		result, attemptErr := f.attempt(ctx, q)
		if attemptErr != nil {
			return attemptErr
		}
		answer = result
		return nil
	})

	metrics.ForwardAttempts.Observe(float64(attempts))

	if err == nil {
		return answer, nil
	}

	kind := KindNonRetryable
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindExhausted
	}

	logger.Warn("Forwarding failed",
		zap.String("kind", string(kind)),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)

	return nil, &ForwardError{
		Kind:     kind,
		Attempts: attempts,
		Reason:   err.Error(),
		Err:      err,
	}
}

func (f *Forwarder) attempt(ctx context.Context, q agent.Question) (*agent.Answer, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.PerAttemptTimeout)
	defer cancel()

	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode question: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, f.cfg.BaseURL+"/api/v1/process-question", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var answer agent.Answer
		if err := json.Unmarshal(body, &answer); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		return &answer, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", ErrTransient, errorReason(body, resp.StatusCode))
	default:
		// 400/401/422: deterministic, retrying cannot help.
		return nil, errors.New(errorReason(body, resp.StatusCode))
	}
}

func errorReason(body []byte, status int) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return fmt.Sprintf("pipeline returned status %d", status)
}
