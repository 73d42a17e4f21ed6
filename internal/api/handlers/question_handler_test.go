package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shop-agent/backend/internal/agent"
	"github.com/shop-agent/backend/internal/middleware/validation"
)

type fakePipeline struct {
	answer *agent.Answer
	err    error
	got    agent.Question
	calls  int
}

func (f *fakePipeline) Answer(ctx context.Context, q agent.Question) (*agent.Answer, error) {
	f.calls++
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func newTestApp(pipeline *fakePipeline) *fiber.App {
	app := fiber.New()
	app.Use(validation.Middleware(validation.Config{}))
	app.Post("/api/v1/process-question", NewQuestionHandler(pipeline).HandleProcessQuestion)
	return app
}

func postQuestion(t *testing.T, app *fiber.App, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-question", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp, decoded
}

func validBody() string {
	return `{"question": "What were my top 5 selling products last week?", "store_id": "test-store.myshopify.com", "shop_access_token": "shpat_secret"}`
}

func TestProcessQuestionReturnsAnswer(t *testing.T) {
	pipeline := &fakePipeline{answer: &agent.Answer{
		Text:       "Your top seller was Blue Hoodie with 50 units.",
		Confidence: "high",
		QueryUsed:  "{ orders }",
	}}

	app := newTestApp(pipeline)
	resp, body := postQuestion(t, app, validBody())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Your top seller was Blue Hoodie with 50 units.", body["answer"])
	assert.Equal(t, "high", body["confidence"])
	assert.Equal(t, "{ orders }", body["query_used"])
	assert.Equal(t, 1, pipeline.calls)
	assert.Equal(t, "test-store.myshopify.com", pipeline.got.StoreID)
}

func TestProcessQuestionRejectsMissingToken(t *testing.T) {
	pipeline := &fakePipeline{}
	app := newTestApp(pipeline)

	resp, body := postQuestion(t, app, `{"question": "sales last week", "store_id": "s"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Shop access token is required", body["error"])
	assert.Equal(t, 0, pipeline.calls)
}

func TestProcessQuestionRejectsMissingStoreID(t *testing.T) {
	app := newTestApp(&fakePipeline{})

	resp, body := postQuestion(t, app, `{"question": "sales last week", "shop_access_token": "tok"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "store_id is required", body["error"])
}

func TestProcessQuestionRejectsEmptyQuestion(t *testing.T) {
	app := newTestApp(&fakePipeline{})

	resp, body := postQuestion(t, app, `{"question": "   ", "store_id": "s", "shop_access_token": "tok"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Question is required", body["error"])
}

func TestProcessQuestionRejectsOversizedQuestion(t *testing.T) {
	app := newTestApp(&fakePipeline{})

	long := strings.Repeat("a", agent.MaxQuestionLength+1)
	resp, body := postQuestion(t, app, `{"question": "`+long+`", "store_id": "s", "shop_access_token": "tok"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Question exceeds maximum length", body["error"])
}

func TestProcessQuestionRejectsMarkup(t *testing.T) {
	app := newTestApp(&fakePipeline{})

	resp, body := postQuestion(t, app, `{"question": "<script>alert(1)</script>", "store_id": "s", "shop_access_token": "tok"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid question content", body["error"])
}

func TestProcessQuestionRejectsInvalidJSON(t *testing.T) {
	app := newTestApp(&fakePipeline{})

	resp, body := postQuestion(t, app, `{"question": `)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON format", body["error"])
}

func TestProcessQuestionMapsUnclearIntent(t *testing.T) {
	pipeline := &fakePipeline{err: &agent.PipelineError{
		Stage:  agent.StageClassified,
		Reason: agent.ReasonUnclearIntent,
	}}
	app := newTestApp(pipeline)

	resp, body := postQuestion(t, app, validBody())

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "sales, inventory, or customers")
}

func TestProcessQuestionMapsInsufficientParameters(t *testing.T) {
	pipeline := &fakePipeline{err: &agent.PipelineError{
		Stage:  agent.StageSynthesized,
		Reason: agent.ReasonInsufficientParameters,
	}}
	app := newTestApp(pipeline)

	resp, body := postQuestion(t, app, validBody())

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "time range")
}

func TestProcessQuestionMapsAuthenticationFailure(t *testing.T) {
	pipeline := &fakePipeline{err: &agent.PipelineError{
		Stage:  agent.StageQueried,
		Reason: agent.ReasonAuthentication,
	}}
	app := newTestApp(pipeline)

	resp, body := postQuestion(t, app, validBody())

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body["error"], "reconnect your store")
}

func TestProcessQuestionMapsTransientFailure(t *testing.T) {
	pipeline := &fakePipeline{err: &agent.PipelineError{
		Stage:     agent.StageQueried,
		Reason:    agent.ReasonTransient,
		Retryable: true,
	}}
	app := newTestApp(pipeline)

	resp, body := postQuestion(t, app, validBody())

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["error"], "try again")
}

func TestProcessQuestionMapsUnexpectedError(t *testing.T) {
	pipeline := &fakePipeline{err: errors.New("boom")}
	app := newTestApp(pipeline)

	resp, _ := postQuestion(t, app, validBody())

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestProcessQuestionRejectsWrongContentType(t *testing.T) {
	app := newTestApp(&fakePipeline{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-question", bytes.NewReader([]byte(validBody())))
	req.Header.Set("Content-Type", "text/plain")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}
