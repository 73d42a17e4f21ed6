package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shop_agent_question_duration_seconds",
			Help:    "Question processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent"},
	)

	QuestionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_agent_question_total",
			Help: "Total number of questions processed",
		},
		[]string{"status"},
	)

	IntentClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_agent_intent_classified_total",
			Help: "Questions by classified intent",
		},
		[]string{"intent"},
	)

	ClassifierScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shop_agent_classifier_score",
			Help:    "Raw classifier confidence per question",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	AnswerConfidence = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_agent_answer_confidence_total",
			Help: "Answers by confidence level",
		},
		[]string{"level"},
	)

	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_agent_provider_errors_total",
			Help: "Query-API provider errors by kind",
		},
		[]string{"kind"},
	)

	PipelineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_agent_pipeline_failures_total",
			Help: "Pipeline failures by stage",
		},
		[]string{"stage"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_agent_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	ForwardAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shop_agent_forward_attempts",
			Help:    "Attempts made per forwarded question",
			Buckets: prometheus.LinearBuckets(1, 1, 5),
		},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shop_agent_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

func Init() {
	prometheus.MustRegister(QuestionDuration)
	prometheus.MustRegister(QuestionTotal)
	prometheus.MustRegister(IntentClassified)
	prometheus.MustRegister(ClassifierScore)
	prometheus.MustRegister(AnswerConfidence)
	prometheus.MustRegister(ProviderErrors)
	prometheus.MustRegister(PipelineFailures)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(ForwardAttempts)
	prometheus.MustRegister(RateLimited)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
