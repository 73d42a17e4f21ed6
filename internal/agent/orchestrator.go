package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/intent"
	"github.com/shop-agent/backend/internal/interpret"
	"github.com/shop-agent/backend/internal/metrics"
	"github.com/shop-agent/backend/internal/shopify"
	"github.com/shop-agent/backend/internal/shopifyql"
	"github.com/shop-agent/backend/pkg/logger"
)

// QueryExecutor is the boundary to the commerce data provider.
type QueryExecutor interface {
	Execute(ctx context.Context, query *shopifyql.Query, storeDomain, accessToken string) (*shopify.QueryResult, error)
}

// Orchestrator runs one question through classify, synthesize, query and
// interpret. A run is single-pass: no stage re-enters a prior one and no
// retries happen here (retry policy lives in the forwarder).
type Orchestrator struct {
	classifier  *intent.Classifier
	synthesizer *shopifyql.Synthesizer
	executor    QueryExecutor
	interpreter *interpret.Interpreter
}

func NewOrchestrator(classifier *intent.Classifier, synthesizer *shopifyql.Synthesizer, executor QueryExecutor, interpreter *interpret.Interpreter) *Orchestrator {
	return &Orchestrator{
		classifier:  classifier,
		synthesizer: synthesizer,
		executor:    executor,
		interpreter: interpreter,
	}
}

func (o *Orchestrator) Answer(ctx context.Context, q Question) (*Answer, error) {
	startTime := time.Now()
	questionID := uuid.New().String()

	log := logger.GetLogger().With(
		zap.String("question_id", questionID),
		zap.String("store", q.StoreID),
	)
	log.Info("Processing question", zap.Int("question_length", len(q.Text)))

	if q.Text == "" || len(q.Text) > MaxQuestionLength {
		return nil, o.fail(log, StageReceived, ReasonInvalidInput, false, nil)
	}

	classification := o.classifier.Classify(q.Text)
	metrics.IntentClassified.WithLabelValues(string(classification.Type)).Inc()
	metrics.ClassifierScore.Observe(classification.Confidence)
	log.Info("Intent classified",
		zap.String("intent", string(classification.Type)),
		zap.Float64("score", classification.Confidence),
	)

	if classification.Type == intent.Unknown {
		return nil, o.fail(log, StageClassified, ReasonUnclearIntent, false, nil)
	}

	query, err := o.synthesizer.Synthesize(classification)
	if err != nil {
		return nil, o.fail(log, StageSynthesized, ReasonInsufficientParameters, false, err)
	}
	log.Debug("Query synthesized", zap.String("intent", string(query.Intent)))

	result, err := o.executor.Execute(ctx, query, q.StoreID, q.AccessToken)
	if err != nil {
		var apiErr *shopify.APIError
		if errors.As(err, &apiErr) {
			metrics.ProviderErrors.WithLabelValues(string(apiErr.Kind)).Inc()
			switch apiErr.Kind {
			case shopify.ErrorUnauthorized:
				return nil, o.fail(log, StageQueried, ReasonAuthentication, false, err)
			case shopify.ErrorRateLimited, shopify.ErrorTransient:
				return nil, o.fail(log, StageQueried, ReasonTransient, true, err)
			default:
				return nil, o.fail(log, StageQueried, ReasonQueryRejected, false, err)
			}
		}
		return nil, o.fail(log, StageQueried, ReasonTransient, true, err)
	}

	interpreted := o.interpreter.Interpret(ctx, result, q.Text, query)

	metrics.AnswerConfidence.WithLabelValues(string(interpreted.Confidence)).Inc()
	metrics.QuestionTotal.WithLabelValues("success").Inc()
	metrics.QuestionDuration.WithLabelValues(string(query.Intent)).Observe(time.Since(startTime).Seconds())

	log.Info("Question answered",
		zap.String("intent", string(query.Intent)),
		zap.String("confidence", string(interpreted.Confidence)),
		zap.Duration("latency", time.Since(startTime)),
	)

	return &Answer{
		Text:        interpreted.Text,
		Confidence:  string(interpreted.Confidence),
		QueryUsed:   query.GraphQL,
		DataSummary: interpreted.Summary,
	}, nil
}

func (o *Orchestrator) fail(log *zap.Logger, stage Stage, reason string, retryable bool, err error) *PipelineError {
	metrics.QuestionTotal.WithLabelValues("failure").Inc()
	metrics.PipelineFailures.WithLabelValues(string(stage)).Inc()

	log.Warn("Pipeline failed",
		zap.String("stage", string(stage)),
		zap.String("reason", reason),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)

	return &PipelineError{Stage: stage, Reason: reason, Retryable: retryable, Err: err}
}
