package agent

import (
	"fmt"

	"github.com/shop-agent/backend/internal/interpret"
)

// MaxQuestionLength is the inbound question size cap, enforced before the
// pipeline runs.
const MaxQuestionLength = 1000

// Question is the request-scoped input to one pipeline run. The access
// token is used for the single provider call and never stored or cached.
type Question struct {
	Text        string `json:"question"`
	StoreID     string `json:"store_id"`
	AccessToken string `json:"shop_access_token"`
}

// Answer is the final response. QueryUsed always names the query that
// produced it so every answer is traceable to its evidence.
type Answer struct {
	Text        string            `json:"answer"`
	Confidence  string            `json:"confidence"`
	QueryUsed   string            `json:"query_used"`
	DataSummary interpret.Summary `json:"data_summary"`
}

// Stage names the pipeline state a run was in when it finished or failed.
type Stage string

const (
	StageReceived    Stage = "received"
	StageClassified  Stage = "classified"
	StageSynthesized Stage = "synthesized"
	StageQueried     Stage = "queried"
	StageInterpreted Stage = "interpreted"
	StageDone        Stage = "done"
)

// Failure reasons surfaced to callers. The forwarder retries only the
// transient reason; everything else is deterministic.
const (
	ReasonUnclearIntent          = "unclear intent"
	ReasonInsufficientParameters = "insufficient parameters"
	ReasonAuthentication         = "authentication"
	ReasonTransient              = "transient"
	ReasonQueryRejected          = "query rejected"
	ReasonInvalidInput           = "invalid input"
)

type PipelineError struct {
	Stage     Stage
	Reason    string
	Retryable bool
	Err       error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline failed at %s (%s): %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("pipeline failed at %s: %s", e.Stage, e.Reason)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
