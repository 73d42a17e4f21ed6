package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/agent"
	"github.com/shop-agent/backend/pkg/logger"
)

// QuestionAnswerer is what the handler needs from the pipeline.
type QuestionAnswerer interface {
	Answer(ctx context.Context, q agent.Question) (*agent.Answer, error)
}

type QuestionHandler struct {
	pipeline QuestionAnswerer
}

func NewQuestionHandler(pipeline QuestionAnswerer) *QuestionHandler {
	return &QuestionHandler{pipeline: pipeline}
}

// HandleProcessQuestion runs one question through the agent pipeline.
// Validation middleware has already checked the body shape and stashed
// the parsed question in locals.
func (h *QuestionHandler) HandleProcessQuestion(c *fiber.Ctx) error {
	question, ok := c.Locals("question").(agent.Question)
	if !ok {
		var req agent.Question
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		question = req
	}

	answer, err := h.pipeline.Answer(c.Context(), question)
	if err != nil {
		return writePipelineError(c, err)
	}

	return c.JSON(answer)
}

// writePipelineError maps the failing stage onto the response contract:
// 400 for questions the pipeline cannot act on, 401 for credential
// failures, 500 for provider/transient trouble.
func writePipelineError(c *fiber.Ctx, err error) error {
	var pipeErr *agent.PipelineError
	if !errors.As(err, &pipeErr) {
		logger.Error("Failed to process question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question",
		})
	}

	switch pipeErr.Reason {
	case agent.ReasonUnclearIntent:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "I could not tell what you are asking about. Try naming what you want to know, like sales, inventory, or customers.",
		})
	case agent.ReasonInsufficientParameters:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "I need more detail to answer that. For projections, include a time range such as \"in the next 30 days\".",
		})
	case agent.ReasonInvalidInput:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is missing or too long",
		})
	case agent.ReasonAuthentication:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Store authentication failed. Please reconnect your store.",
		})
	default:
		logger.Error("Pipeline failure",
			zap.String("stage", string(pipeErr.Stage)),
			zap.String("reason", pipeErr.Reason),
			zap.Error(pipeErr.Err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question. Please try again.",
		})
	}
}
