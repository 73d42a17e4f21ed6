package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/agent"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxQuestionLength   int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed process-question bodies before the
// pipeline runs: question present and within the length cap, store id and
// access token present.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = agent.MaxQuestionLength
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost {
			contentType := c.Get("Content-Type")
			if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if !strings.Contains(c.Path(), "/process-question") {
			return c.Next()
		}

		var req agent.Question
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		question := strings.TrimSpace(req.Text)
		if question == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Question is required",
			})
		}
		if len(question) > cfg.MaxQuestionLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Question exceeds maximum length",
			})
		}
		if xssPattern.MatchString(question) {
			cfg.Logger.Warn("Rejected question with markup payload",
				zap.String("ip", c.IP()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid question content",
			})
		}

		if req.StoreID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "store_id is required",
			})
		}
		if req.AccessToken == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Shop access token is required",
			})
		}

		req.Text = sanitize(question)
		c.Locals("question", req)

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func sanitize(input string) string {
	return strings.ReplaceAll(input, "\x00", "")
}
