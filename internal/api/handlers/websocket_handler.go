package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/agent"
	"github.com/shop-agent/backend/pkg/logger"
)

// WebSocketHandler streams an answer back word by word, the way the chat
// UI consumes it, followed by a terminal frame with confidence and the
// query evidence.
type WebSocketHandler struct {
	pipeline QuestionAnswerer
}

func NewWebSocketHandler(pipeline QuestionAnswerer) *WebSocketHandler {
	return &WebSocketHandler{pipeline: pipeline}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type        string `json:"type"`
			Question    string `json:"question"`
			StoreID     string `json:"store_id"`
			AccessToken string `json:"shop_access_token"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "question" {
			continue
		}

		question := agent.Question{
			Text:        msg.Question,
			StoreID:     msg.StoreID,
			AccessToken: msg.AccessToken,
		}

		if err := h.streamAnswer(c, question); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			h.sendError(c, "Failed to process question")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, question agent.Question) error {
	h.sendFrame(c, "status", "Looking at your store data...")

	answer, err := h.pipeline.Answer(context.Background(), question)
	if err != nil {
		return err
	}

	words := splitIntoWords(answer.Text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := h.sendFrame(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":         "complete",
		"confidence":   answer.Confidence,
		"query_used":   answer.QueryUsed,
		"data_summary": answer.DataSummary,
	})
}

func (h *WebSocketHandler) sendFrame(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
