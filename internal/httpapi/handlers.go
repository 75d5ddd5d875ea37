package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/engine"
)

type handler struct {
	exec   *engine.Executor
	logger *zap.Logger
}

// chat handles POST /v1/chat: streams Executor.Chat's Delta sequence
// back as SSE chunks shaped like OpenAI's chat.completion.chunk.
func (h *handler) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	requestID := uuid.NewString()
	intent, err := req.toIntent(requestID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	intent.Streaming = true

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	completionID := fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	writeChunk(c.Writer, ChatStreamChunk{
		ID: completionID, Object: "chat.completion.chunk", Created: created, Model: req.Model,
		Choices: []chatStreamChoice{{Index: 0, Delta: chatStreamDelta{Role: "assistant"}}},
	})
	c.Writer.Flush()

	deltas := h.exec.Chat(c.Request.Context(), intent)
	for d := range deltas {
		chunk := ChatStreamChunk{ID: completionID, Object: "chat.completion.chunk", Created: created, Model: req.Model}

		if d.Content != "" {
			chunk.Choices = []chatStreamChoice{{Index: 0, Delta: chatStreamDelta{Content: d.Content}}}
		}
		if d.Final {
			reason := "stop"
			if d.HasErr {
				reason = "error"
				chunk.Error = &chunkError{Kind: d.Err.String(), Message: d.Content}
			}
			if len(chunk.Choices) == 0 {
				chunk.Choices = []chatStreamChoice{{Index: 0}}
			}
			chunk.Choices[0].FinishReason = &reason
		}

		writeChunk(c.Writer, chunk)
		c.Writer.Flush()
	}

	io.WriteString(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// complete handles POST /v1/complete: the non-streaming counterpart.
func (h *handler) complete(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	requestID := uuid.NewString()
	intent, err := req.toIntent(requestID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	content, err := h.exec.Complete(c.Request.Context(), intent)
	if err != nil {
		h.logger.Warn("complete failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorBody(err.Error()))
		return
	}

	c.JSON(http.StatusOK, CompleteResponse{Content: content})
}

// status handles GET /v1/status: operation 3 of the upward interface.
func (h *handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.exec.Status())
}

// history handles GET /v1/history: a debug view over the executor's
// bounded recent-attempt ring buffer.
func (h *handler) history(c *gin.Context) {
	c.JSON(http.StatusOK, h.exec.History())
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

func writeChunk(w io.Writer, chunk ChatStreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func errorBody(message string) gin.H {
	return gin.H{"error": gin.H{"message": message, "type": "invalid_request_error"}}
}
