package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// upgrader mirrors the teacher's websocket handler: generous buffers,
// origin checking left to the reverse proxy in front of prred rather
// than enforced here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// chatWS handles GET /v1/chat/ws: an editor-plugin-friendly streaming
// transport alongside the SSE one. Unlike the teacher's Hub (a
// multi-client pub/sub broadcaster for a shared chat room — PRRE has no
// such concept, every connection is exactly one caller's one request),
// this is a single-connection request/response: the client sends one
// ChatRequest as its first text message, the server streams
// ChatStreamChunk frames back, and the connection closes after the
// terminal chunk.
func (h *handler) chatWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return
	}

	var req ChatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = conn.WriteJSON(errorBody(err.Error()))
		return
	}

	requestID := uuid.NewString()
	intent, err := req.toIntent(requestID)
	if err != nil {
		_ = conn.WriteJSON(errorBody(err.Error()))
		return
	}
	intent.Streaming = true

	completionID := "chatcmpl-" + requestID
	created := time.Now().Unix()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

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

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(chunk); err != nil {
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
