package api

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/bdobrica/jarvis/internal/jarvis/observability"
	"github.com/bdobrica/jarvis/internal/jarvis/reply"
)

type messageRequest struct {
	Message string `json:"message"`
}

// handleNLP classifies a message without acting on it.
func (s *Server) handleNLP(c *gin.Context) {
	var req messageRequest
	if err := bindJSON(c, messageSchema, &req); err != nil {
		validationFailed(c, err)
		return
	}
	rec := s.cfg.Dispatcher.Recognize(c.Request.Context(), currentUser(c).ID, req.Message)
	c.JSON(http.StatusOK, rec)
}

// handleChat answers a message. Apart from validation failures it always
// responds 200 with a reply.
func (s *Server) handleChat(c *gin.Context) {
	var req messageRequest
	if err := bindJSON(c, messageSchema, &req); err != nil {
		validationFailed(c, err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			observability.WithTrace(c.Request.Context()).Error("chat: handler panic",
				"panic", r, "stack", string(debug.Stack()))
			c.JSON(http.StatusOK, gin.H{"reply": reply.Fallback()})
		}
	}()

	out := s.cfg.Dispatcher.Dispatch(c.Request.Context(), currentUser(c).ID, req.Message)
	c.JSON(http.StatusOK, gin.H{"reply": out.Reply})
}

func (s *Server) handleTranslate(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
		Lang string `json:"lang"`
	}
	if err := bindJSON(c, translateSchema, &req); err != nil {
		validationFailed(c, err)
		return
	}
	res := s.cfg.Translator.Translate(c.Request.Context(), req.Text, req.Lang)
	c.JSON(http.StatusOK, gin.H{"translation": res.Reply()})
}
