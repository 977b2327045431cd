package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/convoflow/engine/internal/arbiter"
	"github.com/convoflow/engine/internal/engine"
	"github.com/convoflow/engine/pkg/api"
)

var (
	ErrInvalidJSON      = errors.New("invalid JSON payload")
	ErrInvalidSessionID = errors.New("valid session ID is required")
)

func (s *Server) handleMessage(c *gin.Context) {
	sessionID, ok := s.sessionParam(c)
	if !ok {
		return
	}

	var req api.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	input := req.Input
	if req.Text != "" {
		input = input.Merge(
			api.UserMessage(req.Text),
			api.Policies{api.Messages: api.MergeAppend},
		)
	}

	res, err := s.engine.Run(c.Request.Context(), sessionID, input)
	s.respondResult(c, sessionID, res, err)
}

func (s *Server) handleResume(c *gin.Context) {
	sessionID, ok := s.sessionParam(c)
	if !ok {
		return
	}

	res, err := s.engine.Resume(c.Request.Context(), sessionID)
	s.respondResult(c, sessionID, res, err)
}

// respondResult maps an engine result to the wire. Fatal flow failures
// still produced a result, so they return the failed payload; transient
// failures and contention map to retryable status codes
func (s *Server) respondResult(
	c *gin.Context, sessionID api.SessionID, res *api.Result, err error,
) {
	switch {
	case err == nil, res != nil && engine.IsFatal(err):
		c.JSON(http.StatusOK, toMessageResponse(res))

	case errors.Is(err, arbiter.ErrSessionBusy):
		c.JSON(http.StatusConflict, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %s", err.Error(), sessionID),
			Status: http.StatusConflict,
		})

	case errors.Is(err, engine.ErrNothingToResume):
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})

	case errors.Is(err, engine.ErrNodeExecutionFailed):
		c.JSON(http.StatusBadGateway, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusBadGateway,
		})

	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusInternalServerError,
		})
	}
}

func toMessageResponse(res *api.Result) api.MessageResponse {
	resp := api.MessageResponse{
		SessionID: res.SessionID,
		Status:    res.Status,
		Node:      res.Node,
		State:     res.State,
		Error:     res.Error,
	}
	if msg, ok := res.State.LastMessage("assistant"); ok {
		resp.Reply = msg.Content
	}
	return resp
}

func (s *Server) sessionParam(c *gin.Context) (api.SessionID, bool) {
	sessionID := api.SanitizeID(api.SessionID(c.Param("sessionID")))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  ErrInvalidSessionID.Error(),
			Status: http.StatusBadRequest,
		})
		return "", false
	}
	return sessionID, true
}
