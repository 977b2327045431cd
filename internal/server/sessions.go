package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/convoflow/engine/internal/records"
	"github.com/convoflow/engine/pkg/api"
)

var (
	ErrGetSession      = errors.New("failed to get session")
	ErrSessionNotFound = errors.New("session not found")
)

func (s *Server) getSession(c *gin.Context) {
	sessionID, ok := s.sessionParam(c)
	if !ok {
		return
	}

	cp, err := s.engine.Session(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrGetSession, err),
			Status: http.StatusInternalServerError,
		})
		return
	}
	if cp == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %s", ErrSessionNotFound, sessionID),
			Status: http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, api.SessionResponse{
		SessionID: cp.SessionID,
		Status:    cp.Status,
		Next:      cp.Next,
		State:     cp.State,
		Seq:       cp.Seq,
		CreatedAt: cp.CreatedAt,
	})
}

func (s *Server) getRecord(c *gin.Context) {
	sessionID, ok := s.sessionParam(c)
	if !ok {
		return
	}

	rec, err := s.engine.Record(c.Request.Context(), sessionID)
	if err == nil {
		c.JSON(http.StatusOK, rec)
		return
	}

	if errors.Is(err, records.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  err.Error(),
		Status: http.StatusInternalServerError,
	})
}
