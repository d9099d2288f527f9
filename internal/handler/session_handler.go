package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docmem/internal/pkg/response"
	"github.com/xxxsen/docmem/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Create(c *gin.Context) {
	session, err := h.sessions.Create()
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, session)
}
