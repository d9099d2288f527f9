package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docmem/internal/pkg/errcode"
	"github.com/xxxsen/docmem/internal/pkg/response"
	"github.com/xxxsen/docmem/internal/service"
)

type QueryHandler struct {
	memories  *service.MemoryService
	assistant *service.AssistantService
}

func NewQueryHandler(memories *service.MemoryService, assistant *service.AssistantService) *QueryHandler {
	return &QueryHandler{memories: memories, assistant: assistant}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (h *QueryHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithErrno(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid", "invalid request")
		return
	}
	results := h.memories.SearchDocuments(c.Request.Context(), getScope(c), req.Query, req.TopK)
	response.Success(c, gin.H{
		"results": results,
		"context": h.memories.BuildContext(results),
	})
}

func (h *QueryHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithErrno(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid", "invalid request")
		return
	}
	answer, err := h.assistant.Ask(c.Request.Context(), getScope(c), req.Question, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}

func (h *QueryHandler) History(c *gin.Context) {
	response.Success(c, h.assistant.History(getScope(c)))
}
