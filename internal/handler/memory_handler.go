package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docmem/internal/pkg/response"
	"github.com/xxxsen/docmem/internal/service"
)

type MemoryHandler struct {
	memories  *service.MemoryService
	assistant *service.AssistantService
}

func NewMemoryHandler(memories *service.MemoryService, assistant *service.AssistantService) *MemoryHandler {
	return &MemoryHandler{memories: memories, assistant: assistant}
}

func (h *MemoryHandler) Stats(c *gin.Context) {
	response.Success(c, h.memories.GetStats(c.Request.Context(), getScope(c)))
}

// Clear drops every document and the question history of the caller.
func (h *MemoryHandler) Clear(c *gin.Context) {
	scope := getScope(c)
	res := h.memories.ClearAll(c.Request.Context(), scope)
	if !res.Success {
		handleError(c, res.Err)
		return
	}
	h.assistant.ClearHistory(scope)
	response.Success(c, gin.H{"cleared": true, "warning": res.Warning})
}
