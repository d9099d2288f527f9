package handler

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docmem/internal/pkg/errcode"
	appErr "github.com/xxxsen/docmem/internal/pkg/errors"
	"github.com/xxxsen/docmem/internal/pkg/response"
	"github.com/xxxsen/docmem/internal/service"
)

type DocumentHandler struct {
	memories    *service.MemoryService
	assistant   *service.AssistantService
	uploadLimit int64
}

func NewDocumentHandler(memories *service.MemoryService, assistant *service.AssistantService, uploadLimit int64) *DocumentHandler {
	return &DocumentHandler{memories: memories, assistant: assistant, uploadLimit: uploadLimit}
}

// Upload analyzes a PDF or text file and stores it in the caller's memory.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.ErrorWithErrno(c, http.StatusBadRequest, errcode.ErrInvalidFile, "invalid_file", "file is required")
		return
	}
	if h.uploadLimit > 0 && file.Size > h.uploadLimit {
		handleError(c, fmt.Errorf("file exceeds %s: %w", formatUploadLimit(h.uploadLimit), appErr.ErrTooLarge))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.ErrorWithErrno(c, http.StatusBadRequest, errcode.ErrInvalidFile, "invalid_file", "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.ErrorWithErrno(c, http.StatusBadRequest, errcode.ErrInvalidFile, "invalid_file", "failed to read file")
		return
	}
	filename := filepath.Base(strings.ReplaceAll(file.Filename, "\\", "/"))
	analysis, err := h.assistant.Analyze(c.Request.Context(), getScope(c), filename, data)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, analysis)
}

func (h *DocumentHandler) List(c *gin.Context) {
	response.Success(c, h.memories.GetAllDocuments(c.Request.Context(), getScope(c)))
}

func (h *DocumentHandler) Text(c *gin.Context) {
	filename := c.Param("filename")
	text, ok := h.memories.GetDocumentText(c.Request.Context(), getScope(c), filename)
	if !ok {
		handleError(c, appErr.ErrNotFound)
		return
	}
	response.Success(c, gin.H{"filename": filename, "text": text})
}

func (h *DocumentHandler) Insights(c *gin.Context) {
	insights, err := h.assistant.Insights(c.Request.Context(), getScope(c), c.Param("filename"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, insights)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	res := h.memories.RemoveDocument(c.Request.Context(), getScope(c), c.Param("filename"))
	if !res.Success {
		handleError(c, res.Err)
		return
	}
	response.Success(c, gin.H{"removed": true, "warning": res.Warning})
}
