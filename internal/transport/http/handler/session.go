package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragchat/internal/domain"
	"ragchat/internal/knowledgebase"
	"ragchat/internal/logger"
	"ragchat/internal/session"
	"ragchat/internal/transport/http/response"
)

type SessionHandler struct {
	registry       *session.Registry
	maxUploadBytes int64
	log            *slog.Logger
}

type AskRequest struct {
	Question string `json:"question"`
}

// IngestResult is the outcome for one uploaded file.
type IngestResult struct {
	File   string                      `json:"file"`
	Report *knowledgebase.IngestReport `json:"report,omitempty"`
	Error  string                      `json:"error,omitempty"`
}

type SessionView struct {
	ID           string              `json:"session_id"`
	Stats        knowledgebase.Stats `json:"stats"`
	Conversation []domain.Exchange   `json:"conversation"`
}

func NewSessionHandler(registry *session.Registry, maxUploadBytes int64, log *slog.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, maxUploadBytes: maxUploadBytes, log: logger.OrDiscard(log)}
}

func (h *SessionHandler) Create(c *gin.Context) {
	id, _, err := h.registry.Create()
	if err != nil {
		h.log.Error("create session failed", "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		return
	}
	response.OK(c, gin.H{"session_id": id})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Delete(c.Request.Context(), id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"deleted_session_id": id})
}

func (h *SessionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	kb, err := h.registry.Get(id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	stats, err := kb.Stats(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, SessionView{ID: id, Stats: stats, Conversation: kb.Conversation()})
}

// Upload ingests every multipart "file" part. With replace=true the
// knowledge base is cleared first.
func (h *SessionHandler) Upload(c *gin.Context) {
	kb, err := h.registry.Get(c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart payload")
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}

	if replace, _ := strconv.ParseBool(c.Query("replace")); replace {
		if err := kb.Clear(c.Request.Context()); err != nil {
			response.Fail(c, err)
			return
		}
	}

	results := make([]IngestResult, 0, len(files))
	var firstErr error
	succeeded := 0
	for _, fh := range files {
		report, err := h.ingestUpload(c, kb, fh)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			results = append(results, IngestResult{File: fh.Filename, Error: err.Error()})
			continue
		}
		succeeded++
		results = append(results, IngestResult{File: fh.Filename, Report: &report})
	}
	if succeeded == 0 {
		status, code := response.Status(firstErr)
		c.JSON(status, response.APIResponse{Code: code, Message: firstErr.Error(), Data: gin.H{"files": results}})
		return
	}
	response.OK(c, gin.H{"files": results})
}

// ingestUpload stores the upload under its own name in a temporary
// directory, so the loader sees the original extension, and removes it
// once ingested.
func (h *SessionHandler) ingestUpload(c *gin.Context, kb *knowledgebase.KnowledgeBase, fh *multipart.FileHeader) (knowledgebase.IngestReport, error) {
	dir, err := os.MkdirTemp("", "ragchat-upload-*")
	if err != nil {
		return knowledgebase.IngestReport{}, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) {
		return knowledgebase.IngestReport{}, fmt.Errorf("%w: invalid file name %q", domain.ErrUnreadableDocument, fh.Filename)
	}
	path := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(fh, path); err != nil {
		return knowledgebase.IngestReport{}, fmt.Errorf("save upload: %w", err)
	}
	report, err := kb.Ingest(c.Request.Context(), path)
	if err != nil {
		return knowledgebase.IngestReport{}, err
	}
	report.Path = fh.Filename
	return report, nil
}

func (h *SessionHandler) Ask(c *gin.Context) {
	kb, err := h.registry.Get(c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	ans, err := kb.Ask(c.Request.Context(), req.Question)
	if err != nil {
		if !errors.Is(err, domain.ErrEmptyQuestion) {
			h.log.Warn("ask failed", "session", c.Param("id"), "error", err)
		}
		response.Fail(c, err)
		return
	}
	response.OK(c, ans)
}

func (h *SessionHandler) Clear(c *gin.Context) {
	kb, err := h.registry.Get(c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := kb.Clear(c.Request.Context()); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"state": kb.State()})
}
