package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/pipeline"
	"github.com/docbed/docbed/engine/search"
)

// Jobs starts and tracks pipeline workflows. *pipeline.Service satisfies
// it.
type Jobs interface {
	StartUpload(ctx context.Context, req pipeline.UploadRequest) (*pipeline.Handle, error)
	StartEmbedding(ctx context.Context, req pipeline.EmbeddingRequest) (*pipeline.Handle, error)
	Describe(ctx context.Context, handle pipeline.Handle) (pipeline.JobStatus, error)
	Result(ctx context.Context, handle pipeline.Handle, wait bool, timeout time.Duration) (*pipeline.UploadState, error)
}

// Docs resolves document queries. *search.Manager satisfies it.
type Docs interface {
	Docs(ctx context.Context, query search.DocsQuery) (*search.DocsResponse, error)
}

type handlers struct {
	jobs       Jobs
	docs       Docs
	signingKey []byte
}

func registerRoutes(r *gin.Engine, h *handlers) {
	api := r.Group("/api/v1")
	api.POST("/embedding/upload", h.upload)
	api.POST("/embedding/embed", h.embed)
	api.GET("/embedding/jobs/:id", h.job)
	api.POST("/docs", h.searchDocs)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (h *handlers) upload(c *gin.Context) {
	var req pipeline.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("decoding upload request: %w", err))
		return
	}
	if req.Doc.SubjectID == "" || req.Doc.SubjectType == "" {
		respondError(c, http.StatusBadRequest, fmt.Errorf("%w: subject id and type are required", core.ErrInvalidConfig))
		return
	}
	handle, err := h.jobs.StartUpload(c.Request.Context(), req)
	if err != nil {
		respondMapped(c, err)
		return
	}
	respondAccepted(c, "upload started", newJob(handle, pipeline.JobStatusRunning, h.signingKey))
}

func (h *handlers) embed(c *gin.Context) {
	var req pipeline.EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("decoding embedding request: %w", err))
		return
	}
	if req.VFileID.IsZero() && (req.SubjectID == "" || req.SubjectType == "") {
		respondError(c, http.StatusBadRequest,
			fmt.Errorf("%w: a vfile id or a subject key is required", core.ErrInvalidConfig))
		return
	}
	handle, err := h.jobs.StartEmbedding(c.Request.Context(), req)
	if err != nil {
		respondMapped(c, err)
		return
	}
	respondAccepted(c, "embedding started", newJob(handle, pipeline.JobStatusRunning, h.signingKey))
}

// job answers GET /embedding/jobs/:id. The optional wait query blocks
// until the run completes; result=true snapshots the state query of a
// still-running workflow.
func (h *handlers) job(c *gin.Context) {
	handle := pipeline.Handle{
		WorkflowID: c.Param("id"),
		RunID:      c.Query("run_id"),
		Name:       c.DefaultQuery("name", "upload"),
	}
	ctx := c.Request.Context()
	status, err := h.jobs.Describe(ctx, handle)
	if err != nil {
		respondMapped(c, err)
		return
	}
	job := newJob(&handle, status, h.signingKey)
	wait := c.Query("wait") == "true"
	withResult := wait || c.Query("result") == "true" || status != pipeline.JobStatusRunning
	if withResult {
		timeout := parseTimeout(c.Query("timeout"))
		state, err := h.jobs.Result(ctx, handle, wait, timeout)
		if err != nil {
			respondMapped(c, err)
			return
		}
		job.Result = state
		if wait {
			if status, err = h.jobs.Describe(ctx, handle); err == nil {
				job.Status = string(status)
			}
		}
	}
	respondOK(c, "job state", job)
}

func (h *handlers) searchDocs(c *gin.Context) {
	var query search.DocsQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("decoding docs query: %w", err))
		return
	}
	resp, err := h.docs.Docs(c.Request.Context(), query)
	if err != nil {
		respondMapped(c, err)
		return
	}
	if resp.Query.Output == search.OutputMarkdown {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(resp.ToMarkdown()))
		return
	}
	respondOK(c, "docs", resp)
}

func parseTimeout(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
