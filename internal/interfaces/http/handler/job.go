package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	appbilling "github.com/wasteline/backend/internal/application/billing"
	"github.com/wasteline/backend/internal/interfaces/http/dto"
)

// JobHandler exposes the generator for operators
type JobHandler struct {
	BaseHandler
	generator GenerationRunner
	jobs      JobLister
}

// NewJobHandler creates a new JobHandler. jobs may be nil when scheduling is disabled.
func NewJobHandler(generator GenerationRunner, jobs JobLister) *JobHandler {
	return &JobHandler{generator: generator, jobs: jobs}
}

// RunInvoiceGeneration handles POST /jobs/invoice-generation/run.
// It answers 409 while a scheduled or manual run holds the run-lock.
func (h *JobHandler) RunInvoiceGeneration(c *gin.Context) {
	report, err := h.generator.Run(c.Request.Context())
	if errors.Is(err, appbilling.ErrGenerationInProgress) {
		h.Error(c, http.StatusConflict, dto.ErrCodeJobRunning, "Invoice generation is already running")
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// List handles GET /jobs
func (h *JobHandler) List(c *gin.Context) {
	if h.jobs == nil {
		h.Success(c, []any{})
		return
	}
	h.Success(c, h.jobs.Jobs())
}
