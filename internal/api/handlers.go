// handlers.go - HTTP handlers for bulk invoice upload and operator tooling.

package api

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/internal/grouper"
	"github.com/bosocmputer/invoice_po_matcher/internal/matching"
	"github.com/bosocmputer/invoice_po_matcher/internal/pipeline"
	"github.com/bosocmputer/invoice_po_matcher/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// recentUsageLimit is how many audit records the debug endpoint returns.
const recentUsageLimit = 10

// Store is the database surface the handlers read and write.
type Store interface {
	Ping(ctx context.Context) error
	ListEligiblePOs(ctx context.Context) ([]matching.EligiblePO, error)
	ListActiveJobNames(ctx context.Context) ([]string, error)
	RecentAPIUsage(ctx context.Context, limit int64) ([]matching.UsageRecord, error)
	UsageStats(ctx context.Context) (storage.UsageStats, error)
	GetAssistEnabled(ctx context.Context, def bool) (bool, error)
	SetAssistEnabled(ctx context.Context, enabled bool) error
}

// Runner executes one uploaded batch.
type Runner interface {
	RunUpload(ctx context.Context, r io.Reader, tag string, opts pipeline.Options) *pipeline.Summary
}

// Handler serves the API routes.
type Handler struct {
	Store  Store
	Runner Runner

	// AssistProvider and OCRProvider are reported by verify and debug.
	AssistProvider string
	OCRProvider    string
	// AssistDefault applies while no toggle has been persisted.
	AssistDefault bool
	// Options turns the assist toggle into batch options.
	Options func(assistEnabled bool) pipeline.Options

	log *zap.Logger
	now func() time.Time
}

// NewHandler returns a Handler with options read from the configuration.
func NewHandler(store Store, runner Runner, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:   store,
		Runner:  runner,
		Options: pipeline.OptionsFromConfig,
		log:     log,
		now:     time.Now,
	}
}

func (h *Handler) assistEnabled(ctx context.Context) bool {
	enabled, err := h.Store.GetAssistEnabled(ctx, h.AssistDefault)
	if err != nil {
		h.log.Warn("failed to read assist setting, using default",
			zap.Bool("default", h.AssistDefault), zap.Error(err))
		return h.AssistDefault
	}
	return enabled
}

// BulkUploadHandler handles POST /api/v1/invoices/bulk with a multipart
// pdf_file field and returns the batch summary.
func (h *Handler) BulkUploadHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("pdf_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "No file uploaded",
			"details": err.Error(),
		})
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid file type",
			"details": "pdf_file must be a PDF",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to read upload",
			"details": err.Error(),
		})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	opts := h.Options(h.assistEnabled(ctx))
	tag := grouper.Timestamp(h.now())

	h.log.Info("bulk upload received",
		zap.String("filename", fileHeader.Filename),
		zap.Int64("size", fileHeader.Size),
		zap.Bool("assist", opts.AssistEnabled),
		zap.String("tag", tag))

	summary := h.Runner.RunUpload(ctx, file, tag, opts)
	status := http.StatusOK
	if !summary.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, summary)
}

// VerifyHandler handles GET /api/v1/verify. It reports configuration and
// database reachability with the reference data counts.
func (h *Handler) VerifyHandler(c *gin.Context) {
	ctx := c.Request.Context()

	resp := gin.H{
		"assist_provider": h.AssistProvider,
		"ocr_provider":    h.OCRProvider,
	}

	if err := h.Store.Ping(ctx); err != nil {
		resp["database"] = "unreachable"
		resp["details"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp["database"] = "connected"

	pos, err := h.Store.ListEligiblePOs(ctx)
	if err != nil {
		resp["details"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	jobs, err := h.Store.ListActiveJobNames(ctx)
	if err != nil {
		resp["details"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	resp["eligible_pos"] = len(pos)
	resp["active_jobs"] = len(jobs)
	resp["assist_enabled"] = h.assistEnabled(ctx)
	c.JSON(http.StatusOK, resp)
}

// DebugMatchingHandler handles GET /api/v1/debug/matching.
func (h *Handler) DebugMatchingHandler(c *gin.Context) {
	ctx := c.Request.Context()

	pos, err := h.Store.ListEligiblePOs(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load POs", "details": err.Error()})
		return
	}
	jobs, err := h.Store.ListActiveJobNames(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load jobs", "details": err.Error()})
		return
	}
	recent, err := h.Store.RecentAPIUsage(ctx, recentUsageLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load API usage", "details": err.Error()})
		return
	}

	available := make([]gin.H, 0, len(pos))
	for _, po := range pos {
		available = append(available, gin.H{
			"po_id":          po.ID,
			"po_label":       matching.FormatPONumber(po.ID, po.JobName),
			"job_name":       po.JobName,
			"estimated_cost": po.EstimatedCost.StringFixed(2),
		})
	}
	if jobs == nil {
		jobs = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"available_pos":    available,
		"active_jobs":      jobs,
		"recent_api_usage": recent,
		"assist_enabled":   h.assistEnabled(ctx),
		"assist_provider":  h.AssistProvider,
	})
}

// UsageHandler handles GET /api/v1/usage.
func (h *Handler) UsageHandler(c *gin.Context) {
	stats, err := h.Store.UsageStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage stats", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type assistSettingRequest struct {
	Enabled *bool `json:"enabled"`
}

// GetAssistSettingHandler handles GET /api/v1/settings/assist.
func (h *Handler) GetAssistSettingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.assistEnabled(c.Request.Context())})
}

// SetAssistSettingHandler handles POST /api/v1/settings/assist with
// {"enabled": bool}.
func (h *Handler) SetAssistSettingHandler(c *gin.Context) {
	var req assistSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid request format",
			"expected": `JSON with boolean "enabled"`,
		})
		return
	}
	if err := h.Store.SetAssistEnabled(c.Request.Context(), *req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save setting", "details": err.Error()})
		return
	}
	h.log.Info("assist matching toggled", zap.Bool("enabled", *req.Enabled))
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}
