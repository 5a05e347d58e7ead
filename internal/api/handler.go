package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/IliaW/link-repair-kit/internal/checker"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/persistence"
	"github.com/IliaW/link-repair-kit/internal/redirect"
	"github.com/IliaW/link-repair-kit/internal/report"
	"github.com/IliaW/link-repair-kit/internal/scanner"
	"github.com/IliaW/link-repair-kit/internal/token"
	"github.com/gin-gonic/gin"
)

const (
	eventRow     = "row"
	eventResult  = "result"
	eventSummary = "summary"
)

// Handler serves the scan, check and redirect administration endpoints.
type Handler struct {
	Scanner   *scanner.Scanner
	Checker   checker.Checker
	Redirects *redirect.Service
	Signer    *token.Signer
	Version   string
	// ActivationErr is set when the redirect schema could not be created.
	ActivationErr error
	now           func() time.Time
}

func NewHandler(s *scanner.Scanner, ch checker.Checker, redirects *redirect.Service, signer *token.Signer,
	version string, activationErr error) *Handler {
	return &Handler{
		Scanner:       s,
		Checker:       ch,
		Redirects:     redirects,
		Signer:        signer,
		Version:       version,
		ActivationErr: activationErr,
		now:           time.Now,
	}
}

// ScanEvent is one line of the scan stream.
type ScanEvent struct {
	Type    string          `json:"type"`
	Row     *model.ScanRow  `json:"row,omitempty"`
	Update  *report.Update  `json:"update,omitempty"`
	Summary *report.Summary `json:"summary,omitempty"`
}

type checkRequest struct {
	URL string `json:"url" form:"url" binding:"required"`
}

type redirectRequest struct {
	OldURL string `json:"old_url" form:"old_url"`
	NewURL string `json:"new_url" form:"new_url"`
}

func (h *Handler) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"version":   h.Version,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if h.ActivationErr != nil {
		body["status"] = "degraded"
		body["warning"] = h.ActivationErr.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) IssueToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"token": h.Signer.Issue()})
}

// Scan streams newline-delimited JSON: every row first, then one result event per finished
// check, then the summary. A client disconnect cancels the remaining checks.
func (h *Handler) Scan(c *gin.Context) {
	var req model.ScanRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	agg, err := h.Scanner.Prepare(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	enc := json.NewEncoder(c.Writer)
	for _, row := range agg.Rows() {
		if err = enc.Encode(ScanEvent{Type: eventRow, Row: &row}); err != nil {
			slog.Debug("failed to write scan row.", slog.String("err", err.Error()))
			return
		}
	}
	c.Writer.Flush()

	for upd := range h.Scanner.Run(ctx, agg) {
		if err = enc.Encode(ScanEvent{Type: eventResult, Update: &upd}); err != nil {
			slog.Debug("failed to write scan result.", slog.String("err", err.Error()))
			continue
		}
		c.Writer.Flush()
	}
	if ctx.Err() != nil {
		return
	}

	summary := agg.Summary()
	if err = enc.Encode(ScanEvent{Type: eventSummary, Summary: &summary}); err != nil {
		slog.Debug("failed to write scan summary.", slog.String("err", err.Error()))
		return
	}
	c.Writer.Flush()
}

// Export runs a scan to completion and returns the visible rows as a CSV attachment.
func (h *Handler) Export(c *gin.Context) {
	var req model.ScanRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	agg, err := h.Scanner.Scan(c.Request.Context(), req)
	if err != nil {
		if agg == nil {
			writeError(c, err)
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+report.ExportFilename(h.now())+`"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err = report.WriteCSV(c.Writer, agg.Snapshot()); err != nil {
		slog.Error("failed to write csv export.", slog.String("err", err.Error()))
	}
}

// Check probes a single URL. Transport failures are reported in the body with status 200.
func (h *Handler) Check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	result := h.Checker.Check(c.Request.Context(), req.URL)
	if result.IsError() {
		c.JSON(http.StatusOK, gin.H{"error_message": result.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status_code": result.StatusCode})
}

func (h *Handler) ListRedirects(c *gin.Context) {
	rules, err := h.Redirects.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if rules == nil {
		rules = []*model.RedirectRule{}
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) CreateRedirect(c *gin.Context) {
	var req redirectRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.Redirects.Save(c.Request.Context(), req.OldURL, req.NewURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) DeleteRedirect(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, &model.ValidationError{Field: "id", Message: "id must be a positive integer"})
		return
	}
	if err = h.Redirects.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, persistence.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed.", slog.String("path", c.FullPath()), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal storage failure"})
	}
}
