package api

import (
	"bytes"
	stderrors "errors"
	"net/http"
	"strconv"

	"hypocycle/app"
	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/internal/errors"
	"hypocycle/internal/report"
	"hypocycle/ports"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CycleHandler serves the cycle endpoints
type CycleHandler struct {
	orchestrator *app.Orchestrator
	interpreter  *app.Interpreter
	repo         ports.RecordRepository // optional
	exporter     ports.RecordExporter   // optional
	events       *SSEHub                // optional
	logger       *zap.Logger
}

// NewCycleHandler creates a new cycle handler. repo and exporter may be nil.
func NewCycleHandler(
	orchestrator *app.Orchestrator,
	interpreter *app.Interpreter,
	repo ports.RecordRepository,
	exporter ports.RecordExporter,
	logger *zap.Logger,
) *CycleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CycleHandler{
		orchestrator: orchestrator,
		interpreter:  interpreter,
		repo:         repo,
		exporter:     exporter,
		logger:       logger,
	}
}

// WithEvents serves GET /v1/events from hub. The orchestrator must publish
// to the same hub for the stream to carry anything.
func (h *CycleHandler) WithEvents(hub *SSEHub) *CycleHandler {
	h.events = hub
	return h
}

// CycleRequestBody is the body of POST /v1/cycles
type CycleRequestBody struct {
	Hypothesis   string `json:"hypothesis"`
	FollowUp     string `json:"follow_up"`
	AllowPartial bool   `json:"allow_partial"`
}

// BatchRequestBody is the body of POST /v1/cycles/batch
type BatchRequestBody struct {
	Cycles []CycleRequestBody `json:"cycles" binding:"required,min=1,dive"`
}

// InterpretRequestBody is the body of POST /v1/interpret
type InterpretRequestBody struct {
	Hypothesis string `json:"hypothesis"`
}

// RunCycle runs one cycle synchronously
func (h *CycleHandler) RunCycle(c *gin.Context) {
	var body CycleRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, errors.InvalidInput("invalid request body: "+err.Error()), nil)
		return
	}

	result, err := h.orchestrator.RunCycle(c.Request.Context(), app.CycleRequest{
		Hypothesis:   body.Hypothesis,
		FollowUp:     body.FollowUp,
		AllowPartial: body.AllowPartial,
	})
	if err != nil {
		h.fail(c, err, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// RunBatch runs independent cycles concurrently and reports each outcome
func (h *CycleHandler) RunBatch(c *gin.Context) {
	var body BatchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, errors.InvalidInput("invalid request body: "+err.Error()), nil)
		return
	}

	reqs := make([]app.CycleRequest, len(body.Cycles))
	for i, b := range body.Cycles {
		reqs[i] = app.CycleRequest{Hypothesis: b.Hypothesis, FollowUp: b.FollowUp, AllowPartial: b.AllowPartial}
	}

	outcomes := h.orchestrator.RunMany(c.Request.Context(), reqs)
	out := make([]gin.H, len(outcomes))
	for i, o := range outcomes {
		entry := gin.H{"hypothesis": o.Request.Hypothesis, "cycle_id": o.Request.CycleID}
		if o.Result != nil {
			entry["result"] = o.Result
		}
		if o.Err != nil {
			entry["error"] = errorBody(o.Err)
		}
		out[i] = entry
	}
	c.JSON(http.StatusOK, gin.H{"cycles": out})
}

// Interpret returns the batch a hypothesis would produce without running it
func (h *CycleHandler) Interpret(c *gin.Context) {
	var body InterpretRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, errors.InvalidInput("invalid request body: "+err.Error()), nil)
		return
	}

	batch, err := h.interpreter.Interpret(c.Request.Context(), body.Hypothesis)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ListCycles returns stored records, newest first
func (h *CycleHandler) ListCycles(c *gin.Context) {
	if !h.requireRepo(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		h.fail(c, errors.InvalidInput("limit must be a non-negative integer"), nil)
		return
	}

	records, err := h.repo.ListRecords(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": records})
}

// GetCycle returns one stored record
func (h *CycleHandler) GetCycle(c *gin.Context) {
	if !h.requireRepo(c) {
		return
	}
	id, err := core.ParseCycleID(c.Param("id"))
	if err != nil {
		h.fail(c, errors.InvalidInput(err.Error()), nil)
		return
	}

	record, err := h.repo.GetRecord(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetReport renders a stored record as Markdown, or HTML with ?format=html
func (h *CycleHandler) GetReport(c *gin.Context) {
	if !h.requireRepo(c) {
		return
	}
	id, err := core.ParseCycleID(c.Param("id"))
	if err != nil {
		h.fail(c, errors.InvalidInput(err.Error()), nil)
		return
	}

	record, err := h.repo.GetRecord(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	specs := h.storedSpecs(c, id)

	switch c.DefaultQuery("format", "markdown") {
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(record, specs))
	case "markdown", "md":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", report.Markdown(record, specs))
	default:
		h.fail(c, errors.InvalidInput("format must be markdown or html"), nil)
	}
}

// ExportCycle streams a stored cycle as an XLSX workbook
func (h *CycleHandler) ExportCycle(c *gin.Context) {
	if !h.requireRepo(c) {
		return
	}
	if h.exporter == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": errors.CodeInternalError, "message": "export not configured"})
		return
	}
	id, err := core.ParseCycleID(c.Param("id"))
	if err != nil {
		h.fail(c, errors.InvalidInput(err.Error()), nil)
		return
	}

	record, err := h.repo.GetRecord(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Export(c.Request.Context(), &buf, h.storedSpecs(c, id), record); err != nil {
		h.fail(c, errors.Wrap(err, "failed to export cycle"), nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+id.String()+`.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// storedSpecs returns the batch of a cycle, or nil when none was stored
func (h *CycleHandler) storedSpecs(c *gin.Context, id core.CycleID) []spec.SampleSpecification {
	specs, err := h.repo.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.logger.Debug("no stored batch for cycle", zap.String("cycle_id", id.String()), zap.Error(err))
		return nil
	}
	return specs
}

func (h *CycleHandler) requireRepo(c *gin.Context) bool {
	if h.repo != nil {
		return true
	}
	c.JSON(http.StatusNotImplemented, gin.H{"error": errors.CodeInternalError, "message": "persistence not configured"})
	return false
}

// fail writes an error response. A non-nil result is returned alongside the
// error so callers can inspect partial work.
func (h *CycleHandler) fail(c *gin.Context, err error, result *app.CycleResult) {
	code := errors.Classify(err)
	status := errors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	body := errorBody(err)
	if result != nil {
		body["result"] = result
	}
	c.JSON(status, body)
}

// errorBody renders err with the structured context of domain errors
func errorBody(err error) gin.H {
	body := gin.H{"error": errors.Classify(err), "message": err.Error()}

	var unsupported *core.UnsupportedHypothesisError
	if stderrors.As(err, &unsupported) {
		body["hypothesis"] = unsupported.Hypothesis
		body["source"] = unsupported.Source
	}
	var schema *core.SchemaViolationError
	if stderrors.As(err, &schema) {
		body["field"] = schema.Field
		body["expected"] = schema.Expected
		body["got"] = schema.Got
	}

	var failed []gin.H
	collectExecutionErrors(err, &failed)
	if len(failed) > 0 {
		body["failed_samples"] = failed
	}
	return body
}

func collectExecutionErrors(err error, out *[]gin.H) {
	if err == nil {
		return
	}
	if e, ok := err.(*core.ExecutionError); ok {
		*out = append(*out, gin.H{"sample_id": e.SampleID, "reason": e.Reason})
		return
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			collectExecutionErrors(inner, out)
		}
	case interface{ Unwrap() error }:
		collectExecutionErrors(u.Unwrap(), out)
	}
}
