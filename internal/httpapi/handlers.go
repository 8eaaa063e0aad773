package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/analysis"
	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/ingest"
	"callcenter-platform/internal/jobs"
	"callcenter-platform/internal/live"
	"callcenter-platform/internal/presence"
	"callcenter-platform/internal/reporting"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/storage"
)

// maxUploadBytes bounds one multipart recording upload.
const maxUploadBytes = 200 << 20

// JobReader is the read side of the job queue.
type JobReader interface {
	Get(id int64) (jobs.Job, bool)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Ingest    *ingest.Service
	Calls     calls.Repository
	Presence  presence.Store
	Live      *live.Aggregator
	Jobs      JobReader
	Reporting *reporting.Service

	// Location interprets call start times sent without a zone.
	Location *time.Location
}

// --- Ingestion ---

// UploadRecording accepts one recording plus call metadata.
// POST /v1/calls/upload
func (h Handlers) UploadRecording(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	start, err := ParseStartTime(c.PostForm("callStartTime"), h.location())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "callStartTime is not a valid time"})
		return
	}
	duration := 0
	if v := strings.TrimSpace(c.PostForm("duration")); v != "" {
		duration, err = strconv.Atoi(v)
		if err != nil || duration < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "duration must be a non-negative integer"})
			return
		}
	}

	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is unreadable"})
		return
	}
	defer f.Close()

	res, err := h.Ingest.Upload(c.Request.Context(), ingest.UploadRequest{
		File:            f,
		Filename:        fh.Filename,
		Size:            fh.Size,
		ContentType:     fh.Header.Get("Content-Type"),
		Number:          c.PostForm("number"),
		UserName:        c.PostForm("userName"),
		UserPhone:       c.PostForm("userPhone"),
		CallType:        c.PostForm("callType"),
		DurationSeconds: duration,
		ContactName:     c.PostForm("contactName"),
		CallStartTime:   start,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CallWebhook records a call-state stub.
// POST /v1/calls/webhook
func (h Handlers) CallWebhook(c *gin.Context) {
	var req ingest.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Ingest.Webhook(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "callId": call.ID})
}

// --- Presence ---

type heartbeatRequest struct {
	UserName      string `json:"userName"`
	UserPhone     string `json:"userPhone"`
	CallState     string `json:"callState"`
	CallNumber    string `json:"callNumber"`
	CallStartTime string `json:"callStartTime"`
}

// Heartbeat refreshes the device's presence entry. Devices retry on any
// non-2xx, so store failures are logged and still answered with 200.
// POST /v1/presence/heartbeat
func (h Handlers) Heartbeat(c *gin.Context) {
	log := logger.FromGin(c)

	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("heartbeat: invalid json", "err", err)
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	start, err := ParseStartTime(req.CallStartTime, h.location())
	if err != nil {
		log.Warn("heartbeat: bad callStartTime", "value", req.CallStartTime)
		start = nil
	}
	_, err = h.Presence.Heartbeat(c.Request.Context(), presence.Heartbeat{
		Phone:         req.UserPhone,
		Name:          req.UserName,
		CallState:     req.CallState,
		CallNumber:    req.CallNumber,
		CallStartTime: start,
	})
	if err != nil {
		log.Warn("heartbeat: presence write failed", "user_phone", req.UserPhone, "err", err)
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// LiveView returns per-agent and per-team live status.
// GET /v1/live
func (h Handlers) LiveView(c *gin.Context) {
	v, err := h.Live.LiveView(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// OnlineAgents lists agents with a live presence entry.
// GET /v1/presence/online
func (h Handlers) OnlineAgents(c *gin.Context) {
	list, err := h.Live.OnlineAgents(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": list, "count": len(list)})
}

// --- Calls and jobs ---

// GetJob returns job state and advisory progress.
// GET /v1/jobs/:id
func (h Handlers) GetJob(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	job, found := h.Jobs.Get(id)
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetCall returns a call with its most recent analysis result.
// GET /v1/calls/:id
func (h Handlers) GetCall(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	call, err := h.Calls.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	out := gin.H{"call": call}
	res, found, err := h.Calls.LatestAnalysis(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if found {
		out["analysis"] = res
	}
	c.JSON(http.StatusOK, out)
}

// Reanalyze re-queues a call's recording.
// POST /v1/admin/calls/:id/reanalyze
func (h Handlers) Reanalyze(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	actor := strings.TrimSpace(c.GetHeader("X-Operator"))
	if actor == "" {
		actor = "operator"
	}
	jobID, err := h.Ingest.Reanalyze(c.Request.Context(), id, actor, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "callId": id, "jobId": jobID})
}

// --- Reporting ---

// CallsReport summarises recorded calls per team. from and to are dates
// (YYYY-MM-DD, to inclusive) or RFC 3339 instants; the default is today.
// GET /v1/reports/calls
func (h Handlers) CallsReport(c *gin.Context) {
	loc := h.location()
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	from, err := parseBound(c.Query("from"), loc, today, false)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from is not a valid date"})
		return
	}
	to, err := parseBound(c.Query("to"), loc, today, true)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to is not a valid date"})
		return
	}

	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range: reporting.TimeRange{From: from, To: to},
		Team:  strings.TrimSpace(c.Query("team")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) location() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.Local
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, ingest.ErrValidation),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, storage.ErrInvalidName):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, analysis.ErrCallNotFound),
		errors.Is(err, jobs.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, ingest.ErrNoRecording):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, context.Canceled):
		status, msg = 499, "request canceled"
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
