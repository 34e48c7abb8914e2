package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/pkg/rabbitmq"
	"chat-archive/service"
)

var (
	errInvalidParam  = errors.New("invalid parameter")
	errQueueDisabled = errors.New("export queue is not configured")
)

// API is what the HTTP routes need. Publisher is nil when no broker is
// configured; the export job endpoint is then unavailable.
type API struct {
	Manager   *service.Manager
	Query     *service.QueryService
	Publisher rabbitmq.Publisher
}

// NewRouter builds the HTTP API. Requests carry the logger of ctx.
func NewRouter(ctx context.Context, api *API) *gin.Engine {
	r := gin.Default()
	r.Use(withLogger(*zerolog.Ctx(ctx)), cors())
	addHealth(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	addStreams(r, api)
	return r
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}

func addStreams(r *gin.Engine, api *API) {
	streams := r.Group("/streams")
	streams.GET("/", api.listStreams)
	streams.POST("/status", api.streamStatus)
	streams.POST("/", api.createStream)
	streams.PATCH("/:id/resume", api.resumeStream)
	streams.PATCH("/:id/pause", api.pauseStream)
	streams.PATCH("/:id/stop", api.stopStream)
	streams.DELETE("/:id", api.deleteStream)
	streams.GET("/:id/messages", api.messages)
	streams.GET("/:id/export", api.export)
	streams.POST("/:id/export/jobs", api.enqueueExport)
}

func (a *API) listStreams(c *gin.Context) {
	streams, err := a.Query.Streams(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStreamResponses(streams))
}

func (a *API) streamStatus(c *gin.Context) {
	var req dto.StreamUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errInvalidParam, err))
		return
	}
	streams, err := a.Query.StreamsByIDs(c.Request.Context(), req.StreamIDs)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStreamResponses(streams))
}

func (a *API) createStream(c *gin.Context) {
	var req dto.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errInvalidParam, err))
		return
	}
	stream, err := a.Manager.Start(c.Request.Context(), req.URL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStreamResponse(stream))
}

func (a *API) resumeStream(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	if err := a.Manager.Resume(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func (a *API) pauseStream(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	if err := a.Manager.Pause(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (a *API) stopStream(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	if err := a.Manager.Stop(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "stream_id": id})
}

func (a *API) deleteStream(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	if err := a.Manager.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "stream_id": id})
}

func (a *API) messages(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	q, f, ok := bindFilter(c)
	if !ok {
		return
	}

	resp, err := a.Query.Messages(c.Request.Context(), id, f, service.Page{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) export(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	q, f, ok := bindFilter(c)
	if !ok {
		return
	}
	// Export has never honoured date bounds.
	f.DateFrom, f.DateTo = nil, nil

	file, err := a.Query.Export(c.Request.Context(), id, f, constant.ExportFormat(q.Format))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("filename", file.Filename)
	c.Data(http.StatusOK, file.ContentType, file.Body)
}

func (a *API) enqueueExport(c *gin.Context) {
	if a.Publisher == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"detail": errQueueDisabled.Error()})
		return
	}
	id, ok := streamID(c)
	if !ok {
		return
	}
	q, f, ok := bindFilter(c)
	if !ok {
		return
	}
	format, err := service.ParseExportFormat(q.Format)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if _, err := a.Query.Stream(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}

	jobID, err := a.Publisher.PublishExportJob(c.Request.Context(), dto.ExportJobMessage{
		StreamID:           id,
		Format:             format,
		MessageGroupIDs:    f.MessageGroupIDs,
		IncludeBannedUsers: f.IncludeBannedUsers,
		Moderators:         f.Moderators,
		Username:           f.Username,
		Message:            f.Message,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.ExportJobResponse{JobID: jobID, Status: "queued"})
}

func streamID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: stream id %q", errInvalidParam, c.Param("id")))
		return 0, false
	}
	return uint(id), true
}

// bindFilter reads the shared filter query parameters.
func bindFilter(c *gin.Context) (dto.MessagesQuery, service.Filter, bool) {
	var q dto.MessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errInvalidParam, err))
		return q, service.Filter{}, false
	}

	f := service.Filter{
		IncludeBannedUsers: q.IncludeBannedUsers,
		Moderators:         q.Moderators,
		Username:           q.Username,
		Message:            q.Message,
	}

	var err error
	if f.MessageGroupIDs, err = parseGroups(q.MessageGroupIDs); err != nil {
		abortWithError(c, err)
		return q, f, false
	}
	if f.DateFrom, err = parseDate("dateFrom", q.DateFrom); err != nil {
		abortWithError(c, err)
		return q, f, false
	}
	if f.DateTo, err = parseDate("dateTo", q.DateTo); err != nil {
		abortWithError(c, err)
		return q, f, false
	}
	return q, f, true
}

func parseGroups(raw string) ([]constant.MessageGroup, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var groups []constant.MessageGroup
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: messageGroupIds %q", errInvalidParam, raw)
		}
		groups = append(groups, constant.MessageGroup(id))
	}
	return groups, nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate accepts RFC 3339 and zone-less ISO dates, the latter as UTC.
func parseDate(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q", errInvalidParam, name, raw)
}

func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrStreamNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "Stream not found"})
	case errors.Is(err, errInvalidParam),
		errors.Is(err, service.ErrUnsupportedPlatform),
		errors.Is(err, service.ErrAlreadyProcessing),
		errors.Is(err, service.ErrAlreadyRunning),
		errors.Is(err, service.ErrNotRunning),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrUnsupportedFormat):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}
