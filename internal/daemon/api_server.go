package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyforge/internal/config"
	"studyforge/internal/content"
	"studyforge/internal/deletion"
	"studyforge/internal/logging"
	"studyforge/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	engine *gin.Engine

	listener net.Listener
	server   *http.Server
}

type addContentRequest struct {
	Path  string `json:"path" binding:"required"`
	Owner string `json:"owner" binding:"required"`
	Title string `json:"title"`
}

type resumeRequest struct {
	FromStage string `json:"from_stage"`
}

type deleteRequest struct {
	IDs       []string `json:"ids" binding:"required,min=1,dive,required"`
	Requester string   `json:"requester"`
}

type contentResponse struct {
	ID           string         `json:"id"`
	Owner        string         `json:"owner"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Deleted      bool           `json:"deleted"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
	Stages       content.Stages `json:"stages"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type sagaResponse struct {
	ContentID string `json:"content_id"`
	SagaID    string `json:"saga_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Rows      int64  `json:"rows"`
	Error     string `json:"error,omitempty"`
}

type bulkResponse struct {
	Succeeded    []string       `json:"succeeded"`
	Failed       []sagaResponse `json:"failed"`
	Inconsistent []string       `json:"inconsistent"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.engine = srv.routes(cfg.Paths.APIToken)
	srv.server = &http.Server{
		Handler:           srv.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api", authMiddleware(token))
	api.GET("/status", s.handleStatus)
	api.GET("/content", s.handleListContent)
	api.POST("/content", s.handleAddContent)
	api.GET("/content/:id", s.handleGetContent)
	api.POST("/content/:id/resume", s.handleResume)
	api.POST("/content/:id/restore", s.handleRestore)
	api.DELETE("/content/:id", s.handleDelete)
	api.POST("/content/delete", s.handleBulkDelete)
	api.POST("/maintenance/sweep", s.handleSweep)
	api.POST("/maintenance/reconcile", s.handleReconcile)
	api.POST("/notifications/test", s.handleTestNotification)
	return engine
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(c *gin.Context) {
	status := s.daemon.Status(c.Request.Context())
	stats := make(map[string]int, len(status.Workflow.ContentStats))
	for k, v := range status.Workflow.ContentStats {
		stats[string(k)] = v
	}
	health := make(map[string]gin.H, len(status.Workflow.StageHealth))
	for name, h := range status.Workflow.StageHealth {
		health[name] = gin.H{"ready": h.Ready, "detail": h.Detail}
	}
	c.JSON(http.StatusOK, gin.H{
		"running":       status.Running,
		"pid":           status.PID,
		"database_path": status.DatabasePath,
		"lock_path":     status.LockFilePath,
		"workflow": gin.H{
			"running":       status.Workflow.Running,
			"in_flight":     status.Workflow.InFlight,
			"last_error":    status.Workflow.LastError,
			"content_stats": stats,
			"stage_health":  health,
		},
	})
}

func (s *apiServer) handleListContent(c *gin.Context) {
	filter := content.ListFilter{Owner: strings.TrimSpace(c.Query("owner"))}
	for _, value := range c.QueryArray("status") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			filter.Statuses = append(filter.Statuses, content.Status(trimmed))
		}
	}
	switch strings.ToLower(c.Query("deleted")) {
	case "only":
		filter.OnlyDeleted = true
	case "include", "true", "1":
		filter.IncludeDeleted = true
	}
	items, err := s.daemon.deps.Store.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]contentResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toContentResponse(item))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (s *apiServer) handleGetContent(c *gin.Context) {
	item, err := s.daemon.deps.Store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": toContentResponse(item)})
}

func (s *apiServer) handleAddContent(c *gin.Context) {
	var req addContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := s.daemon.AddFile(c.Request.Context(), req.Path, req.Owner, req.Title)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": toContentResponse(item)})
}

func (s *apiServer) handleResume(c *gin.Context) {
	var req resumeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := s.daemon.Resume(c.Param("id"), req.FromStage); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": c.Param("id"), "scheduled": true})
}

func (s *apiServer) handleRestore(c *gin.Context) {
	if err := s.daemon.deps.Deletion.Restore(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "restored": true})
}

// handleDelete removes one item. mode=soft hides it for the recovery window;
// the default is a permanent saga delete.
func (s *apiServer) handleDelete(c *gin.Context) {
	id := c.Param("id")
	requester := strings.TrimSpace(c.Query("requester"))
	ctx := c.Request.Context()
	switch strings.ToLower(c.DefaultQuery("mode", "permanent")) {
	case "soft":
		if err := s.daemon.deps.Deletion.SoftDelete(ctx, id, requester); err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "soft_deleted": true})
	case "permanent":
		res, err := s.daemon.deps.Deletion.Delete(ctx, id, requester)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": toSagaResponse(res)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": toSagaResponse(res)})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be soft or permanent"})
	}
}

func (s *apiServer) handleBulkDelete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := s.daemon.deps.Deletion.BulkDelete(c.Request.Context(), req.IDs, strings.TrimSpace(req.Requester))
	c.JSON(http.StatusOK, toBulkResponse(res))
}

func (s *apiServer) handleSweep(c *gin.Context) {
	res, err := s.daemon.SweepNow(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBulkResponse(res))
}

func (s *apiServer) handleReconcile(c *gin.Context) {
	results, err := s.daemon.ReconcileNow(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]sagaResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toSagaResponse(res))
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (s *apiServer) handleTestNotification(c *gin.Context) {
	sent, message, err := s.daemon.TestNotification(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"sent": false, "message": message, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent, "message": message})
}

func (s *apiServer) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed",
			logging.String("path", c.FullPath()),
			logging.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.ErrorKindValidation:
		return http.StatusBadRequest
	case services.ErrorKindNotFound:
		return http.StatusNotFound
	case services.ErrorKindConsistency:
		return http.StatusConflict
	case services.ErrorKindTransient, services.ErrorKindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toContentResponse(item *content.Content) contentResponse {
	resp := contentResponse{
		ID:           item.ID,
		Owner:        item.Owner,
		Type:         string(item.Type),
		Title:        item.Title,
		Status:       string(item.Status),
		ErrorMessage: item.ErrorMessage,
		Deleted:      item.Deleted,
		DeletedAt:    item.DeletedAt,
		Stages:       item.Stages,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
	return resp
}

func toSagaResponse(res deletion.Result) sagaResponse {
	out := sagaResponse{
		ContentID: res.ContentID,
		SagaID:    res.SagaID,
		Outcome:   string(res.Outcome),
		Rows:      res.Rows,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func toBulkResponse(res deletion.BulkResult) bulkResponse {
	out := bulkResponse{
		Succeeded:    append([]string{}, res.Succeeded...),
		Failed:       make([]sagaResponse, 0, len(res.Failed)),
		Inconsistent: append([]string{}, res.Inconsistent...),
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, sagaResponse{ContentID: f.ContentID, Error: f.Err.Error()})
	}
	return out
}
