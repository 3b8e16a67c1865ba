package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/downloaddb/internal/download"
	"github.com/slipstream/downloaddb/internal/repository"
)

// CreateTaskInput is the body of POST /api/v1/tasks.
type CreateTaskInput struct {
	URL        string `json:"url"`
	TargetPath string `json:"targetPath"`
	Status     string `json:"status,omitempty"` // label accepted by download.ParseStatus
}

// UpdateStatusInput is the body of PUT /api/v1/tasks/:id/status.
type UpdateStatusInput struct {
	Status string `json:"status"`
}

// ProgressInput is the body of PUT /api/v1/tasks/:id/progress.
type ProgressInput struct {
	DownloadedBytes uint64  `json:"downloadedBytes"`
	TotalBytes      *uint64 `json:"totalBytes,omitempty"`
	SpeedBPS        uint64  `json:"speedBps"`
	ETASeconds      *uint64 `json:"etaSeconds,omitempty"`
}

// ProgressResponse is a progress snapshot plus its completion percentage when known.
type ProgressResponse struct {
	download.Progress
	Percentage *float64 `json:"percentage,omitempty"`
}

// TaskResponse is a task with its progress, if any.
type TaskResponse struct {
	*download.Task
	Progress *ProgressResponse `json:"progress,omitempty"`
}

// StatsResponse summarizes the store.
type StatsResponse struct {
	Total    int64         `json:"total"`
	ByStatus []StatusStats `json:"byStatus"`
}

// StatusStats is the task count for one status label.
type StatusStats struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

func newProgressResponse(p *download.Progress) *ProgressResponse {
	resp := &ProgressResponse{Progress: *p}
	if pct, ok := p.CompletionPercentage(); ok {
		resp.Percentage = &pct
	}
	return resp
}

func (s *Server) listTasks(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		tasks []*download.Task
		err   error
	)
	if label := c.QueryParam("status"); label != "" {
		status, perr := download.ParseStatus(label)
		if perr != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": perr.Error()})
		}
		tasks, err = s.repo.ListTasksByStatus(ctx, status)
	} else {
		tasks, err = s.repo.ListTasks(ctx)
	}
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) createTask(c echo.Context) error {
	ctx := c.Request().Context()

	var input CreateTaskInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(input.URL) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	task := download.NewTask(input.URL, input.TargetPath)
	if input.Status != "" {
		status, err := download.ParseStatus(input.Status)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		task.Status = status
	}

	res, err := s.repo.SaveTask(ctx, task)
	if err != nil {
		return s.errorResponse(c, err)
	}

	if res.Merged {
		return c.JSON(http.StatusOK, res.Task)
	}
	return c.JSON(http.StatusCreated, res.Task)
}

func (s *Server) clearTasks(c echo.Context) error {
	if err := s.repo.ClearAll(c.Request().Context()); err != nil {
		return s.errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) lookupTask(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url query parameter is required"})
	}

	task, err := s.repo.GetTaskByURL(c.Request().Context(), url)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) getTask(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := download.ParseTaskID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return s.errorResponse(c, err)
	}

	resp := TaskResponse{Task: task}
	progress, err := s.repo.GetProgress(ctx, id)
	switch {
	case err == nil:
		resp.Progress = newProgressResponse(progress)
	case !repository.IsNotFound(err):
		return s.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteTask(c echo.Context) error {
	id, err := download.ParseTaskID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.repo.DeleteTask(c.Request().Context(), id); err != nil {
		return s.errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) updateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := download.ParseTaskID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	var input UpdateStatusInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	status, err := download.ParseStatus(input.Status)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return s.errorResponse(c, err)
	}

	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) getProgress(c echo.Context) error {
	id, err := download.ParseTaskID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	progress, err := s.repo.GetProgress(c.Request().Context(), id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, newProgressResponse(progress))
}

func (s *Server) saveProgress(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := download.ParseTaskID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	var input ProgressInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	// Report a missing task as 404 rather than as a foreign key failure.
	if _, err := s.repo.GetTask(ctx, id); err != nil {
		return s.errorResponse(c, err)
	}

	progress := &download.Progress{
		DownloadedBytes: input.DownloadedBytes,
		TotalBytes:      input.TotalBytes,
		SpeedBPS:        input.SpeedBPS,
		ETASeconds:      input.ETASeconds,
	}
	if err := s.repo.SaveProgress(ctx, id, progress); err != nil {
		return s.errorResponse(c, err)
	}

	stored, err := s.repo.GetProgress(ctx, id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, newProgressResponse(stored))
}

func (s *Server) deleteProgress(c echo.Context) error {
	id, err := download.ParseTaskID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.repo.DeleteProgress(c.Request().Context(), id); err != nil {
		return s.errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getStats(c echo.Context) error {
	ctx := c.Request().Context()

	total, err := s.repo.CountTasks(ctx)
	if err != nil {
		return s.errorResponse(c, err)
	}
	counts, err := s.repo.CountTasksByStatus(ctx)
	if err != nil {
		return s.errorResponse(c, err)
	}

	resp := StatsResponse{Total: total, ByStatus: make([]StatusStats, 0, len(counts))}
	for _, sc := range counts {
		resp.ByStatus = append(resp.ByStatus, StatusStats{Status: sc.Label(), Count: sc.Count})
	}
	sort.Slice(resp.ByStatus, func(i, j int) bool {
		return resp.ByStatus[i].Status < resp.ByStatus[j].Status
	})

	return c.JSON(http.StatusOK, resp)
}

// errorResponse maps repository errors to HTTP status codes.
func (s *Server) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrTaskNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidRecord):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
