package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
	"board-api/gateway"
)

// Register wires up all board routes on the provided Echo instance.
func Register(e *echo.Echo, sessions *Sessions, auth Authenticator, rc *redis.Client, logger *log.Logger) {
	e.GET("/api/board", getBoard(sessions, auth, logger))
	e.PUT("/api/board/view", putView(sessions, auth))
	e.POST("/api/board/refresh", postRefresh(sessions, auth))
	e.POST("/api/board/drag", postDragStart(sessions, auth))
	e.PUT("/api/board/drag", putDragTarget(sessions, auth))
	e.POST("/api/board/drag/end", postDragEnd(sessions, auth))
	e.POST("/api/board/drag/cancel", postDragCancel(sessions, auth))
	e.POST("/api/tasks", postTask(sessions, auth))
	e.PATCH("/api/tasks/:id", patchTask(sessions, auth))
	e.DELETE("/api/tasks/:id", deleteTask(sessions, auth))
	e.GET("/api/stream", streamBoard(sessions, auth, rc, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func boardPayload(eng *board.Engine) boardResponse {
	opts := eng.Options()
	resp := boardResponse{
		Columns:  eng.Columns(),
		Notices:  eng.Notices(),
		Search:   opts.Search,
		Priority: opts.Priority,
		Sort:     opts.Sort,
	}
	if session, ok := eng.DragSession(); ok {
		resp.Dragging = session.TaskID()
	}
	return resp
}

func countTasks(cols []board.Column) int {
	n := 0
	for _, col := range cols {
		n += len(col.Tasks)
	}
	return n
}

func getBoard(sessions *Sessions, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		refreshStart := time.Now()
		eng, engErr := sessions.Engine(ctx, userID)
		metrics.ObserveRefresh(time.Since(refreshStart))
		if engErr != nil {
			metrics.SetErrorStage("refresh")
			c.Logger().Error(engErr)
			err = c.String(http.StatusServiceUnavailable, "board unavailable, retry shortly")
			return err
		}

		resp := boardPayload(eng)
		metrics.SetTasksRendered(countTasks(resp.Columns))
		metrics.SetDragActive(resp.Dragging != "")

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// engineFor resolves the caller's engine, writing the error response itself.
func engineFor(c echo.Context, sessions *Sessions, auth Authenticator) (*board.Engine, bool, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
	if err != nil {
		return nil, false, c.String(http.StatusUnauthorized, err.Error())
	}
	eng, err := sessions.Engine(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Error(err)
		return nil, false, c.String(http.StatusServiceUnavailable, "board unavailable, retry shortly")
	}
	return eng, true, nil
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, patchRequestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func postRefresh(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		if err := eng.Refresh(c.Request().Context()); err != nil {
			// Last-known-good contents are retained; the client keeps its
			// board and may retry.
			return c.JSON(http.StatusServiceUnavailable, mutationResponse{Error: "refresh failed, retry shortly"})
		}
		return c.JSON(http.StatusOK, boardPayload(eng))
	}
}

type viewRequest struct {
	Search   *string                `json:"search"`
	Priority sonic.NoCopyRawMessage `json:"priority"`
	Sort     *string                `json:"sort"`
}

func putView(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		var req viewRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Search != nil {
			eng.SetSearch(*req.Search)
		}
		if len(req.Priority) > 0 {
			if bytes.Equal(req.Priority, []byte("null")) {
				_ = eng.SetPriorityFilter(nil)
			} else {
				var raw string
				if err := sonic.Unmarshal(req.Priority, &raw); err != nil {
					return c.String(http.StatusBadRequest, "invalid priority")
				}
				p, err := domain.ParsePriority(raw)
				if err != nil {
					return c.String(http.StatusBadRequest, err.Error())
				}
				_ = eng.SetPriorityFilter(&p)
			}
		}
		if req.Sort != nil {
			key, err := board.ParseSortKey(*req.Sort)
			if err != nil {
				return c.String(http.StatusBadRequest, err.Error())
			}
			_ = eng.SetSort(key)
		}
		return c.JSON(http.StatusOK, boardPayload(eng))
	}
}

type dragStartRequest struct {
	TaskID string `json:"taskId"`
}

func postDragStart(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		var req dragStartRequest
		if err := decodeBody(c, &req); err != nil || req.TaskID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		switch err := eng.BeginDrag(req.TaskID); {
		case errors.Is(err, board.ErrDragActive):
			return c.String(http.StatusConflict, err.Error())
		case errors.Is(err, board.ErrUnknownTask):
			return c.String(http.StatusNotFound, err.Error())
		case err != nil:
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, boardPayload(eng))
	}
}

type pointerPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type dragTargetRequest struct {
	Status  string             `json:"status,omitempty"`
	Pointer *pointerPosition   `json:"pointer,omitempty"`
	Targets []board.DropTarget `json:"targets,omitempty"`
}

func putDragTarget(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		var req dragTargetRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		if req.Pointer != nil {
			_, _, err := eng.UpdateDragPointer(req.Pointer.X, req.Pointer.Y, req.Targets)
			if errors.Is(err, board.ErrNoDrag) {
				return c.String(http.StatusConflict, err.Error())
			}
			if err != nil {
				return c.String(http.StatusBadRequest, err.Error())
			}
			return c.JSON(http.StatusOK, boardPayload(eng))
		}

		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err := eng.UpdateDragTarget(status); err != nil {
			if errors.Is(err, board.ErrNoDrag) {
				return c.String(http.StatusConflict, err.Error())
			}
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, boardPayload(eng))
	}
}

func postDragEnd(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		committed, err := eng.EndDrag(c.Request().Context())
		if errors.Is(err, board.ErrNoDrag) {
			return c.String(http.StatusConflict, err.Error())
		}
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, dragEndResponse{Committed: committed, Columns: eng.Columns()})
	}
}

func postDragCancel(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		eng.CancelDrag()
		return c.JSON(http.StatusOK, boardPayload(eng))
	}
}

type createTaskRequest struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Status      string                 `json:"status"`
	Priority    string                 `json:"priority,omitempty"`
	DueDate     string                 `json:"dueDate,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Checklist   []domain.ChecklistItem `json:"checklist,omitempty"`
}

func postTask(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		fields := domain.Fields{
			Title:       req.Title,
			Description: req.Description,
			Status:      domain.Status(req.Status),
			Priority:    domain.Priority(req.Priority),
			Tags:        req.Tags,
			Checklist:   req.Checklist,
		}
		if req.DueDate != "" {
			due, err := parseDueDate(req.DueDate)
			if err != nil {
				return c.String(http.StatusBadRequest, err.Error())
			}
			fields.DueDate = &due
		}
		if err := fields.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		task, err := eng.CreateTask(c.Request().Context(), fields)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		return c.JSON(http.StatusCreated, task)
	}
}

type taskPatchRequest struct {
	Title          *string                 `json:"title"`
	Description    *string                 `json:"description"`
	Status         *string                 `json:"status"`
	Priority       *string                 `json:"priority"`
	DueDate        sonic.NoCopyRawMessage  `json:"dueDate"`
	Tags           *[]string               `json:"tags"`
	Checklist      *[]domain.ChecklistItem `json:"checklist"`
	IdempotencyKey string                  `json:"idempotencyKey"`
}

func (r taskPatchRequest) toPatch() (domain.Patch, error) {
	var patch domain.Patch
	patch.Title = r.Title
	patch.Description = r.Description
	if r.Status != nil {
		status, err := domain.ParseStatus(*r.Status)
		if err != nil {
			return domain.Patch{}, err
		}
		patch.Status = &status
	}
	if r.Priority != nil {
		priority, err := domain.ParsePriority(*r.Priority)
		if err != nil {
			return domain.Patch{}, err
		}
		patch.Priority = &priority
	}
	if len(r.DueDate) > 0 {
		if bytes.Equal(r.DueDate, []byte("null")) {
			patch.ClearDueDate = true
		} else {
			var raw string
			if err := sonic.Unmarshal(r.DueDate, &raw); err != nil {
				return domain.Patch{}, err
			}
			due, err := parseDueDate(raw)
			if err != nil {
				return domain.Patch{}, err
			}
			patch.DueDate = &due
		}
	}
	patch.Tags = r.Tags
	patch.Checklist = r.Checklist
	return patch, nil
}

func patchTask(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		var req taskPatchRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		patch, err := req.toPatch()
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		key := req.IdempotencyKey
		if key == "" {
			key = uuid.NewString()
		}
		switch err := eng.UpdateTask(c.Request().Context(), c.Param("id"), patch, key); {
		case errors.Is(err, board.ErrUnknownTask), gateway.IsNotFound(err):
			return c.String(http.StatusNotFound, "task not found")
		case err != nil:
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusAccepted, mutationResponse{IdempotencyKey: key})
	}
}

func deleteTask(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		eng, ok, err := engineFor(c, sessions, auth)
		if !ok {
			return err
		}
		switch err := eng.DeleteTask(c.Request().Context(), c.Param("id")); {
		case errors.Is(err, board.ErrUnknownTask):
			return c.String(http.StatusNotFound, "task not found")
		case err != nil:
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to delete task")
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func parseDueDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
