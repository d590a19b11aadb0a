package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-api/internal/auth"
	"github.com/BuzzLyutic/todo-api/internal/model"
	"github.com/BuzzLyutic/todo-api/internal/repo"
	"github.com/BuzzLyutic/todo-api/internal/service"
	"github.com/BuzzLyutic/todo-api/pkg/respond"
)

type TaskHandler struct {
	service *service.TaskService
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
	}
}

// Routes mounts the task endpoints; they expect Authenticate to run first.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{task_id}", h.Get)
	r.Put("/{task_id}", h.Update)
	r.Patch("/{task_id}/complete", h.Toggle)
	r.Delete("/{task_id}", h.Delete)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	access, ok := h.access(w, r)
	if !ok {
		return
	}

	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	task, err := h.service.Create(r.Context(), access, in)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/%s/tasks/%d", url.PathEscape(access.OwnerID), task.ID))
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	access, ok := h.access(w, r)
	if !ok {
		return
	}

	q, err := parseListQuery(r)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), access, q)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, page)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	access, ok := h.access(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), access, id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	access, ok := h.access(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	task, err := h.service.Update(r.Context(), access, id, in)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	access, ok := h.access(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.service.ToggleComplete(r.Context(), access, id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	access, ok := h.access(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), access, id); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// access checks the path owner against the verified caller before anything
// else about the request is looked at.
func (h *TaskHandler) access(w http.ResponseWriter, r *http.Request) (service.Access, bool) {
	caller, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respond.Unauthorized(w, r, unauthenticatedMessage)
		return service.Access{}, false
	}

	a := service.Access{OwnerID: chi.URLParam(r, "user_id"), CallerID: caller}
	if err := h.service.AssertOwnership(a.OwnerID, a.CallerID); err != nil {
		h.logger.Info("cross-user access attempt",
			zap.String("caller", caller),
			zap.String("path_owner", a.OwnerID),
			zap.String("path", r.URL.Path),
		)
		h.handleErrors(w, r, err)
		return service.Access{}, false
	}
	return a, true
}

func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "task_id"), 10, 64)
	if err != nil {
		respond.FieldError(w, r, http.StatusBadRequest, "validation error", "task_id", "must be an integer")
		return 0, false
	}
	return id, true
}

func (h *TaskHandler) decodeInput(w http.ResponseWriter, r *http.Request) (model.TaskInput, bool) {
	var in model.TaskInput
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return in, false
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Debug("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return in, false
	}
	return in, true
}

func parseListQuery(r *http.Request) (model.ListQuery, error) {
	q := model.DefaultListQuery()
	values := r.URL.Query()

	if v := values.Get("status"); v != "" {
		q.Status = model.StatusFilter(v)
	}
	if v := values.Get("sort"); v != "" {
		q.Sort = model.SortField(v)
	}
	if v := values.Get("order"); v != "" {
		q.Order = model.SortOrder(v)
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, &service.ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		q.Limit = n
	}
	if v := values.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, &service.ValidationError{Field: "offset", Reason: "must be an integer"}
		}
		q.Offset = n
	}

	return q, service.ValidateQuery(q)
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.FieldError(w, r, http.StatusBadRequest, "validation error", verr.Field, verr.Reason)
	case errors.Is(err, service.ErrForbidden):
		respond.Error(w, r, http.StatusForbidden, service.ErrForbidden.Error())
	case errors.Is(err, service.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, service.ErrNotFound.Error())
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, "conflict")
	default:
		h.logger.Error("internal error", zap.Error(err), zap.String("path", r.URL.Path))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
