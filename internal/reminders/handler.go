package reminders

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgerpilot/ledgerpilot/internal/platform/httpx"
)

// Handler manages reminder endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers reminder routes. Tasks are addressed by list name
// and 1-based index.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/lists", h.createList)
	r.Get("/lists", h.lists)
	r.Get("/lists/{name}/tasks", h.tasks)
	r.Post("/lists/{name}/tasks", h.addTask)
	r.Post("/lists/{name}/tasks/{index}/complete", h.completeTask)
	r.Patch("/lists/{name}/tasks/{index}", h.editTask)
	r.Delete("/lists/{name}/tasks/{index}", h.deleteTask)
}

type createListRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) createList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	list, err := h.service.CreateList(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("create list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, list)
}

func (h *Handler) lists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.service.Lists(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lists": lists})
}

func (h *Handler) tasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.Tasks(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type addTaskRequest struct {
	Title string `json:"title" validate:"required"`
	Notes string `json:"notes"`
	DueAt string `json:"due_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (h *Handler) addTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	in := AddTaskInput{Title: req.Title, Notes: req.Notes}
	if req.DueAt != "" {
		due, err := parseRFC3339(req.DueAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation failed", "due_at must be RFC3339")
			return
		}
		in.DueAt = &due
	}
	task, err := h.service.AddTask(r.Context(), chi.URLParam(r, "name"), in)
	if err != nil {
		h.logger.Error("add task", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	index, ok := h.taskIndex(w, r)
	if !ok {
		return
	}
	task, err := h.service.CompleteTask(r.Context(), chi.URLParam(r, "name"), index)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

type editTaskRequest struct {
	Title *string `json:"title"`
	Notes *string `json:"notes"`
	DueAt *string `json:"due_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (h *Handler) editTask(w http.ResponseWriter, r *http.Request) {
	index, ok := h.taskIndex(w, r)
	if !ok {
		return
	}
	var req editTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	edit := TaskEdit{Title: req.Title, Notes: req.Notes}
	if req.DueAt != nil {
		due, err := parseRFC3339(*req.DueAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation failed", "due_at must be RFC3339")
			return
		}
		edit.DueAt = &due
	}
	task, err := h.service.EditTask(r.Context(), chi.URLParam(r, "name"), index, edit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	index, ok := h.taskIndex(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTask(r.Context(), chi.URLParam(r, "name"), index); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func (h *Handler) taskIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 1 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid task index", "index must be a positive integer")
		return 0, false
	}
	return index, true
}
