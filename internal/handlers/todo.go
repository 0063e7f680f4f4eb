package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

const (
	minPriority           = 1
	maxPriority           = 5
	maxAttachmentMemory   = 32 << 20
	maxAttachmentBytes    = 64 << 20
	attachmentFormField   = "file"
	defaultAttachmentType = "application/octet-stream"
)

// TodoHandler provides HTTP handlers for the caller's own todos.
type TodoHandler struct {
	todoService *services.TodoService
	codec       *auth.Codec
}

// NewTodoHandler constructs a handler with the provided service.
func NewTodoHandler(todoService *services.TodoService, codec *auth.Codec) *TodoHandler {
	return &TodoHandler{
		todoService: todoService,
		codec:       codec,
	}
}

// TodoRouter registers todo routes on the given router.
func TodoRouter(r chi.Router, todoService *services.TodoService, codec *auth.Codec, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTodoHandler(todoService, codec)

	r.Get("/todo-page", handler.TodoPage)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.ListTodos)
		r.Post("/todo", handler.CreateTodo)
		r.Route("/todo/{todoID}", func(r chi.Router) {
			r.Get("/", handler.GetTodo)
			r.Put("/", handler.UpdateTodo)
			r.Delete("/", handler.DeleteTodo)
			r.Post("/attachment", handler.UploadAttachment)
			r.Get("/attachment", handler.DownloadAttachment)
		})
	})
}

// TodoPage renders the todo landing page. Browsers without a valid cookie
// are sent to the login page instead of getting a bare 401.
func (h *TodoHandler) TodoPage(w http.ResponseWriter, r *http.Request) {
	identity, err := resolveIdentity(r, h.codec)
	if err != nil {
		http.Redirect(w, r, loginPagePath, http.StatusFound)
		return
	}
	renderPage(w, "todo.html", pageData{Username: identity.Username})
}

func (h *TodoHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.todoService.List(r.Context(), identity.UserID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list todos")
		return
	}

	writeJSON(w, http.StatusOK, TodoListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *TodoHandler) GetTodo(w http.ResponseWriter, r *http.Request) {
	_, todo, ok := h.loadOwnedTodo(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (h *TodoHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := parseTodoPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.todoService.Create(r.Context(), types.Todo{
		OwnerID:     identity.UserID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Complete:    req.Complete,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create todo")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TodoHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	_, todo, ok := h.loadOwnedTodo(w, r)
	if !ok {
		return
	}

	req, err := parseTodoPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	todo.Title = req.Title
	todo.Description = req.Description
	todo.Priority = req.Priority
	todo.Complete = req.Complete

	if _, err := h.todoService.Update(r.Context(), todo); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "todo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update todo")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TodoHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	_, todo, ok := h.loadOwnedTodo(w, r)
	if !ok {
		return
	}

	if err := h.todoService.Delete(r.Context(), todo.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "todo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete todo")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadAttachment stores a multipart file upload for the todo.
func (h *TodoHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	_, todo, ok := h.loadOwnedTodo(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(attachmentFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "attachment file is required")
		return
	}
	defer file.Close()

	if header.Size > maxAttachmentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "attachment too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if strings.TrimSpace(contentType) == "" {
		contentType = defaultAttachmentType
	}

	attachment, err := h.todoService.AttachFile(r.Context(), todo.ID, header.Filename, contentType, file, header.Size)
	if err != nil {
		if errors.Is(err, services.ErrStorageDisabled) {
			writeError(w, http.StatusServiceUnavailable, "attachments are not available")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to store attachment")
		return
	}

	writeJSON(w, http.StatusCreated, attachment)
}

// DownloadAttachment streams the todo's attachment back to the caller.
func (h *TodoHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	_, todo, ok := h.loadOwnedTodo(w, r)
	if !ok {
		return
	}

	reader, attachment, err := h.todoService.OpenAttachment(r.Context(), todo.ID)
	if err != nil {
		if errors.Is(err, services.ErrStorageDisabled) {
			writeError(w, http.StatusServiceUnavailable, "attachments are not available")
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attachment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch attachment")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.Filename))
	if attachment.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	}
	_, _ = io.Copy(w, reader)
}

// TodoPayload is the JSON payload for creating or updating a todo.
type TodoPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Complete    bool   `json:"complete"`
}

// TodoListResponse is the paginated list response payload.
type TodoListResponse struct {
	Items []types.Todo `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

func parseTodoPayload(r *http.Request) (TodoPayload, error) {
	var req TodoPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return TodoPayload{}, errors.New("invalid request")
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return TodoPayload{}, errors.New("title is required")
	}
	if req.Priority < minPriority || req.Priority > maxPriority {
		return TodoPayload{}, fmt.Errorf("priority must be between %d and %d", minPriority, maxPriority)
	}
	return req, nil
}

// loadOwnedTodo resolves the route's todo and enforces that the caller owns
// it. Admins go through the /admin routes, not here.
func (h *TodoHandler) loadOwnedTodo(w http.ResponseWriter, r *http.Request) (auth.Identity, types.Todo, bool) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return auth.Identity{}, types.Todo{}, false
	}

	id, err := parseTodoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return auth.Identity{}, types.Todo{}, false
	}

	todo, err := h.todoService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "todo not found")
			return auth.Identity{}, types.Todo{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch todo")
		return auth.Identity{}, types.Todo{}, false
	}

	if todo.OwnerID != identity.UserID {
		writeError(w, http.StatusNotFound, "todo not found")
		return auth.Identity{}, types.Todo{}, false
	}

	return identity, todo, true
}

func parseTodoID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "todoID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid todo id")
	}
	return id, nil
}
