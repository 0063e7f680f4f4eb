package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// AdminHandler provides admin-only handlers over every user's todos.
type AdminHandler struct {
	todoService *services.TodoService
}

// NewAdminHandler constructs a handler with the provided service.
func NewAdminHandler(todoService *services.TodoService) *AdminHandler {
	return &AdminHandler{todoService: todoService}
}

// AdminRouter registers admin routes on the given router. Every route
// requires authentication plus the admin role.
func AdminRouter(r chi.Router, todoService *services.TodoService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAdminHandler(todoService)

	r.Use(authMiddleware, requireAdmin)
	r.Get("/todo", handler.ListAllTodos)
	r.Delete("/todo/{todoID}", handler.DeleteAnyTodo)
}

// requireAdmin gates a route on the role resolved from the token. The
// check is a plain equality test against the closed role set.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := identityFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if identity.Role != types.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListAllTodos returns every user's todos, paginated.
func (h *AdminHandler) ListAllTodos(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.todoService.ListAll(r.Context(), offset, limit)
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

// DeleteAnyTodo removes any user's todo by id.
func (h *AdminHandler) DeleteAnyTodo(w http.ResponseWriter, r *http.Request) {
	id, err := parseTodoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.todoService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "todo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete todo")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
