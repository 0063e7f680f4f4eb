package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
)

const minPasswordLength = 6

// UserHandler provides endpoints for the caller's own account.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler constructs a UserHandler with the provided service.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes on the given router. Registration is
// public; everything else requires a valid identity.
func UserRouter(r chi.Router, userService *services.UserService, authenticator *auth.Authenticator, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUserHandler(userService)
	authHandler := NewAuthHandler(userService, authenticator)

	r.Post("/register", authHandler.RegisterForm)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.GetSelf)
		r.Put("/password", handler.ChangePassword)
		r.Put("/phonenumber/{phoneNumber}", handler.ChangePhoneNumber)
	})
}

// GetSelf returns the caller's own user record. The password hash never
// appears in the response body.
func (h *UserHandler) GetSelf(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ChangePasswordRequest is the payload for a password change.
type ChangePasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword re-verifies the current password and stores the new one.
// Validation happens before any write.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusUnprocessableEntity, "new_password must be at least 6 characters")
		return
	}

	if err := h.userService.ChangePassword(r.Context(), identity.UserID, req.Password, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePhoneNumber updates the caller's phone number.
func (h *UserHandler) ChangePhoneNumber(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	phoneNumber := strings.TrimSpace(chi.URLParam(r, "phoneNumber"))
	if phoneNumber == "" {
		writeError(w, http.StatusBadRequest, "phone number is required")
		return
	}

	if err := h.userService.ChangePhoneNumber(r.Context(), identity.UserID, phoneNumber); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update phone number")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
