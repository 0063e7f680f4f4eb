package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

const (
	accessTokenCookie = "access_token"
	loginPagePath     = "/auth/login-page"
	todoPagePath      = "/todos/todo-page"
)

// AuthHandler provides authentication endpoints: account creation, the
// OAuth2-style password grant, and the browser form flows.
type AuthHandler struct {
	userService   *services.UserService
	authenticator *auth.Authenticator
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{
		userService:   userService,
		authenticator: authenticator,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, authenticator *auth.Authenticator) {
	handler := NewAuthHandler(userService, authenticator)

	r.Post("/", handler.CreateUser)
	r.Post("/token", handler.Token)
	r.Post("/login", handler.Login)
	r.Post("/register", handler.RegisterForm)
	r.Get("/login-page", handler.LoginPage)
	r.Get("/register-page", handler.RegisterPage)
}

// RequireAuth resolves the request's credential (Authorization header or
// access_token cookie) into an identity and injects it into the request
// context. Every failure mode collapses into one 401 so callers cannot
// probe token structure.
func RequireAuth(codec *auth.Codec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolveIdentity(r, codec)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), contextIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveIdentity(r *http.Request, codec *auth.Codec) (auth.Identity, error) {
	tokenString, err := auth.ExtractToken(r)
	if err != nil {
		return auth.Identity{}, err
	}
	return codec.Decode(tokenString)
}

// CreateUserRequest is the JSON payload for account creation.
type CreateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	PhoneNumber string `json:"phone_number"`
}

// TokenResponse is the password-grant response payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateUser creates a new account from a JSON payload.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.registerUser(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username or email already in use")
			return
		}
		var vErr validationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Token implements the OAuth2-style password grant: form-encoded
// credentials in, bearer token out. Failures are a uniform 401.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	user, err := h.authenticator.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.authenticator.IssueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Login handles the browser form flow: on success it stores the token in
// the access_token cookie and redirects to the todo page; on failure it
// re-renders the login page with an inline error.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderPage(w, "login.html", pageData{Error: "Invalid username or password"})
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	user, err := h.authenticator.Authenticate(r.Context(), username, password)
	if err != nil {
		renderPage(w, "login.html", pageData{Error: "Invalid username or password"})
		return
	}

	token, err := h.authenticator.IssueToken(user)
	if err != nil {
		renderPage(w, "login.html", pageData{Error: "Invalid username or password"})
		return
	}

	setAccessTokenCookie(w, token)
	http.Redirect(w, r, todoPagePath, http.StatusSeeOther)
}

// RegisterForm creates an account from a browser form and redirects to the
// login page.
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	req, err := parseRegisterForm(r)
	if err != nil {
		renderPage(w, "register.html", pageData{Error: err.Error()})
		return
	}

	if _, err := h.registerUser(r.Context(), req); err != nil {
		if errors.Is(err, store.ErrConflict) {
			renderPage(w, "register.html", pageData{Error: "Username or email already in use"})
			return
		}
		var vErr validationError
		if errors.As(err, &vErr) {
			renderPage(w, "register.html", pageData{Error: vErr.Error()})
			return
		}
		renderPage(w, "register.html", pageData{Error: "Registration failed"})
		return
	}

	http.Redirect(w, r, loginPagePath, http.StatusFound)
}

// LoginPage renders the login form.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, "login.html", pageData{})
}

// RegisterPage renders the registration form.
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, "register.html", pageData{})
}

type validationError struct {
	message string
}

func (e validationError) Error() string {
	return e.message
}

func (h *AuthHandler) registerUser(ctx context.Context, req CreateUserRequest) (types.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return types.User{}, validationError{"username, email and password are required"}
	}

	roleValue := req.Role
	if strings.TrimSpace(roleValue) == "" {
		roleValue = string(types.RoleUser)
	}
	role, err := types.ParseRole(roleValue)
	if err != nil {
		return types.User{}, validationError{"invalid role"}
	}

	return h.userService.Register(ctx, types.User{
		Username:    req.Username,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Role:        role,
	}, req.Password)
}

func parseRegisterForm(r *http.Request) (CreateUserRequest, error) {
	if err := r.ParseForm(); err != nil {
		return CreateUserRequest{}, validationError{"invalid form"}
	}

	firstName := r.PostFormValue("first_name")
	if firstName == "" {
		firstName = r.PostFormValue("firstname")
	}
	lastName := r.PostFormValue("last_name")
	if lastName == "" {
		lastName = r.PostFormValue("lastname")
	}

	return CreateUserRequest{
		Username:    r.PostFormValue("username"),
		Email:       r.PostFormValue("email"),
		FirstName:   firstName,
		LastName:    lastName,
		Password:    r.PostFormValue("password"),
		Role:        r.PostFormValue("role"),
		PhoneNumber: r.PostFormValue("phone_number"),
	}, nil
}

// setAccessTokenCookie stores the token for browser clients. The cookie is
// HttpOnly with SameSite=Lax but not Secure-flagged, so it is only
// appropriate behind TLS termination.
func setAccessTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "Bearer " + token,
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	})
}
