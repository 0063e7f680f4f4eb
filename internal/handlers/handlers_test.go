package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/apiserver/internal/auth"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// memUserRepo is an in-memory services.UserRepository.
type memUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: map[int]types.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) UpdatePhoneNumber(ctx context.Context, id int, phoneNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PhoneNumber = phoneNumber
	r.users[id] = user
	return nil
}

func (r *memUserRepo) UpdatePassword(ctx context.Context, id int, verify func(currentHash string) (string, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	newHash, err := verify(user.PasswordHash)
	if err != nil {
		return err
	}
	user.PasswordHash = newHash
	r.users[id] = user
	return nil
}

// memTodoRepo is an in-memory services.TodoRepository.
type memTodoRepo struct {
	mu     sync.Mutex
	nextID int
	todos  map[int]types.Todo
}

func newMemTodoRepo() *memTodoRepo {
	return &memTodoRepo{nextID: 1, todos: map[int]types.Todo{}}
}

func (r *memTodoRepo) ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]types.Todo, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []types.Todo
	for id := 1; id < r.nextID; id++ {
		if todo, ok := r.todos[id]; ok && todo.OwnerID == ownerID {
			items = append(items, todo)
		}
	}
	return paginate(items, offset, limit), len(items), nil
}

func (r *memTodoRepo) ListAll(ctx context.Context, offset, limit int) ([]types.Todo, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []types.Todo
	for id := 1; id < r.nextID; id++ {
		if todo, ok := r.todos[id]; ok {
			items = append(items, todo)
		}
	}
	return paginate(items, offset, limit), len(items), nil
}

func (r *memTodoRepo) Get(ctx context.Context, id int) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[id]
	if !ok {
		return types.Todo{}, store.ErrNotFound
	}
	return todo, nil
}

func (r *memTodoRepo) Create(ctx context.Context, todo types.Todo) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo.ID = r.nextID
	r.nextID++
	now := time.Now()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	r.todos[todo.ID] = todo
	return todo, nil
}

func (r *memTodoRepo) Update(ctx context.Context, todo types.Todo) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.todos[todo.ID]; !ok {
		return types.Todo{}, store.ErrNotFound
	}
	todo.UpdatedAt = time.Now()
	r.todos[todo.ID] = todo
	return todo, nil
}

func (r *memTodoRepo) SetAttachment(ctx context.Context, id int, attachment types.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[id]
	if !ok {
		return store.ErrNotFound
	}
	todo.Attachment = attachment
	r.todos[id] = todo
	return nil
}

func (r *memTodoRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.todos[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.todos, id)
	return nil
}

func paginate(items []types.Todo, offset, limit int) []types.Todo {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// capturePublisher records published events instead of talking to a broker.
type capturePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	Channel string
	Data    []byte
	Attrs   map[string]string
}

func (p *capturePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{Channel: channel, Data: data, Attrs: attrs})
	return "msg-1", nil
}

func (p *capturePublisher) all() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

type testEnv struct {
	router        *chi.Mux
	users         *memUserRepo
	todos         *memTodoRepo
	events        *capturePublisher
	codec         *auth.Codec
	userService   *services.UserService
	authenticator *auth.Authenticator
}

// newTestEnv wires the full route tree over in-memory repositories, the
// same way the server package does over Postgres.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newMemUserRepo()
	todos := newMemTodoRepo()
	events := &capturePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	codec := auth.NewCodec("test-secret", 20*time.Minute)
	userService := services.NewUserService(users)
	todoService := services.NewTodoService(todos, events, nil, logger)
	authenticator := auth.NewAuthenticator(users, codec)
	authMiddleware := RequireAuth(codec)

	router := chi.NewRouter()
	router.Get("/healthy", Healthy)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, authenticator)
	})
	router.Route("/user", func(r chi.Router) {
		UserRouter(r, userService, authenticator, authMiddleware)
	})
	router.Route("/todos", func(r chi.Router) {
		TodoRouter(r, todoService, codec, authMiddleware)
	})
	router.Route("/admin", func(r chi.Router) {
		AdminRouter(r, todoService, authMiddleware)
	})

	return &testEnv{
		router:        router,
		users:         users,
		todos:         todos,
		events:        events,
		codec:         codec,
		userService:   userService,
		authenticator: authenticator,
	}
}

// mustRegister creates an account directly through the service layer and
// returns the stored user.
func (env *testEnv) mustRegister(t *testing.T, username, password string, role types.Role) types.User {
	t.Helper()

	user, err := env.userService.Register(context.Background(), types.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	}, password)
	require.NoError(t, err)
	return user
}

// mustToken issues a token for the user.
func (env *testEnv) mustToken(t *testing.T, user types.User) string {
	t.Helper()

	token, err := env.authenticator.IssueToken(user)
	require.NoError(t, err)
	return token
}

func decodeBody(w *httptest.ResponseRecorder, value any) error {
	return json.NewDecoder(w.Body).Decode(value)
}

// newExpiredCodec signs with the test secret but a negative TTL, producing
// tokens that are already expired.
func newExpiredCodec() *auth.Codec {
	return auth.NewCodec("test-secret", -time.Minute)
}

func identityFor(user types.User) auth.Identity {
	return auth.Identity{
		Username: user.Username,
		UserID:   user.ID,
		Role:     user.Role,
	}
}
