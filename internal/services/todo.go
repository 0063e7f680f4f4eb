package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/taskdeck/apiserver/internal/storage"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// TodoEventsChannel is the queue/topic name todo lifecycle events go to.
const TodoEventsChannel = "todo-events"

// ErrStorageDisabled is returned for attachment operations when no object
// storage backend is configured.
var ErrStorageDisabled = errors.New("attachment storage is not configured")

// TodoRepository defines persistence operations for todos.
type TodoRepository interface {
	ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]types.Todo, int, error)
	ListAll(ctx context.Context, offset, limit int) ([]types.Todo, int, error)
	Get(ctx context.Context, id int) (types.Todo, error)
	Create(ctx context.Context, todo types.Todo) (types.Todo, error)
	Update(ctx context.Context, todo types.Todo) (types.Todo, error)
	SetAttachment(ctx context.Context, id int, attachment types.Attachment) error
	Delete(ctx context.Context, id int) error
}

// EventPublisher sends todo lifecycle events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// TodoService encapsulates todo use-cases. Events and attachments are
// optional: a nil publisher skips event publishing and a nil storage makes
// attachment operations fail with ErrStorageDisabled.
type TodoService struct {
	repo    TodoRepository
	events  EventPublisher
	storage *storage.Storage
	logger  *slog.Logger
}

func NewTodoService(repo TodoRepository, events EventPublisher, store *storage.Storage, logger *slog.Logger) *TodoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TodoService{
		repo:    repo,
		events:  events,
		storage: store,
		logger:  logger,
	}
}

func (s *TodoService) List(ctx context.Context, ownerID, offset, limit int) ([]types.Todo, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListByOwner(ctx, ownerID, offset, limit)
}

func (s *TodoService) ListAll(ctx context.Context, offset, limit int) ([]types.Todo, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListAll(ctx, offset, limit)
}

func (s *TodoService) Get(ctx context.Context, id int) (types.Todo, error) {
	return s.repo.Get(ctx, id)
}

func (s *TodoService) Create(ctx context.Context, todo types.Todo) (types.Todo, error) {
	created, err := s.repo.Create(ctx, todo)
	if err != nil {
		return types.Todo{}, err
	}
	s.publish(ctx, types.TodoEventCreated, created)
	return created, nil
}

func (s *TodoService) Update(ctx context.Context, todo types.Todo) (types.Todo, error) {
	previous, err := s.repo.Get(ctx, todo.ID)
	if err != nil {
		return types.Todo{}, err
	}
	updated, err := s.repo.Update(ctx, todo)
	if err != nil {
		return types.Todo{}, err
	}
	if !previous.Complete && updated.Complete {
		s.publish(ctx, types.TodoEventCompleted, updated)
	}
	return updated, nil
}

func (s *TodoService) Delete(ctx context.Context, id int) error {
	todo, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if todo.Attachment.ObjectKey != "" && s.storage != nil {
		if err := s.storage.Delete(ctx, todo.Attachment.ObjectKey); err != nil {
			s.logger.Warn("failed to delete attachment object",
				"todo_id", id, "object_key", todo.Attachment.ObjectKey, "error", err)
		}
	}
	s.publish(ctx, types.TodoEventDeleted, todo)
	return nil
}

// AttachFile uploads the file to object storage and records the reference
// on the todo.
func (s *TodoService) AttachFile(ctx context.Context, todoID int, filename, contentType string, r io.Reader, size int64) (types.Attachment, error) {
	if s.storage == nil {
		return types.Attachment{}, ErrStorageDisabled
	}

	if _, err := s.repo.Get(ctx, todoID); err != nil {
		return types.Attachment{}, err
	}

	key := fmt.Sprintf("todos/%d/%d-%s", todoID, time.Now().UnixNano(), filename)
	if err := s.storage.Put(ctx, key, r, size, contentType); err != nil {
		return types.Attachment{}, err
	}

	attachment := types.Attachment{
		ObjectKey:   key,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
	}
	if err := s.repo.SetAttachment(ctx, todoID, attachment); err != nil {
		return types.Attachment{}, err
	}
	return attachment, nil
}

// OpenAttachment streams the todo's attachment from object storage.
func (s *TodoService) OpenAttachment(ctx context.Context, todoID int) (io.ReadCloser, types.Attachment, error) {
	if s.storage == nil {
		return nil, types.Attachment{}, ErrStorageDisabled
	}

	todo, err := s.repo.Get(ctx, todoID)
	if err != nil {
		return nil, types.Attachment{}, err
	}
	if todo.Attachment.ObjectKey == "" {
		return nil, types.Attachment{}, store.ErrNotFound
	}

	reader, err := s.storage.Get(ctx, todo.Attachment.ObjectKey)
	if err != nil {
		return nil, types.Attachment{}, err
	}
	return reader, todo.Attachment, nil
}

func (s *TodoService) publish(ctx context.Context, kind string, todo types.Todo) {
	if s.events == nil {
		return
	}
	event := types.TodoEvent{
		Kind:       kind,
		TodoID:     todo.ID,
		OwnerID:    todo.OwnerID,
		Title:      todo.Title,
		OccurredAt: time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to encode todo event", "kind", kind, "error", err)
		return
	}
	attrs := map[string]string{
		"kind":     kind,
		"owner_id": strconv.Itoa(todo.OwnerID),
	}
	if _, err := s.events.Publish(ctx, TodoEventsChannel, data, attrs); err != nil {
		s.logger.Warn("failed to publish todo event", "kind", kind, "todo_id", todo.ID, "error", err)
	}
}
