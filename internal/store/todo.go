package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/taskdeck/apiserver/types"
)

// TodoRepository handles persistence for todos.
type TodoRepository struct {
	db *sql.DB
}

func NewTodoRepository(db *sql.DB) *TodoRepository {
	return &TodoRepository{db: db}
}

// ListByOwner returns the owner's todos, paginated, ordered by id.
func (r *TodoRepository) ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]types.Todo, int, error) {
	const countQuery = `SELECT COUNT(1) FROM todos WHERE owner_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT id, owner_id, title, description, priority, complete, attachment, created_at, updated_at
		FROM todos
		WHERE owner_id = $1
		ORDER BY id
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, ownerID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	todos, err := collectTodos(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return todos, total, nil
}

// ListAll returns every user's todos, paginated, ordered by id. Reserved
// for admin callers.
func (r *TodoRepository) ListAll(ctx context.Context, offset, limit int) ([]types.Todo, int, error) {
	const countQuery = `SELECT COUNT(1) FROM todos`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT id, owner_id, title, description, priority, complete, attachment, created_at, updated_at
		FROM todos
		ORDER BY id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	todos, err := collectTodos(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return todos, total, nil
}

func (r *TodoRepository) Get(ctx context.Context, id int) (types.Todo, error) {
	const query = `
		SELECT id, owner_id, title, description, priority, complete, attachment, created_at, updated_at
		FROM todos
		WHERE id = $1`
	var todo types.Todo
	var attachmentJSON []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&todo.ID,
		&todo.OwnerID,
		&todo.Title,
		&todo.Description,
		&todo.Priority,
		&todo.Complete,
		&attachmentJSON,
		&todo.CreatedAt,
		&todo.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Todo{}, ErrNotFound
		}
		return types.Todo{}, err
	}
	_ = json.Unmarshal(attachmentJSON, &todo.Attachment)
	return todo, nil
}

func (r *TodoRepository) Create(ctx context.Context, todo types.Todo) (types.Todo, error) {
	now := time.Now()
	todo.CreatedAt = now
	todo.UpdatedAt = now

	attachmentJSON, err := json.Marshal(todo.Attachment)
	if err != nil {
		return types.Todo{}, err
	}

	const query = `
		INSERT INTO todos (owner_id, title, description, priority, complete, attachment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		todo.OwnerID,
		todo.Title,
		todo.Description,
		todo.Priority,
		todo.Complete,
		attachmentJSON,
		todo.CreatedAt,
		todo.UpdatedAt,
	).Scan(&todo.ID); err != nil {
		return types.Todo{}, err
	}
	return todo, nil
}

func (r *TodoRepository) Update(ctx context.Context, todo types.Todo) (types.Todo, error) {
	todo.UpdatedAt = time.Now()

	const query = `
		UPDATE todos
		SET title = $1,
			description = $2,
			priority = $3,
			complete = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		todo.Title,
		todo.Description,
		todo.Priority,
		todo.Complete,
		todo.UpdatedAt,
		todo.ID,
	)
	if err != nil {
		return types.Todo{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Todo{}, err
	}
	if affected == 0 {
		return types.Todo{}, ErrNotFound
	}
	return todo, nil
}

// SetAttachment records the object-storage reference for a todo.
func (r *TodoRepository) SetAttachment(ctx context.Context, id int, attachment types.Attachment) error {
	attachmentJSON, err := json.Marshal(attachment)
	if err != nil {
		return err
	}

	const query = `
		UPDATE todos
		SET attachment = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, attachmentJSON, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TodoRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM todos WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func collectTodos(rows *sql.Rows, limit int) ([]types.Todo, error) {
	todos := make([]types.Todo, 0, limit)
	for rows.Next() {
		var todo types.Todo
		var attachmentJSON []byte
		if err := rows.Scan(
			&todo.ID,
			&todo.OwnerID,
			&todo.Title,
			&todo.Description,
			&todo.Priority,
			&todo.Complete,
			&attachmentJSON,
			&todo.CreatedAt,
			&todo.UpdatedAt,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(attachmentJSON, &todo.Attachment)
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return todos, nil
}
