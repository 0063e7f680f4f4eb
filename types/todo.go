package types

import "time"

// Todo represents a single task owned by a user.
type Todo struct {
	// ID is the unique identifier of the todo.
	ID int `json:"id" db:"id"`

	// OwnerID identifies the user who owns this todo.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// Title is the short summary of the task.
	Title string `json:"title" db:"title"`

	// Description contains the full task text.
	Description string `json:"description" db:"description"`

	// Priority ranks the task from 1 (lowest) to 5 (highest).
	Priority int `json:"priority" db:"priority"`

	// Complete marks whether the task has been finished.
	Complete bool `json:"complete" db:"complete"`

	// Attachment references an uploaded file in object storage.
	// Empty when the todo has no attachment.
	Attachment Attachment `json:"attachment" db:"attachment"`

	// CreatedAt is the timestamp when the todo was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the todo.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Attachment describes a file stored in object storage for a todo.
type Attachment struct {
	// ObjectKey is the identifier of the file in object storage.
	ObjectKey string `json:"object_key" db:"object_key"`

	// Filename is the original name of the uploaded file.
	Filename string `json:"filename" db:"filename"`

	// ContentType is the MIME type reported at upload time.
	ContentType string `json:"content_type" db:"content_type"`

	// Size is the attachment size in bytes.
	Size int64 `json:"size" db:"size"`
}

// TodoEvent is published to the message queue when a todo changes state.
type TodoEvent struct {
	// Kind is one of "todo.created", "todo.completed" or "todo.deleted".
	Kind string `json:"kind"`

	// TodoID identifies the todo the event refers to.
	TodoID int `json:"todo_id"`

	// OwnerID identifies the owner of the todo.
	OwnerID int `json:"owner_id"`

	// Title is the todo title at the time of the event.
	Title string `json:"title"`

	// OccurredAt is the event timestamp.
	OccurredAt time.Time `json:"occurred_at"`
}

// Todo event kinds.
const (
	TodoEventCreated   = "todo.created"
	TodoEventCompleted = "todo.completed"
	TodoEventDeleted   = "todo.deleted"
)
