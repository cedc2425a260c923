// Package task defines the persisted task record and its file codec.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is one persisted task item.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	CreatedAt   int64  `json:"created_at"` // unix milliseconds
}

// Validation errors for record payloads.
var (
	ErrEmptyPayload  = errors.New("empty record payload")
	ErrMissingID     = errors.New("record missing id")
	ErrInvalidID     = errors.New("record id is not a valid uuid")
	ErrMissingTitle  = errors.New("record missing title")
	ErrBadCreatedAt  = errors.New("record created_at must be positive")
	ErrInvalidRecord = errors.New("invalid record")
)

// New creates a task with a fresh random id and the current creation time.
// The id is immutable for the lifetime of the record.
func New(title, description string) Task {
	return Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

// Created returns the creation timestamp as a time.Time.
func (t Task) Created() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

// Encode renders the task as its record file payload.
func Encode(t Task) ([]byte, error) {
	validateErr := Validate(t)
	if validateErr != nil {
		return nil, validateErr
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}

	return append(data, '\n'), nil
}

// Decode parses a record file payload and validates its identity fields.
// Any failure here means the record file is corrupt.
func Decode(data []byte) (Task, error) {
	if len(data) == 0 {
		return Task{}, ErrEmptyPayload
	}

	var t Task

	unmarshalErr := json.Unmarshal(data, &t)
	if unmarshalErr != nil {
		return Task{}, fmt.Errorf("%w: %w", ErrInvalidRecord, unmarshalErr)
	}

	validateErr := Validate(t)
	if validateErr != nil {
		return Task{}, validateErr
	}

	return t, nil
}

// Validate checks the invariants every persisted record must satisfy.
// Title emptiness is a caller concern at creation time, but a record on
// disk without a title is treated as corrupt.
func Validate(t Task) error {
	if t.ID == "" {
		return ErrMissingID
	}

	_, parseErr := uuid.Parse(t.ID)
	if parseErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, t.ID)
	}

	if t.Title == "" {
		return ErrMissingTitle
	}

	if t.CreatedAt <= 0 {
		return ErrBadCreatedAt
	}

	return nil
}
