package core

import (
	"fmt"

	"github.com/google/uuid"
)

// TaskIDGenerator defines the interface for generating unique task IDs.
type TaskIDGenerator interface {
	GenerateTaskID() (string, error)
}

// uuidTaskIDGenerator issues random (version 4) UUIDs, so IDs are opaque and
// never reused.
type uuidTaskIDGenerator struct{}

// NewTaskIDGenerator creates a TaskIDGenerator backed by random UUIDs.
func NewTaskIDGenerator() TaskIDGenerator {
	return uuidTaskIDGenerator{}
}

func (uuidTaskIDGenerator) GenerateTaskID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating task id: %w", err)
	}
	return id.String(), nil
}
