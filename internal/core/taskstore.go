package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// CollectionKey is the blob store key the task collection is saved under.
const CollectionKey = "fanyaFocusTasks"

// corruptBackupSuffix is appended to CollectionKey when an undecodable blob
// is set aside on load.
const corruptBackupSuffix = ".corrupt"

// BlobStore is the key-value persistence the task store writes through to.
// Read reports ok=false when the key is absent.
type BlobStore interface {
	Read(ctx context.Context, key string) (data []byte, ok bool, err error)
	Write(ctx context.Context, key string, data []byte) error
}

// KeyLocker is implemented by blob stores that can hold a key exclusively
// across processes for a whole read-modify-write.
type KeyLocker interface {
	LockKey(ctx context.Context, key string) (unlock func() error, err error)
}

// TaskStore owns the task collection. Every mutation starts from the latest
// persisted collection, so writers in other processes are not overwritten,
// and every effective mutation is persisted immediately. Reads return copies
// that callers may keep or modify freely.
type TaskStore interface {
	// LoadAll replaces the in-memory collection with the persisted one. A
	// corrupt blob yields an empty collection rather than an error.
	LoadAll(ctx context.Context) error
	// Refresh picks up changes other processes persisted since the last
	// load. Unlike LoadAll it keeps the in-memory collection when the blob
	// is absent or corrupt.
	Refresh(ctx context.Context) error
	// Persist writes the full current collection.
	Persist(ctx context.Context) error

	Create(ctx context.Context, input models.TaskInput) (models.Task, error)
	// Update replaces the editable fields of the task with the same ID. It
	// reports false and changes nothing when no such task exists.
	Update(ctx context.Context, task models.Task) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	ToggleComplete(ctx context.Context, id string) (bool, error)

	Get(id string) (models.Task, bool)
	Tasks() []models.Task
}

type taskStore struct {
	mu     sync.Mutex
	tasks  []models.Task
	blobs  BlobStore
	idGen  TaskIDGenerator
	events EventLogger
}

// NewTaskStore creates a TaskStore persisting to blobs. events may be nil.
func NewTaskStore(blobs BlobStore, idGen TaskIDGenerator, events EventLogger) TaskStore {
	return &taskStore{
		tasks:  []models.Task{},
		blobs:  blobs,
		idGen:  idGen,
		events: events,
	}
}

func (s *taskStore) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.blobs.Read(ctx, CollectionKey)
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}
	if !ok {
		s.tasks = []models.Task{}
		return nil
	}

	result, err := DecodeCollection(data, s.idGen.GenerateTaskID)
	if err != nil {
		if !errors.Is(err, ErrCorruptCollection) {
			return fmt.Errorf("loading tasks: %w", err)
		}
		_ = s.blobs.Write(ctx, CollectionKey+corruptBackupSuffix, data)
		logEvent(s.events, EventStoreCorrupt, map[string]any{
			"error": err.Error(),
			"bytes": len(data),
		})
		s.tasks = []models.Task{}
		return nil
	}

	s.tasks = result.Tasks
	logEvent(s.events, EventStoreLoaded, map[string]any{
		"count":    len(result.Tasks),
		"repaired": result.Repaired,
		"skipped":  result.Skipped,
	})
	return nil
}

func (s *taskStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *taskStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *taskStore) persistLocked(ctx context.Context) error {
	data, err := EncodeCollection(s.tasks)
	if err != nil {
		return fmt.Errorf("persisting tasks: %w", err)
	}
	if err := s.blobs.Write(ctx, CollectionKey, data); err != nil {
		return fmt.Errorf("persisting tasks: %w", err)
	}
	return nil
}

// beginLocked takes the backend key lock when offered and reloads the
// persisted collection. The returned release must be called when the
// mutation is done.
func (s *taskStore) beginLocked(ctx context.Context) (release func(), err error) {
	release = func() {}
	if locker, ok := s.blobs.(KeyLocker); ok {
		unlock, err := locker.LockKey(ctx, CollectionKey)
		if err != nil {
			return nil, fmt.Errorf("locking tasks: %w", err)
		}
		release = func() { _ = unlock() }
	}
	if err := s.refreshLocked(ctx); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// refreshLocked replaces the in-memory collection with the persisted one when
// a readable collection exists. An absent or corrupt blob keeps what is in
// memory; LoadAll is responsible for reporting corruption.
func (s *taskStore) refreshLocked(ctx context.Context) error {
	data, ok, err := s.blobs.Read(ctx, CollectionKey)
	if err != nil {
		return fmt.Errorf("refreshing tasks: %w", err)
	}
	if !ok {
		return nil
	}
	result, err := DecodeCollection(data, s.idGen.GenerateTaskID)
	if err != nil {
		return nil
	}
	s.tasks = result.Tasks
	return nil
}

func (s *taskStore) Create(ctx context.Context, input models.TaskInput) (models.Task, error) {
	input = NormalizeTaskInput(input)
	if err := ValidateTaskInput(input); err != nil {
		return models.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.beginLocked(ctx)
	if err != nil {
		return models.Task{}, err
	}
	defer release()

	id, err := s.uniqueIDLocked()
	if err != nil {
		return models.Task{}, fmt.Errorf("creating task: %w", err)
	}

	task := models.Task{
		ID:          id,
		Title:       input.Title,
		Description: input.Description,
		DueDate:     cloneTime(input.DueDate),
		Priority:    input.Priority,
		Completed:   false,
	}
	s.tasks = append(s.tasks, task)

	logEvent(s.events, EventTaskCreated, map[string]any{
		"task_id":  task.ID,
		"priority": string(task.Priority),
	})

	if err := s.persistLocked(ctx); err != nil {
		return cloneTask(task), fmt.Errorf("creating task %s: %w", task.ID, err)
	}
	return cloneTask(task), nil
}

func (s *taskStore) Update(ctx context.Context, task models.Task) (bool, error) {
	input := NormalizeTaskInput(task.Input())
	if err := ValidateTaskInput(input); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.beginLocked(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	i := s.indexLocked(task.ID)
	if i < 0 {
		return false, nil
	}

	existing := &s.tasks[i]
	existing.Title = input.Title
	existing.Description = input.Description
	existing.DueDate = cloneTime(input.DueDate)
	existing.Priority = input.Priority

	logEvent(s.events, EventTaskUpdated, map[string]any{
		"task_id":  existing.ID,
		"priority": string(existing.Priority),
	})

	if err := s.persistLocked(ctx); err != nil {
		return true, fmt.Errorf("updating task %s: %w", task.ID, err)
	}
	return true, nil
}

func (s *taskStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.beginLocked(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	i := s.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)

	logEvent(s.events, EventTaskDeleted, map[string]any{"task_id": id})

	if err := s.persistLocked(ctx); err != nil {
		return true, fmt.Errorf("deleting task %s: %w", id, err)
	}
	return true, nil
}

func (s *taskStore) ToggleComplete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.beginLocked(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	i := s.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	s.tasks[i].Completed = !s.tasks[i].Completed

	eventType := EventTaskReopened
	if s.tasks[i].Completed {
		eventType = EventTaskCompleted
	}
	logEvent(s.events, eventType, map[string]any{"task_id": id})

	if err := s.persistLocked(ctx); err != nil {
		return true, fmt.Errorf("toggling task %s: %w", id, err)
	}
	return true, nil
}

func (s *taskStore) Get(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return models.Task{}, false
	}
	return cloneTask(s.tasks[i]), true
}

func (s *taskStore) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = cloneTask(t)
	}
	return out
}

func (s *taskStore) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// uniqueIDLocked draws IDs until one is not already in the collection.
func (s *taskStore) uniqueIDLocked() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id, err := s.idGen.GenerateTaskID()
		if err != nil {
			return "", err
		}
		if id != "" && s.indexLocked(id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique task id")
}

func cloneTask(t models.Task) models.Task {
	t.DueDate = cloneTime(t.DueDate)
	return t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
