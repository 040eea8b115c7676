package core

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/fanya-focus/pkg/models"
	"gopkg.in/yaml.v3"
)

// collectionVersion is written into every persisted collection document.
const collectionVersion = "1"

// ErrCorruptCollection is returned by DecodeCollection when the blob is not a
// decodable task collection at all.
var ErrCorruptCollection = errors.New("persisted task collection is corrupt")

// collectionFile is the persisted form of the task collection.
type collectionFile struct {
	Version string       `yaml:"version"`
	Tasks   []taskRecord `yaml:"tasks"`
}

type taskRecord struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	DueDate     string `yaml:"due_date,omitempty"`
	Priority    string `yaml:"priority"`
	Completed   bool   `yaml:"completed"`
}

// EncodeCollection serializes tasks as a YAML document. Due dates are written
// as RFC 3339 strings with nanosecond precision.
func EncodeCollection(tasks []models.Task) ([]byte, error) {
	doc := collectionFile{
		Version: collectionVersion,
		Tasks:   make([]taskRecord, len(tasks)),
	}
	for i, t := range tasks {
		rec := taskRecord{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Priority:    string(t.Priority),
			Completed:   t.Completed,
		}
		if t.DueDate != nil {
			rec.DueDate = t.DueDate.Format(time.RFC3339Nano)
		}
		doc.Tasks[i] = rec
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encoding task collection: %w", err)
	}
	return data, nil
}

// DecodeResult is the outcome of decoding a persisted collection.
type DecodeResult struct {
	Tasks []models.Task
	// Repaired counts the fields that were dropped or defaulted because they
	// could not be decoded.
	Repaired int
	// Skipped counts entries that were not records at all.
	Skipped int
}

// DecodeCollection parses a persisted collection. It accepts the native YAML
// document as well as a bare JSON or YAML array of task objects using either
// due_date or dueDate for the due date.
//
// Decoding is tolerant at field level: an unparseable due date is dropped, an
// unknown priority becomes Medium, a missing or duplicate id is replaced with
// one from newID. Only a blob that is not a collection at all yields
// ErrCorruptCollection. An empty blob decodes to an empty collection.
func DecodeCollection(data []byte, newID func() (string, error)) (*DecodeResult, error) {
	result := &DecodeResult{Tasks: []models.Task{}}
	if strings.TrimSpace(string(data)) == "" {
		return result, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCollection, err)
	}

	items, err := collectionItems(&root)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.Kind != yaml.MappingNode {
			result.Skipped++
			continue
		}
		task, repaired := decodeTaskRecord(item)
		result.Repaired += repaired

		if task.ID == "" || seen[task.ID] {
			id, err := newID()
			if err != nil {
				return nil, fmt.Errorf("assigning id to persisted task: %w", err)
			}
			task.ID = id
			result.Repaired++
		}
		seen[task.ID] = true
		result.Tasks = append(result.Tasks, task)
	}
	return result, nil
}

// collectionItems locates the sequence of task nodes inside the document.
func collectionItems(root *yaml.Node) ([]*yaml.Node, error) {
	node := root
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}

	switch node.Kind {
	case yaml.SequenceNode:
		return node.Content, nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value != "tasks" {
				continue
			}
			tasks := node.Content[i+1]
			if isNull(tasks) {
				return nil, nil
			}
			if tasks.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("%w: tasks is not a list", ErrCorruptCollection)
			}
			return tasks.Content, nil
		}
		return nil, fmt.Errorf("%w: no tasks list", ErrCorruptCollection)
	case yaml.ScalarNode:
		if isNull(node) {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: unexpected document shape", ErrCorruptCollection)
}

func decodeTaskRecord(node *yaml.Node) (models.Task, int) {
	task := models.Task{Priority: models.PriorityMedium}
	repaired := 0
	priorityMissing := true

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		if isNull(val) {
			continue
		}

		switch key {
		case "id":
			if s, ok := scalarString(val); ok {
				task.ID = strings.TrimSpace(s)
			} else {
				repaired++
			}
		case "title":
			if s, ok := scalarString(val); ok {
				task.Title = s
			} else {
				repaired++
			}
		case "description":
			if s, ok := scalarString(val); ok {
				task.Description = s
			} else {
				repaired++
			}
		case "due_date", "dueDate":
			s, ok := scalarString(val)
			if !ok {
				repaired++
				continue
			}
			if due, ok := parseDueDate(s); ok {
				task.DueDate = &due
			} else if strings.TrimSpace(s) != "" {
				repaired++
			}
		case "priority":
			priorityMissing = false
			s, _ := scalarString(val)
			if p, err := models.ParsePriority(s); err == nil {
				task.Priority = p
			} else {
				repaired++
			}
		case "completed":
			var b bool
			if err := val.Decode(&b); err == nil {
				task.Completed = b
			} else {
				repaired++
			}
		}
	}

	if priorityMissing {
		repaired++
	}
	return task, repaired
}

// parseDueDate accepts RFC 3339 timestamps (with or without fractional
// seconds) and bare calendar dates, which are read as local midnight.
func parseDueDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(models.DateLayout, s, time.Local); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// scalarString returns the text of a scalar. yaml.v3 writes strings that are
// not valid UTF-8 as !!binary, so those are decoded back to their bytes.
func scalarString(n *yaml.Node) (string, bool) {
	if n.Kind != yaml.ScalarNode {
		return "", false
	}
	if n.Tag == "!!binary" {
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
		if err != nil {
			return "", false
		}
		return string(data), true
	}
	return n.Value, true
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
