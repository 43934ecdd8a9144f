package model

import "strings"

// Task is an entry in the external work-task catalog.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Project     string `json:"project"`
	ProjectID   string `json:"projectid"`
	Module      string `json:"module"`
	ModuleID    string `json:"moduleid"`
	Client      string `json:"client,omitempty"`
	ClientID    string `json:"clientid,omitempty"`
	Status      string `json:"status"`
	Priority    string `json:"priority,omitempty"`
}

// IsActive reports whether the task still accepts time.
func (t *Task) IsActive() bool {
	switch strings.ToLower(strings.TrimSpace(t.Status)) {
	case "closed", "complete", "completed", "done", "archived":
		return false
	default:
		return true
	}
}

// Resolvable reports whether the task carries the IDs a time entry needs.
func (t *Task) Resolvable() bool {
	return strings.TrimSpace(t.ProjectID) != "" && strings.TrimSpace(t.ModuleID) != ""
}

// TaskIndex looks tasks up by ID.
type TaskIndex map[string]Task

// NewTaskIndex indexes tasks by their ID.
func NewTaskIndex(tasks []Task) TaskIndex {
	idx := make(TaskIndex, len(tasks))
	for _, t := range tasks {
		idx[t.ID] = t
	}
	return idx
}
