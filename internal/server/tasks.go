package server

import (
	"fmt"
	"sync"
	"time"
)

// taskTTL keeps finished task records around long enough for status polls.
const taskTTL = 5 * time.Minute

// TaskStatus is the poll answer for one deferred upload.
type TaskStatus struct {
	Status   string `json:"status"`
	FileLink string `json:"file_link,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`

	ownerID int64
}

// TaskRegistry tracks deferred upload tasks. Records expire after taskTTL
// so the map cannot grow unbounded.
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[string]TaskStatus
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]TaskStatus)}
}

// NewTaskID mirrors the historical id shape polled by existing clients.
func NewTaskID(userID int64) string {
	return fmt.Sprintf("upload_%d_%d", time.Now().Unix(), userID)
}

func (r *TaskRegistry) Begin(taskID string, ownerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = TaskStatus{Status: "processing", ownerID: ownerID}
}

func (r *TaskRegistry) Complete(taskID, fileLink, filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := r.tasks[taskID]
	status.Status = "completed"
	status.FileLink = fileLink
	status.Filename = filename
	status.Error = ""
	r.tasks[taskID] = status
	r.expireLater(taskID)
}

func (r *TaskRegistry) Fail(taskID, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := r.tasks[taskID]
	status.Status = "error"
	status.Error = errMsg
	r.tasks[taskID] = status
	r.expireLater(taskID)
}

// Get returns the task record. Unknown ids report in_progress, matching the
// polling contract clients rely on.
func (r *TaskRegistry) Get(taskID string) TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status, ok := r.tasks[taskID]; ok {
		return status
	}
	return TaskStatus{Status: "in_progress"}
}

func (r *TaskRegistry) expireLater(taskID string) {
	time.AfterFunc(taskTTL, func() {
		r.mu.Lock()
		delete(r.tasks, taskID)
		r.mu.Unlock()
	})
}
