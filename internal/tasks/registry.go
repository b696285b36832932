package tasks

import (
	"slices"
	"sync"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/charmbracelet/log"
)

// Sender delivers one protocol message to a session's client.
type Sender interface {
	Send(sessionID string, msg any)
}

// Registry holds the in-memory [models.TaskState] of every live session.
//
// Each mutation emits the matching protocol message through the [Sender]. Operations on
// unknown ids or out-of-range subtask indexes are no-ops, as is every transition once a
// task has failed or completed. The map is guarded for concurrent session creation and
// removal; a given task is expected to be mutated from one goroutine only.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*models.TaskState
	sender Sender
	logger *log.Logger
}

// NewRegistry creates an empty [Registry] that reports through sender.
func NewRegistry(sender Sender, logger *log.Logger) *Registry {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Registry{
		tasks:  make(map[string]*models.TaskState),
		sender: sender,
		logger: logger,
	}
}

// Create registers a new task and returns its fresh id.
func (r *Registry) Create(input string, action models.Action, format, outputPath string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := shared.GenerateID()
	for r.tasks[id] != nil {
		id = shared.GenerateID()
	}
	r.tasks[id] = models.NewTaskState(id, input, action, format, outputPath)

	r.logger.Info("task created", "session", id, "input", input, "action", action)
	return id
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id string) (models.TaskState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return models.TaskState{}, false
	}
	return t.Clone(), true
}

// Len returns the number of live tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// mutate runs fn on the live task under the write lock and sends whatever message it
// returns after the lock is released. fn is skipped for unknown, failed or completed tasks.
func (r *Registry) mutate(id string, fn func(t *models.TaskState) any) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok || t.Failed() || t.Completed {
		r.mu.Unlock()
		return
	}
	msg := fn(t)
	r.mu.Unlock()

	if msg != nil && r.sender != nil {
		r.sender.Send(id, msg)
	}
}

// InitializeSubTasks replaces the subtask list with pending entries named by names and emits "init".
func (r *Registry) InitializeSubTasks(id string, names []string) {
	r.mutate(id, func(t *models.TaskState) any {
		t.SubTasks = make([]models.SubTask, len(names))
		for i, name := range names {
			t.SubTasks[i] = models.SubTask{ID: i, Name: name, Status: models.StatusPending}
		}
		t.Current = -1
		return initMessage(t.SubTasks)
	})
}

// StartSubTask marks subtask idx running with zero progress and emits "status".
//
// Refused while another subtask is running.
func (r *Registry) StartSubTask(id string, idx int) {
	r.mutate(id, func(t *models.TaskState) any {
		if !validIndex(t, idx) {
			return nil
		}
		if running := t.Running(); len(running) > 0 && !slices.Equal(running, []int{idx}) {
			r.logger.Warn("subtask already running", "session", id, "running", running, "requested", idx)
			return nil
		}

		st := &t.SubTasks[idx]
		st.Status = models.StatusRunning
		st.Progress = 0
		t.Current = idx

		r.logger.Info("subtask started", "session", id, "subtask", st.Name)
		return statusMessage(idx, st.Status, nil)
	})
}

// UpdateProgress raises the running subtask's progress and emits "progress".
//
// Values are clamped to [0,100]; values below the current progress are ignored.
func (r *Registry) UpdateProgress(id string, idx, progress int) {
	r.mutate(id, func(t *models.TaskState) any {
		st, ok := runningSubTask(t, idx)
		if !ok {
			return nil
		}
		progress = clamp(progress)
		if progress < st.Progress {
			return nil
		}
		st.Progress = progress
		return progressMessage(idx, st.Progress)
	})
}

// UpdateDownloadProgress records a byte-transfer sample and emits "progress" with the raw
// percentage and speed attached. The subtask's progress itself never decreases.
func (r *Registry) UpdateDownloadProgress(id string, idx int, p models.DownloadProgress) {
	r.mutate(id, func(t *models.TaskState) any {
		st, ok := runningSubTask(t, idx)
		if !ok {
			return nil
		}
		st.Progress = max(st.Progress, clamp(int(p.Percent)))
		return downloadProgressMessage(idx, st.Progress, p)
	})
}

// CompleteSubTask marks subtask idx completed at 100 and emits "status" with progress 100.
func (r *Registry) CompleteSubTask(id string, idx int) {
	r.mutate(id, func(t *models.TaskState) any {
		if !validIndex(t, idx) {
			return nil
		}
		st := &t.SubTasks[idx]
		st.Status = models.StatusCompleted
		st.Progress = 100
		if t.Current == idx {
			t.Current = -1
		}

		r.logger.Info("subtask completed", "session", id, "subtask", st.Name)
		full := 100
		return statusMessage(idx, st.Status, &full)
	})
}

// SetError records message against the running subtask, or against the task when none
// is running, and emits "error". Later transitions are ignored.
func (r *Registry) SetError(id string, message string) {
	r.mutate(id, func(t *models.TaskState) any {
		t.Error = message

		var idx *int
		if validIndex(t, t.Current) && t.SubTasks[t.Current].Status == models.StatusRunning {
			st := &t.SubTasks[t.Current]
			st.Status = models.StatusError
			st.Message = message
			i := t.Current
			idx = &i
			r.logger.Error("subtask failed", "session", id, "subtask", st.Name, "error", message)
		} else {
			r.logger.Error("task failed", "session", id, "error", message)
		}

		return errorMessage(idx, message)
	})
}

// SetTitle stores the human-readable title of the input.
func (r *Registry) SetTitle(id, title string) {
	r.mutate(id, func(t *models.TaskState) any {
		t.Title = title
		return nil
	})
}

// ApplyDecision replaces the action and export target chosen after a download.
func (r *Registry) ApplyDecision(id string, action models.Action, format, outputPath string) {
	r.mutate(id, func(t *models.TaskState) any {
		t.Action = action
		t.OutputFormat = format
		t.OutputPath = outputPath
		return nil
	})
}

// CompleteAll marks the task completed with its final output and emits "complete".
//
// Refused while any subtask is not completed.
func (r *Registry) CompleteAll(id string, outputPath string) {
	r.mutate(id, func(t *models.TaskState) any {
		for _, st := range t.SubTasks {
			if st.Status != models.StatusCompleted {
				r.logger.Warn("cannot complete task with unfinished subtask", "session", id, "subtask", st.Name, "status", st.Status)
				return nil
			}
		}
		t.Completed = true
		t.OutputPath = outputPath

		r.logger.Info("task completed", "session", id, "output", outputPath)
		return completeMessage(outputPath)
	})
}

// Remove forgets the task and returns its final state.
func (r *Registry) Remove(id string) (models.TaskState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return models.TaskState{}, false
	}
	delete(r.tasks, id)
	r.logger.Debug("task removed", "session", id)
	return t.Clone(), true
}

func validIndex(t *models.TaskState, idx int) bool {
	return idx >= 0 && idx < len(t.SubTasks)
}

func runningSubTask(t *models.TaskState, idx int) (*models.SubTask, bool) {
	if !validIndex(t, idx) || t.SubTasks[idx].Status != models.StatusRunning {
		return nil, false
	}
	return &t.SubTasks[idx], true
}

func clamp(progress int) int {
	return min(max(progress, 0), 100)
}
