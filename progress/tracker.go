package progress

import (
	"context"
	"errors"
	"sync"

	"mangadl/downloader"
)

// Status of a tracked task.
type Status string

const (
	Downloading Status = "downloading"
	Completed   Status = "completed"
	Failed      Status = "failed"
	Cancelled   Status = "cancelled"
)

// Task is a snapshot of one unit of work: a manga (counting chapters) or
// a chapter (counting images).
type Task struct {
	ID     string
	Label  string
	Total  int
	Done   int
	Status Status
	Err    error
}

// Fraction returns the completed share in [0, 1].
func (t Task) Fraction() float64 {
	if t.Total <= 0 {
		if t.Status == Completed {
			return 1
		}
		return 0
	}
	f := float64(t.Done) / float64(t.Total)
	if f > 1 {
		return 1
	}
	return f
}

// View renders task changes. The Tracker serializes all calls.
type View interface {
	Update(task Task)
}

// Tracker is the downloader.ProgressObserver of a run. Workers report
// concurrently; state changes and view updates happen under one mutex.
type Tracker struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string
	views []View
}

var _ downloader.ProgressObserver = (*Tracker)(nil)

// NewTracker creates a tracker that forwards every change to views.
func NewTracker(views ...View) *Tracker {
	return &Tracker{
		tasks: make(map[string]*Task),
		views: views,
	}
}

func (t *Tracker) TaskCreated(id, label string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		task = &Task{ID: id}
		t.tasks[id] = task
		t.order = append(t.order, id)
	}
	// A rerun of the same id starts over
	*task = Task{ID: id, Label: label, Total: total, Status: Downloading}
	t.notify(task)
}

func (t *Tracker) TaskAdvanced(id string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok || n <= 0 {
		return
	}
	task.Done += n
	t.notify(task)
}

func (t *Tracker) TaskCompleted(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		return
	}
	task.Err = err
	switch {
	case err == nil:
		task.Status = Completed
	case errors.Is(err, context.Canceled):
		task.Status = Cancelled
	default:
		task.Status = Failed
	}
	t.notify(task)
}

func (t *Tracker) notify(task *Task) {
	for _, v := range t.views {
		v.Update(*task)
	}
}

// Tasks returns a snapshot of all tasks in creation order.
func (t *Tracker) Tasks() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Task, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tasks[id])
	}
	return out
}

// Task returns the snapshot of one task.
func (t *Tracker) Task(id string) (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}
