package progress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder keeps every update it sees.
type recorder struct {
	updates []Task
}

func (r *recorder) Update(task Task) {
	r.updates = append(r.updates, task)
}

func TestTracker_Lifecycle(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)

	tr.TaskCreated("manga", "Solo Hero", 3)
	tr.TaskAdvanced("manga", 2)
	tr.TaskAdvanced("manga", 1)
	tr.TaskCompleted("manga", nil)

	task, ok := tr.Task("manga")
	require.True(t, ok)
	assert.Equal(t, Completed, task.Status)
	assert.Equal(t, 3, task.Done)
	assert.Equal(t, 1.0, task.Fraction())
	assert.Len(t, rec.updates, 4)
	assert.Equal(t, Downloading, rec.updates[0].Status)
}

func TestTracker_IgnoresUnknownTasks(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)

	tr.TaskAdvanced("nope", 1)
	tr.TaskCompleted("nope", nil)
	tr.TaskCreated("a", "A", 1)
	tr.TaskAdvanced("a", 0)

	assert.Len(t, rec.updates, 1)
	_, ok := tr.Task("nope")
	assert.False(t, ok)
}

func TestTracker_Outcomes(t *testing.T) {
	tr := NewTracker()
	tr.TaskCreated("ok", "ok", 1)
	tr.TaskCreated("failed", "failed", 1)
	tr.TaskCreated("cancelled", "cancelled", 1)

	tr.TaskCompleted("ok", nil)
	tr.TaskCompleted("failed", errors.New("boom"))
	tr.TaskCompleted("cancelled", fmt.Errorf("chapter: %w", context.Canceled))

	tasks := tr.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, []Status{Completed, Failed, Cancelled}, []Status{tasks[0].Status, tasks[1].Status, tasks[2].Status})
	assert.EqualError(t, tasks[1].Err, "boom")
}

func TestTracker_RecreateResets(t *testing.T) {
	tr := NewTracker()
	tr.TaskCreated("ch", "Ch. 1", 4)
	tr.TaskAdvanced("ch", 4)
	tr.TaskCompleted("ch", errors.New("x"))

	tr.TaskCreated("ch", "Ch. 1", 4)
	task, _ := tr.Task("ch")
	assert.Equal(t, 0, task.Done)
	assert.Equal(t, Downloading, task.Status)
	assert.Nil(t, task.Err)
	assert.Len(t, tr.Tasks(), 1)
}

func TestTracker_ConcurrentAdvance(t *testing.T) {
	tr := NewTracker(&recorder{})
	const workers, steps = 8, 250
	tr.TaskCreated("manga", "M", workers*steps)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < steps; j++ {
				tr.TaskAdvanced("manga", 1)
			}
		}()
	}
	wg.Wait()

	task, _ := tr.Task("manga")
	assert.Equal(t, workers*steps, task.Done)
}

func TestTask_Fraction(t *testing.T) {
	assert.Equal(t, 0.5, Task{Total: 4, Done: 2}.Fraction())
	assert.Equal(t, 1.0, Task{Total: 2, Done: 5}.Fraction())
	assert.Equal(t, 0.0, Task{}.Fraction())
	assert.Equal(t, 1.0, Task{Status: Completed}.Fraction())
}

func TestTerminal_PrintsFinishedTasks(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(NewTerminal(&buf, false))

	tr.TaskCreated("a", "Solo Hero Ch. 1", 10)
	tr.TaskAdvanced("a", 3)
	assert.Empty(t, buf.String(), "running tasks are not printed without a live terminal")

	tr.TaskCompleted("a", errors.New("1 of 10 images failed"))
	out := buf.String()
	assert.Contains(t, out, "Solo Hero Ch. 1")
	assert.Contains(t, out, "3/10")
	assert.Contains(t, out, "1 of 10 images failed")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestTerminal_LiveRedraw(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(NewTerminal(&buf, true))

	tr.TaskCreated("a", "Ch. 2", 2)
	tr.TaskAdvanced("a", 1)
	assert.Equal(t, 2, strings.Count(buf.String(), "\r\033[K"))
	assert.NotContains(t, buf.String(), "\n")

	tr.TaskAdvanced("a", 1)
	tr.TaskCompleted("a", nil)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "2/2")
}

func TestTerminal_TruncatesLabel(t *testing.T) {
	term := NewTerminal(&bytes.Buffer{}, false)
	line := term.Render(Task{Label: strings.Repeat("x", 100), Total: 1, Status: Downloading})
	assert.Contains(t, line, strings.Repeat("x", labelWidth-3)+"...")
	assert.NotContains(t, line, strings.Repeat("x", labelWidth-2))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	tr := NewTracker(Log{})
	tr.TaskCreated("a", "Ch. 5", 2)
	tr.TaskAdvanced("a", 1)
	tr.TaskCompleted("a", errors.New("timeout"))

	out := buf.String()
	assert.Contains(t, out, "[Progress] Started Ch. 5 (2 units)")
	assert.Contains(t, out, "[Progress] ✗ Ch. 5 (1/2): timeout")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}
