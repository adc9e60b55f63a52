package progress

import "log"

// Log writes task starts and outcomes to the standard logger.
type Log struct{}

func (Log) Update(task Task) {
	switch task.Status {
	case Downloading:
		if task.Done == 0 {
			log.Printf("[Progress] Started %s (%d units)", task.Label, task.Total)
		}
	case Completed:
		log.Printf("[Progress] ✓ %s (%d/%d)", task.Label, task.Done, task.Total)
	case Cancelled:
		log.Printf("[Progress] Cancelled %s at %d/%d", task.Label, task.Done, task.Total)
	case Failed:
		log.Printf("[Progress] ✗ %s (%d/%d): %v", task.Label, task.Done, task.Total, task.Err)
	}
}
