package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ExecutionStatus represents the status of a tracked execution.
type ExecutionStatus string

const (
	// ExecutionRunning means a caller is still waiting for the execution.
	ExecutionRunning ExecutionStatus = "running"
	// ExecutionAbandoned means the caller gave up after a timeout but the
	// statement is still running on the connection.
	ExecutionAbandoned ExecutionStatus = "abandoned"
)

// Execution is a statement currently running against a session connection.
type Execution struct {
	Handle    string          `json:"handle"`
	Status    ExecutionStatus `json:"status"`
	SQLText   string          `json:"sqlText"`
	Catalog   string          `json:"catalog,omitempty"`
	StartedOn time.Time       `json:"startedOn"`
	cancel    context.CancelFunc
}

// Tracker keeps the set of in-flight executions of one session.
type Tracker struct {
	mu         sync.Mutex
	executions map[string]*Execution
	gauge      prometheus.Gauge
}

// NewTracker creates an empty tracker. gauge may be nil.
func NewTracker(gauge prometheus.Gauge) *Tracker {
	return &Tracker{
		executions: make(map[string]*Execution),
		gauge:      gauge,
	}
}

// Start registers a new execution and returns it with a fresh handle.
func (t *Tracker) Start(sqlText, catalog string, cancel context.CancelFunc) *Execution {
	t.mu.Lock()
	defer t.mu.Unlock()

	exec := &Execution{
		Handle:    generateStatementHandle(),
		Status:    ExecutionRunning,
		SQLText:   sqlText,
		Catalog:   catalog,
		StartedOn: time.Now(),
		cancel:    cancel,
	}
	t.executions[exec.Handle] = exec
	if t.gauge != nil {
		t.gauge.Inc()
	}
	return exec
}

// Abandon marks an execution as abandoned by its caller.
func (t *Tracker) Abandon(handle string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	exec, ok := t.executions[handle]
	if !ok {
		return false
	}
	exec.Status = ExecutionAbandoned
	return true
}

// Finish removes a settled execution. It reports false when the execution was
// no longer tracked, which happens after Clear.
func (t *Tracker) Finish(handle string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.executions[handle]; !ok {
		return false
	}
	delete(t.executions, handle)
	if t.gauge != nil {
		t.gauge.Dec()
	}
	return true
}

// Clear cancels and forgets every tracked execution and returns how many
// there were.
func (t *Tracker) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.executions)
	for handle, exec := range t.executions {
		if exec.cancel != nil {
			exec.cancel()
		}
		delete(t.executions, handle)
	}
	if t.gauge != nil {
		t.gauge.Sub(float64(n))
	}
	return n
}

// Len returns the number of tracked executions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.executions)
}

// List returns copies of the tracked executions, oldest first.
func (t *Tracker) List() []Execution {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]Execution, 0, len(t.executions))
	for _, exec := range t.executions {
		cp := *exec
		cp.cancel = nil
		list = append(list, cp)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartedOn.Before(list[j].StartedOn)
	})
	return list
}

// generateStatementHandle generates a unique statement handle.
func generateStatementHandle() string {
	id := uuid.New()
	return fmt.Sprintf("01%s", id.String()[:32])
}
