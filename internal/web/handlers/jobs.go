package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-sorter/internal/sorter"
)

// eventChannelBuffer is the per-listener SSE backlog.
const eventChannelBuffer = 100

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// SortJobState is the JSON view of a sort job.
type SortJobState struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Options     SortJobOptions `json:"options"`
	Result      *SortJobResult `json:"result,omitempty"`
}

// SortJob represents an async sort job.
type SortJob struct {
	EventBroadcaster
	SortJobState
}

// GetStatus returns the current job status (implements SSEJob).
func (j *SortJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// State returns a copy of the job state safe to encode.
func (j *SortJob) State() SortJobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.SortJobState
}

// Cancel cancels the sort job. The sorter finishes the file in flight and the
// runner marks the job cancelled once it returns.
func (j *SortJob) Cancel() {
	j.EventBroadcaster.Cancel()
}

// SortJobOptions represents sort job options.
type SortJobOptions struct {
	InboxDir          string `json:"inbox_dir"`
	OutputDir         string `json:"output_dir"`
	UnmatchedDir      string `json:"unmatched_dir,omitempty"`
	Mode              string `json:"mode"`
	KeepOriginalNames bool   `json:"keep_original_names"`
	DryRun            bool   `json:"dry_run"`
	Limit             int    `json:"limit"`
}

// SortJobResult represents the result of a sort job.
type SortJobResult struct {
	Processed int              `json:"processed"`
	Sorted    int              `json:"sorted"`
	Copies    int              `json:"copies"`
	Unmatched int              `json:"unmatched"`
	Failed    int              `json:"failed"`
	Stopped   bool             `json:"stopped"`
	Errors    []string         `json:"errors,omitempty"`
	Outcomes  []sorter.Outcome `json:"outcomes,omitempty"`
	Duration  string           `json:"duration"`
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, eventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelling", Message: "Cancellation requested"})
}

// setCancel installs the cancel function used by Cancel.
func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*SortJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*SortJob),
	}
}

// CreateJob creates a new sort job.
func (m *JobManager) CreateJob(id string, options SortJobOptions) *SortJob {
	job := &SortJob{
		SortJobState: SortJobState{
			ID:        id,
			Status:    JobStatusPending,
			StartedAt: time.Now(),
			Options:   options,
		},
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *SortJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs, newest first.
func (m *JobManager) ListJobs() []*SortJob {
	m.mu.RLock()
	jobs := make([]*SortJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].State().StartedAt.After(jobs[k].State().StartedAt)
	})
	return jobs
}

// Running reports whether any job is pending or running.
func (m *JobManager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if !isJobTerminal(job.GetStatus()) {
			return true
		}
	}
	return false
}
