package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/facematch"
	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/sorter"
)

// Sorter runs one distribution pass (implemented by sorter.Sorter)
type Sorter interface {
	Sort(ctx context.Context, req sorter.SortRequest) (*sorter.SortResult, error)
}

// SortHandler handles sort-related endpoints
type SortHandler struct {
	config     *config.Config
	sorter     Sorter
	jobManager *JobManager
	log        *zap.Logger
}

// NewSortHandler creates a new sort handler
func NewSortHandler(cfg *config.Config, s Sorter, jm *JobManager, log *zap.Logger) *SortHandler {
	return &SortHandler{
		config:     cfg,
		sorter:     s,
		jobManager: jm,
		log:        logger.OrNop(log).Named("sort-jobs"),
	}
}

// StartRequest represents a sort start request
type StartRequest struct {
	InboxDir          string `json:"inbox_dir"`
	OutputDir         string `json:"output_dir"`
	UnmatchedDir      string `json:"unmatched_dir"`
	Mode              string `json:"mode"`
	KeepOriginalNames *bool  `json:"keep_original_names"`
	DryRun            bool   `json:"dry_run"`
	Limit             int    `json:"limit"`
}

// Start starts a new sort job
func (h *SortHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.InboxDir == "" || req.OutputDir == "" {
		respondError(w, http.StatusBadRequest, "inbox_dir and output_dir are required")
		return
	}
	if req.Mode == "" {
		req.Mode = h.config.Sort.Mode
	}
	if _, err := facematch.ParseMode(req.Mode); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Limit < 0 {
		respondError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	keep := h.config.Sort.KeepOriginalNames
	if req.KeepOriginalNames != nil {
		keep = *req.KeepOriginalNames
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID, SortJobOptions{
		InboxDir:          req.InboxDir,
		OutputDir:         req.OutputDir,
		UnmatchedDir:      req.UnmatchedDir,
		Mode:              req.Mode,
		KeepOriginalNames: keep,
		DryRun:            req.DryRun,
		Limit:             req.Limit,
	})

	// The request context ends with this handler; the job owns its own.
	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)
	go h.runSortJob(ctx, cancel, job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(JobStatusPending),
	})
}

// List returns all known sort jobs
func (h *SortHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	states := make([]SortJobState, len(jobs))
	for i, job := range jobs {
		states[i] = job.State()
	}
	respondJSON(w, http.StatusOK, states)
}

// Status returns the status of a sort job
func (h *SortHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.State())
}

// Events streams job events via SSE
func (h *SortHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*SortJob).State()
		},
	)
}

// Cancel asks a sort job to stop after the file it is handling
func (h *SortHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusAccepted, map[string]bool{"cancelled": true})
}

func (h *SortHandler) lookup(w http.ResponseWriter, r *http.Request) *SortJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// runSortJob runs the sort job in the background
func (h *SortHandler) runSortJob(ctx context.Context, cancel context.CancelFunc, job *SortJob) {
	defer cancel()

	job.mu.Lock()
	job.Status = JobStatusRunning
	opts := job.Options
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Sort job started"})
	h.log.Info("sort job started", zap.String("job", job.ID), zap.String("inbox", opts.InboxDir))

	result, err := h.sorter.Sort(ctx, sorter.SortRequest{
		InboxDir:          opts.InboxDir,
		OutputDir:         opts.OutputDir,
		UnmatchedDir:      opts.UnmatchedDir,
		Mode:              facematch.Mode(opts.Mode),
		KeepOriginalNames: opts.KeepOriginalNames,
		DryRun:            opts.DryRun,
		Limit:             opts.Limit,
		OnProgress: func(info sorter.ProgressInfo) {
			job.mu.Lock()
			job.Total = info.Total
			job.Processed = info.Current
			if info.Total > 0 {
				job.Progress = int(float64(info.Current) / float64(info.Total) * 100)
			}
			job.mu.Unlock()
			job.SendEvent(JobEvent{
				Type: "progress",
				Data: map[string]any{
					"phase":   info.Phase,
					"current": info.Current,
					"total":   info.Total,
					"path":    info.Path,
					"message": info.Message,
				},
			})
		},
	})
	if err != nil {
		h.failJob(job, fmt.Sprintf("sorting failed: %v", err))
		return
	}

	jobResult := &SortJobResult{
		Processed: result.Processed,
		Sorted:    result.Sorted,
		Copies:    result.Copies,
		Unmatched: result.Unmatched,
		Failed:    result.Failed,
		Stopped:   result.Stopped,
		Errors:    errorStrings(result.Errors),
		Outcomes:  result.Outcomes,
		Duration:  result.Duration.Round(time.Millisecond).String(),
	}

	status, eventType := JobStatusCompleted, "completed"
	if result.Stopped {
		status, eventType = JobStatusCancelled, "cancelled"
	}

	now := time.Now()
	job.mu.Lock()
	job.Status = status
	job.CompletedAt = &now
	job.Processed = result.Processed
	job.Progress = 100
	job.Result = jobResult
	job.mu.Unlock()

	h.log.Info("sort job finished",
		zap.String("job", job.ID),
		zap.String("status", string(status)),
		zap.Int("sorted", result.Sorted),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("failed", result.Failed))
	job.SendEvent(JobEvent{Type: eventType, Data: jobResult})
}

func (h *SortHandler) failJob(job *SortJob, message string) {
	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = message
	job.CompletedAt = &now
	job.mu.Unlock()
	h.log.Warn("sort job failed", zap.String("job", job.ID), zap.String("error", sanitizeForLog(message)))
	job.SendEvent(JobEvent{Type: "job_error", Message: message})
}
