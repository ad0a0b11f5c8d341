package sorter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/embedding"
	"github.com/kozaktomas/face-sorter/internal/facematch"
	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/refcache"
)

// DefaultUnmatchedDir is the folder under the output dir used when no unmatched dir is given
const DefaultUnmatchedDir = "_unmatched"

const lockFileName = ".face-sorter.lock"

var (
	// ErrNoReferenceData is returned when best or multi sorting is requested with an empty cache
	ErrNoReferenceData = errors.New("no reference data: add references and rebuild the cache first")
	// ErrOutputLocked is returned when another sort holds the output directory
	ErrOutputLocked = errors.New("output directory is locked by another sort")
)

// SnapshotSource hands out the current embedding snapshot
type SnapshotSource interface {
	Snapshot() *refcache.Snapshot
}

// Store is the part of the reference store the sorter needs
type Store interface {
	database.LabelReader
	database.AuditLog
}

// ThresholdSource answers per-label thresholds, falling back to its own default
type ThresholdSource interface {
	Threshold(ctx context.Context, label string) float64
}

type Sorter struct {
	refs             SnapshotSource
	extractor        embedding.Extractor
	store            Store
	exts             fileutil.Extensions
	defaultThreshold float64
	thresholdSrc     ThresholdSource
	readFile         func(string) ([]byte, error)
	log              *zap.Logger
}

// Option configures a Sorter
type Option func(*Sorter)

// WithDefaultThreshold sets the threshold for labels without a stored one
func WithDefaultThreshold(t float64) Option {
	return func(s *Sorter) { s.defaultThreshold = t }
}

// WithThresholdSource reads thresholds through src instead of listing labels in the store
func WithThresholdSource(src ThresholdSource) Option {
	return func(s *Sorter) { s.thresholdSrc = src }
}

// WithReadFile replaces os.ReadFile
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(s *Sorter) { s.readFile = fn }
}

func New(refs SnapshotSource, extractor embedding.Extractor, store Store, exts fileutil.Extensions, log *zap.Logger, opts ...Option) *Sorter {
	s := &Sorter{
		refs:             refs,
		extractor:        extractor,
		store:            store,
		exts:             exts,
		defaultThreshold: 0.3,
		readFile:         os.ReadFile,
		log:              logger.OrNop(log).Named("sorter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProgressInfo contains progress information for callbacks
type ProgressInfo struct {
	Phase   string // "scanning", "sorting"
	Current int
	Total   int
	Path    string
	Message string
}

type SortRequest struct {
	InboxDir          string
	OutputDir         string
	UnmatchedDir      string // defaults to OutputDir/_unmatched
	Mode              facematch.Mode
	KeepOriginalNames bool
	DryRun            bool               // decide only, touch no files
	Limit             int                // stop after this many files (0 = all)
	OnProgress        func(ProgressInfo) // Optional progress callback
}

// Status is what happened to one inbox file
type Status string

const (
	StatusSorted    Status = "sorted"
	StatusUnmatched Status = "unmatched"
	StatusFailed    Status = "failed"
)

// Outcome describes the handling of one inbox file
type Outcome struct {
	Source       string             `json:"source"`
	Status       Status             `json:"status"`
	Reason       string             `json:"reason,omitempty"` // why a file went to unmatched or failed
	Labels       []string           `json:"labels,omitempty"` // matched labels, sorted
	BestLabel    string             `json:"best_label,omitempty"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	Destinations []string           `json:"destinations"` // final paths, the moved file last
}

type SortResult struct {
	Processed int
	Sorted    int
	Copies    int
	Unmatched int
	Failed    int
	Stopped   bool // cancelled before every file was handled
	Errors    []error
	Outcomes  []Outcome
	Duration  time.Duration
}

// run holds per-invocation state: one snapshot and one threshold set
type run struct {
	req        SortRequest
	snapshot   *refcache.Snapshot
	thresholds map[string]float64
}

// Sort distributes every image under the inbox into per-label folders.
// The context is checked once per file; a file already being handled is finished
// before Sort returns.
func (s *Sorter) Sort(ctx context.Context, req SortRequest) (*SortResult, error) {
	start := time.Now()

	if req.InboxDir == "" || req.OutputDir == "" {
		return nil, errors.New("inbox and output directories are required")
	}
	if req.Mode == "" {
		req.Mode = facematch.ModeBest
	}
	if _, err := facematch.ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}
	if req.UnmatchedDir == "" {
		req.UnmatchedDir = filepath.Join(req.OutputDir, DefaultUnmatchedDir)
	}

	r := &run{req: req, snapshot: s.refs.Snapshot()}
	if req.Mode != facematch.ModeManual && r.snapshot.Len() == 0 {
		return nil, ErrNoReferenceData
	}

	thresholds, err := s.loadThresholds(ctx, r.snapshot)
	if err != nil {
		return nil, err
	}
	r.thresholds = thresholds

	if !req.DryRun {
		unlock, err := lockOutput(req.OutputDir)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	s.progress(req, ProgressInfo{Phase: "scanning", Message: req.InboxDir})
	files, err := fileutil.ListImages(req.InboxDir, s.exts, req.OutputDir, req.UnmatchedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	if req.Limit > 0 && len(files) > req.Limit {
		files = files[:req.Limit]
	}

	s.log.Info("sort started",
		zap.String("inbox", req.InboxDir),
		zap.String("output", req.OutputDir),
		zap.String("mode", string(req.Mode)),
		zap.Int("files", len(files)),
		zap.Int("labels", r.snapshot.Len()),
		zap.Bool("dry_run", req.DryRun),
	)

	result := &SortResult{}
	for i, path := range files {
		if ctx.Err() != nil {
			result.Stopped = true
			break
		}

		// The in-flight file is finished even if the run is cancelled meanwhile.
		outcome, err := s.sortFile(context.WithoutCancel(ctx), r, path)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		result.Processed++
		switch outcome.Status {
		case StatusSorted:
			result.Sorted++
			result.Copies += len(outcome.Destinations) - 1
		case StatusUnmatched:
			result.Unmatched++
		case StatusFailed:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("%s: %s", path, outcome.Reason))
		}
		result.Outcomes = append(result.Outcomes, outcome)

		s.progress(req, ProgressInfo{
			Phase:   "sorting",
			Current: i + 1,
			Total:   len(files),
			Path:    path,
			Message: string(outcome.Status),
		})
	}

	result.Duration = time.Since(start)
	fields := []zap.Field{
		zap.Int("processed", result.Processed),
		zap.Int("sorted", result.Sorted),
		zap.Int("copies", result.Copies),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	}
	if result.Stopped {
		s.log.Info("sort stopped by user", fields...)
	} else {
		s.log.Info("sort finished", fields...)
	}
	return result, nil
}

// sortFile handles a single inbox file. Only an unavailable extractor is
// returned as an error; everything else is reported in the outcome.
func (s *Sorter) sortFile(ctx context.Context, r *run, path string) (Outcome, error) {
	outcome := Outcome{Source: path}
	name := s.destinationName(path, r.req.KeepOriginalNames)

	if r.req.Mode == facematch.ModeManual {
		return s.routeUnmatched(r, outcome, name, "manual triage"), nil
	}

	data, err := s.readFile(path)
	if err != nil {
		s.log.Warn("failed to read image", zap.String("path", path), zap.Error(err))
		return s.routeUnmatched(r, outcome, name, "unreadable"), nil
	}

	faces, err := s.extractor.DetectFaces(ctx, data)
	if err != nil {
		if errors.Is(err, embedding.ErrExtractorUnavailable) {
			return outcome, fmt.Errorf("face extraction failed for %s: %w", path, err)
		}
		s.log.Warn("failed to extract faces", zap.String("path", path), zap.Error(err))
		return s.routeUnmatched(r, outcome, name, "undecodable"), nil
	}
	if len(faces) == 0 {
		return s.routeUnmatched(r, outcome, name, "no faces"), nil
	}

	decision := facematch.Match(embedding.FaceVectors(faces), r.snapshot, r.threshold(s.defaultThreshold))
	if !decision.Matched() {
		return s.routeUnmatched(r, outcome, name, "no match"), nil
	}

	outcome.Labels = decision.MatchedLabels
	outcome.BestLabel = decision.BestLabel
	outcome.Scores = decision.LabelScores

	if r.req.DryRun {
		for _, label := range decision.OtherLabels() {
			outcome.Destinations = append(outcome.Destinations, s.labelDir(r, label))
		}
		outcome.Destinations = append(outcome.Destinations, s.labelDir(r, decision.BestLabel))
		outcome.Status = StatusSorted
		return outcome, nil
	}

	var dests []string
	if r.req.Mode == facematch.ModeMulti {
		dests, err = s.distributeMulti(r, path, name, decision)
	} else {
		var dst string
		dst, err = fileutil.MoveUnique(path, s.labelDir(r, decision.BestLabel), name)
		dests = []string{dst}
	}
	if err != nil {
		s.log.Warn("failed to distribute image", zap.String("path", path), zap.Error(err))
		outcome.Status = StatusFailed
		outcome.Reason = err.Error()
		return outcome, nil
	}

	outcome.Status = StatusSorted
	outcome.Destinations = dests
	s.audit(ctx, r, filepath.Base(path), decision)

	s.log.Debug("image sorted",
		zap.String("path", path),
		zap.String("best", decision.BestLabel),
		zap.Strings("labels", decision.MatchedLabels),
	)
	return outcome, nil
}

// distributeMulti copies the file into every other matched label and then moves
// it into the best label. When any step fails the copies made so far are removed
// and the source stays where it was, so a later run can retry.
func (s *Sorter) distributeMulti(r *run, path, name string, decision facematch.Decision) ([]string, error) {
	var copies []string
	rollback := func() {
		for _, c := range copies {
			if err := os.Remove(c); err != nil {
				s.log.Warn("failed to remove partial copy", zap.String("path", c), zap.Error(err))
			}
		}
	}

	for _, label := range decision.OtherLabels() {
		dst, err := fileutil.CopyUnique(path, s.labelDir(r, label), name)
		if err != nil {
			rollback()
			return nil, err
		}
		copies = append(copies, dst)
	}

	dst, err := fileutil.MoveUnique(path, s.labelDir(r, decision.BestLabel), name)
	if err != nil {
		rollback()
		return nil, err
	}
	return append(copies, dst), nil
}

func (s *Sorter) routeUnmatched(r *run, outcome Outcome, name, reason string) Outcome {
	outcome.Reason = reason
	if r.req.DryRun {
		outcome.Status = StatusUnmatched
		outcome.Destinations = []string{r.req.UnmatchedDir}
		return outcome
	}

	dst, err := fileutil.MoveUnique(outcome.Source, r.req.UnmatchedDir, name)
	if err != nil {
		s.log.Warn("failed to move image to unmatched", zap.String("path", outcome.Source), zap.Error(err))
		outcome.Status = StatusFailed
		outcome.Reason = fmt.Sprintf("%s; move to unmatched failed: %v", reason, err)
		return outcome
	}
	outcome.Status = StatusUnmatched
	outcome.Destinations = []string{dst}
	return outcome
}

// audit appends one record per qualifying face; failures are logged only
func (s *Sorter) audit(ctx context.Context, r *run, filename string, decision facematch.Decision) {
	now := time.Now().UTC()
	for _, face := range decision.Faces {
		rec := database.MatchRecord{
			Filename:     filename,
			MatchedLabel: face.Label,
			Confidence:   face.Score,
			Mode:         string(r.req.Mode),
			Timestamp:    now,
		}
		if err := s.store.LogMatch(ctx, rec); err != nil {
			s.log.Warn("failed to write audit record", zap.String("file", filename), zap.Error(err))
		}
	}
}

func (s *Sorter) labelDir(r *run, label string) string {
	return filepath.Join(r.req.OutputDir, facematch.FolderName(label))
}

// destinationName keeps the original base name or prefixes it with 8 random hex chars
func (s *Sorter) destinationName(path string, keepOriginal bool) string {
	name := filepath.Base(path)
	if keepOriginal {
		return name
	}
	id := uuid.New()
	return fmt.Sprintf("%x_%s", id[:4], name)
}

// loadThresholds fixes the thresholds used for the whole run
func (s *Sorter) loadThresholds(ctx context.Context, snap *refcache.Snapshot) (map[string]float64, error) {
	if s.thresholdSrc != nil {
		thresholds := make(map[string]float64, snap.Len())
		for _, label := range snap.Labels() {
			thresholds[label] = s.thresholdSrc.Threshold(ctx, label)
		}
		return thresholds, nil
	}

	labels, err := s.store.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	thresholds := make(map[string]float64, len(labels))
	for _, l := range labels {
		thresholds[l.Label] = l.Threshold
	}
	return thresholds, nil
}

func (r *run) threshold(def float64) facematch.ThresholdFunc {
	return func(label string) float64 {
		if t, ok := r.thresholds[label]; ok {
			return t
		}
		return def
	}
}

func (s *Sorter) progress(req SortRequest, info ProgressInfo) {
	if req.OnProgress != nil {
		req.OnProgress(info)
	}
}

// lockOutput takes an exclusive lock on the output directory for the run
func lockOutput(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	l := flock.New(filepath.Join(dir, lockFileName))
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot lock output directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, ErrOutputLocked)
	}
	return func() { _ = l.Unlock() }, nil
}
