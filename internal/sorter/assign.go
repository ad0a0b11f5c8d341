package sorter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/facematch"
	"github.com/kozaktomas/face-sorter/internal/fileutil"
)

// AssignRequest files reviewed photos (usually from the unmatched folder) under a label by hand
type AssignRequest struct {
	Paths     []string
	Label     string
	OutputDir string
	Copy      bool // keep the source in place
}

// AssignResult lists what one manual assignment wrote
type AssignResult struct {
	Destinations []string
	Errors       []error
}

// Assign moves or copies each path into OutputDir/<label>. It holds the same
// output lock as Sort, so it fails with ErrOutputLocked while a sort is running.
// Per-file failures are collected in the result.
func (s *Sorter) Assign(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	if strings.TrimSpace(req.Label) == "" || req.OutputDir == "" {
		return nil, errors.New("label and output directory are required")
	}
	if len(req.Paths) == 0 {
		return nil, errors.New("no photos to assign")
	}

	unlock, err := lockOutput(req.OutputDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dir := filepath.Join(req.OutputDir, facematch.FolderName(req.Label))
	result := &AssignResult{}
	for _, path := range req.Paths {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err())
			break
		}

		var dst string
		if req.Copy {
			dst, err = fileutil.CopyUnique(path, dir, filepath.Base(path))
		} else {
			dst, err = fileutil.MoveUnique(path, dir, filepath.Base(path))
		}
		if err != nil {
			s.log.Warn("failed to assign image", zap.String("path", path), zap.String("label", req.Label), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", path, err))
			continue
		}
		result.Destinations = append(result.Destinations, dst)

		rec := database.MatchRecord{
			Filename:     filepath.Base(path),
			MatchedLabel: req.Label,
			Confidence:   1,
			Mode:         string(facematch.ModeManual),
			Timestamp:    time.Now().UTC(),
		}
		if err := s.store.LogMatch(ctx, rec); err != nil {
			s.log.Warn("failed to write audit record", zap.String("file", rec.Filename), zap.Error(err))
		}
	}

	s.log.Info("photos assigned by hand",
		zap.String("label", req.Label),
		zap.Int("assigned", len(result.Destinations)),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}
