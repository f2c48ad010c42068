// Package export builds downloadable archives of workspace content.
// Export runs as an asynchronous job: the API enqueues, a worker claims
// pending jobs one at a time, zips every non-deleted file and stores the
// artifact for later download.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/internal/telemetry"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

const defaultPollInterval = 2 * time.Second

// Service enqueues export jobs and runs the background worker.
type Service struct {
	store     store.Store
	artifacts ArtifactStore

	pollInterval time.Duration

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewService creates an export service over the given stores.
func NewService(st store.Store, artifacts ArtifactStore) *Service {
	return &Service{
		store:        st,
		artifacts:    artifacts,
		pollInterval: defaultPollInterval,
		stop:         make(chan struct{}),
	}
}

// Enqueue creates a pending job for the workspace.
func (s *Service) Enqueue(ctx context.Context, workspaceID, requestedBy string) (*models.ExportJob, error) {
	job := &models.ExportJob{
		WorkspaceID: workspaceID,
		RequestedBy: requestedBy,
		Status:      string(models.ExportPending),
	}
	if _, err := s.store.CreateExportJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Start launches the worker loop.
func (s *Service) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Drain the queue before sleeping again.
				for s.RunOnce(context.Background()) {
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the worker. A job in progress finishes first.
func (s *Service) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// RunOnce claims and processes at most one pending job. It reports
// whether a job was processed.
func (s *Service) RunOnce(ctx context.Context) bool {
	job, err := s.store.ClaimNextExportJob(ctx, time.Now())
	if err != nil {
		if !errors.Is(err, models.ErrExportNotFound) {
			logger.Error("failed to claim export job", "error", err)
		}
		return false
	}

	if err := s.process(ctx, job); err != nil {
		logger.Error("export job failed", "job", job.ID, "workspace", job.WorkspaceID, "error", err)
		if failErr := s.store.FailExportJob(ctx, job.ID, err.Error(), time.Now()); failErr != nil {
			logger.Error("failed to mark export job failed", "job", job.ID, "error", failErr)
		}
	}
	return true
}

func (s *Service) process(ctx context.Context, job *models.ExportJob) error {
	ctx, span := telemetry.StartExportSpan(ctx, job.ID, job.WorkspaceID)
	defer span.End()

	files, err := s.store.ListFilesUnder(ctx, job.WorkspaceID, "/")
	if err != nil {
		return fmt.Errorf("failed to list workspace files: %w", err)
	}

	span.SetAttributes(telemetry.FileCount(len(files)))

	archive, err := BuildArchive(files)
	if err != nil {
		return err
	}

	ref := fmt.Sprintf("%s/%s.zip", job.WorkspaceID, job.ID)
	if err := s.artifacts.Put(ctx, ref, archive); err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	if err := s.store.CompleteExportJob(ctx, job.ID, ref, len(files), int64(len(archive)), time.Now()); err != nil {
		return fmt.Errorf("failed to complete export job: %w", err)
	}
	logger.Info("export job completed",
		"job", job.ID, "workspace", job.WorkspaceID, "files", len(files), "bytes", len(archive))
	return nil
}

// Artifact returns the stored archive for a finished job.
func (s *Service) Artifact(ctx context.Context, job *models.ExportJob) ([]byte, error) {
	if job.Status != string(models.ExportDone) || job.ArtifactRef == "" {
		return nil, ErrArtifactNotFound
	}
	return s.artifacts.Get(ctx, job.ArtifactRef)
}
