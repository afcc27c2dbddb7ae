package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/services"
)

// acquireStagingLock guards the staging directory so two processes never
// interleave scene files in one workspace.
func acquireStagingLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(cfg.Paths.StagingDir, "clipforge.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire staging lock: %w", err)
	}
	if !locked {
		return nil, errors.New("staging directory is locked by another clipforge process")
	}
	return lock, nil
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process queued jobs until the queue is drained",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				if err := checkExternalTools(eng.cfg); err != nil {
					return err
				}
				lock, err := acquireStagingLock(eng.cfg)
				if err != nil {
					return err
				}
				defer lock.Unlock()
				return eng.drainQueue(cmd.Context(), cmd.OutOrStdout())
			})
		},
	}
}

// drainQueue finishes assembled jobs first (they already hold staging space),
// then works through pending jobs oldest-first. A job failure does not stop
// the drain; the first failure is returned once the queue is empty.
func (e *engine) drainQueue(ctx context.Context, out io.Writer) error {
	var firstErr error
	processed := 0

	report := func(job *jobs.Job, err error) {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			fmt.Fprintf(out, "Job %s failed: %v\n", job.ID, err)
			return
		}
		processed++
		fmt.Fprintf(out, "Job %s completed: %s\n", job.ID, job.FinalFile)
	}

	resumable, err := e.store.List(ctx, jobs.StatusAssembled)
	if err != nil {
		return err
	}
	for _, job := range resumable {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report(job, e.runJob(ctx, job))
	}

	for {
		job, err := e.store.NextPending(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			break
		}
		report(job, e.runJob(ctx, job))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if processed == 0 && firstErr == nil {
		fmt.Fprintln(out, "Queue is empty")
	}
	return firstErr
}

// runJob drives one job through its remaining stages. Jobs with persisted
// pipeline output resume at finalize; everything else assembles first.
func (e *engine) runJob(ctx context.Context, job *jobs.Job) error {
	renderJob, err := job.RenderJob()
	if err != nil {
		return e.failJob(ctx, job, err)
	}

	workDir := filepath.Join(e.cfg.Paths.StagingDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return e.failJob(ctx, job, fmt.Errorf("create work directory: %w", err))
	}

	output, err := job.Output()
	if err != nil {
		return e.failJob(ctx, job, err)
	}

	if output == nil {
		if err := e.notify.NotifyJobStarted(ctx, job.Title, len(renderJob.Scenes)); err != nil {
			e.logger.Warn("notify job started", logging.Error(err))
		}
		job.Status = jobs.StatusAssembling
		if err := e.store.Update(ctx, job); err != nil {
			return err
		}
		output, err = e.coordinator.Assemble(ctx, renderJob, workDir)
		if err != nil {
			return e.failJob(ctx, job, err)
		}
		if err := job.SetOutput(output); err != nil {
			return e.failJob(ctx, job, err)
		}
		job.Status = jobs.StatusAssembled
		if err := e.store.Update(ctx, job); err != nil {
			return err
		}
	} else {
		e.logger.Info("resuming finalize from persisted assembly",
			logging.String(logging.FieldJobID, job.ID),
			logging.Int("clips", len(output.ClipPaths)))
	}

	job.Status = jobs.StatusFinalizing
	if err := e.store.Update(ctx, job); err != nil {
		return err
	}

	finalFile, err := e.coordinator.Finalize(ctx, renderJob, output, workDir)
	if err != nil {
		return e.failJob(ctx, job, err)
	}

	job.Status = jobs.StatusCompleted
	job.FinalFile = finalFile
	job.ErrorMessage = ""
	job.Retryable = false
	if err := e.store.Update(ctx, job); err != nil {
		return err
	}

	var total float64
	for _, d := range output.Durations {
		total += d
	}
	if err := e.notify.NotifyJobCompleted(ctx, job.Title, finalFile, time.Duration(total*float64(time.Second))); err != nil {
		e.logger.Warn("notify job completed", logging.Error(err))
	}

	// Intermediates are only needed for resume; the job is done.
	if err := os.RemoveAll(workDir); err != nil {
		e.logger.Warn("clean work directory",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
	return nil
}

func (e *engine) failJob(ctx context.Context, job *jobs.Job, cause error) error {
	retryable := services.IsRetryable(cause)
	job.SetFailed(cause.Error(), retryable)
	if err := e.store.Update(ctx, job); err != nil {
		e.logger.Error("persist job failure",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
	if err := e.notify.NotifyJobFailed(ctx, job.Title, cause.Error(), retryable); err != nil {
		e.logger.Warn("notify job failed", logging.Error(err))
	}
	return cause
}
