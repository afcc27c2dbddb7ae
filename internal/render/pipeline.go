package render

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"clipforge/internal/config"
	"clipforge/internal/logging"
)

// SilenceRange is a window in the final timeline during which BGM is ducked
// to zero, in seconds.
type SilenceRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// PipelineOutput is the completed intermediate artifact handed to Finalize.
// It serializes to JSON so a job can be re-finalized from persisted state.
type PipelineOutput struct {
	Mood          string         `json:"mood"`
	ClipPaths     []string       `json:"clip_paths"`
	Durations     []float64      `json:"durations"`
	Subtitles     []string       `json:"subtitles"`
	SilenceRanges []SilenceRange `json:"silence_ranges"`
}

// Coordinator fans scene work out to the Assembler and drives finalization.
type Coordinator struct {
	cfg       *config.Config
	assembler *Assembler
	codec     *Selector
	encoder   Encoder
	bgm       BGMSource
	logger    *slog.Logger
}

// NewCoordinator wires the pipeline coordinator.
func NewCoordinator(cfg *config.Config, assembler *Assembler, encoder Encoder, codec *Selector, bgm BGMSource, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		assembler: assembler,
		codec:     codec,
		encoder:   encoder,
		bgm:       bgm,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Assemble processes every scene concurrently and collects results in the
// original scene order. Any single scene failure aborts the whole job:
// in-flight siblings are cancelled and their results discarded.
func (c *Coordinator) Assemble(ctx context.Context, job Job, workDir string) (*PipelineOutput, error) {
	if len(job.Scenes) == 0 {
		return nil, errors.New("assemble: job has no scenes")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result SceneResult
		err    error
	}
	outcomes := make(chan outcome, len(job.Scenes))
	var wg sync.WaitGroup
	for _, scene := range job.Scenes {
		wg.Add(1)
		go func(scene Scene) {
			defer wg.Done()
			result, err := c.assembler.AssembleScene(ctx, job, scene, workDir)
			outcomes <- outcome{result: result, err: err}
		}(scene)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]SceneResult, 0, len(job.Scenes))
	var firstErr error
	for o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
				cancel()
			}
			continue
		}
		results = append(results, o.result)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	// Parallel completion order is arbitrary; timing math needs script order.
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	output := &PipelineOutput{Mood: job.Mood}
	offset := 0.0
	for _, r := range results {
		output.ClipPaths = append(output.ClipPaths, r.ClipPath)
		output.Durations = append(output.Durations, r.Duration)
		output.Subtitles = append(output.Subtitles, r.Subtitle)
		if r.Silence {
			output.SilenceRanges = append(output.SilenceRanges, SilenceRange{Start: offset, End: offset + r.Duration})
		}
		offset += r.Duration
	}

	c.logger.Info("all scenes assembled",
		logging.String(logging.FieldEventType, "assembly_complete"),
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("scenes", len(results)),
		logging.Float64("total_seconds", offset))
	return output, nil
}
