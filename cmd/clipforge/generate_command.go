package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/jobs"
	"clipforge/internal/render"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		title       string
		channel     string
		mood        string
		scriptPath  string
		report      bool
		stills      []string
		enqueueOnly bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Produce a video from a scene script",
		Long: `Generate queues a production job from a scene script and runs it to
completion. The script is a JSON array of scenes:

  [{"sentence": "Lava meets the sea.", "keyword": "volcano ocean"}, ...]

A sentence containing [silence] marks a dramatic pause: the cue is stripped
before narration and background music is muted for that scene.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				scenes, err := loadScript(scriptPath)
				if err != nil {
					return err
				}

				job := &jobs.Job{
					Title:   strings.TrimSpace(title),
					Channel: strings.TrimSpace(channel),
					Mood:    strings.TrimSpace(mood),
					Report:  report,
				}
				if job.Title == "" {
					return errors.New("--title is required")
				}
				if report && len(stills) == 0 {
					return errors.New("--report requires at least one --still image")
				}
				if err := job.SetScenes(scenes); err != nil {
					return err
				}
				expanded, err := expandStills(stills)
				if err != nil {
					return err
				}
				if err := job.SetStills(expanded); err != nil {
					return err
				}

				if err := eng.store.Create(cmd.Context(), job); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued job %s (%d scenes)\n", job.ID, len(scenes))
				if enqueueOnly {
					return nil
				}

				if err := checkExternalTools(eng.cfg); err != nil {
					return err
				}
				lock, err := acquireStagingLock(eng.cfg)
				if err != nil {
					return err
				}
				defer lock.Unlock()

				if err := eng.runJob(cmd.Context(), job); err != nil {
					return err
				}
				fmt.Fprintf(out, "Final video: %s\n", job.FinalFile)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Video title")
	cmd.Flags().StringVar(&channel, "channel", "", "Content channel (selects the fallback footage keyword)")
	cmd.Flags().StringVar(&mood, "mood", "", "Background music mood tag")
	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "Path to the scene script JSON")
	cmd.Flags().BoolVar(&report, "report", false, "Report mode: open with still images instead of stock footage")
	cmd.Flags().StringArrayVar(&stills, "still", nil, "Still image for report mode (repeatable, script order)")
	cmd.Flags().BoolVar(&enqueueOnly, "enqueue", false, "Queue the job without running it (process later with `clipforge run`)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

// loadScript parses the scene script and assigns script-order indices.
func loadScript(path string) ([]render.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var scenes []render.Scene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	if len(scenes) == 0 {
		return nil, errors.New("script has no scenes")
	}
	for i := range scenes {
		scenes[i].Index = i
		if strings.TrimSpace(scenes[i].Sentence) == "" {
			return nil, fmt.Errorf("scene %d has an empty sentence", i)
		}
		if strings.TrimSpace(scenes[i].Keyword) == "" {
			return nil, fmt.Errorf("scene %d has an empty keyword", i)
		}
	}
	return scenes, nil
}

func expandStills(paths []string) ([]string, error) {
	expanded := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := config.ExpandPath(p)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("still image %s: %w", p, err)
		}
		expanded = append(expanded, abs)
	}
	return expanded, nil
}
