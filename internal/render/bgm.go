package render

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/logging"
	"clipforge/internal/services/music"
)

// BGMSource picks a background-music file for a mood. An empty path means the
// video ships without BGM.
type BGMSource interface {
	Select(ctx context.Context, mood string) string
}

// BGMPicker implements the three-step BGM chain: a random local file from the
// mood's directory, then on-demand generation, then none.
type BGMPicker struct {
	dir       string
	generator music.Generator
	logger    *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewBGMPicker builds a picker over the local music library at dir. The
// generator may be nil, which skips the generation step.
func NewBGMPicker(dir string, generator music.Generator, logger *slog.Logger) *BGMPicker {
	return &BGMPicker{
		dir:       dir,
		generator: generator,
		logger:    logging.NewComponentLogger(logger, "bgm"),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select implements BGMSource.
func (p *BGMPicker) Select(ctx context.Context, mood string) string {
	mood = strings.ToLower(strings.TrimSpace(mood))
	if mood == "" || p.dir == "" {
		return ""
	}

	if path := p.pickLocal(mood); path != "" {
		return path
	}
	if p.generator == nil {
		return ""
	}

	moodDir := filepath.Join(p.dir, mood)
	if err := os.MkdirAll(moodDir, 0o755); err != nil {
		p.logger.Warn("cannot create mood directory, skipping BGM",
			logging.String("mood", mood),
			logging.Error(err))
		return ""
	}
	generated := filepath.Join(moodDir, "generated_"+uuid.NewString()+".mp3")
	if err := p.generator.Generate(ctx, mood, generated); err != nil {
		p.logger.Warn("music generation failed, continuing without BGM",
			logging.String(logging.FieldEventType, "bgm_generation_failed"),
			logging.String("mood", mood),
			logging.Error(err))
		return ""
	}
	p.logger.Info("generated BGM track",
		logging.String(logging.FieldEventType, "bgm_generated"),
		logging.String("mood", mood))
	return generated
}

func (p *BGMPicker) pickLocal(mood string) string {
	entries, err := os.ReadDir(filepath.Join(p.dir, mood))
	if err != nil {
		return ""
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".mp3", ".m4a", ".wav", ".flac", ".ogg":
			files = append(files, filepath.Join(p.dir, mood, entry.Name()))
		}
	}
	if len(files) == 0 {
		return ""
	}

	p.rngMu.Lock()
	choice := files[p.rng.Intn(len(files))]
	p.rngMu.Unlock()
	return choice
}

var _ BGMSource = (*BGMPicker)(nil)
