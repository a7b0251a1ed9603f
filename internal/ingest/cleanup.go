package ingest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/sink"
)

// Cleanup removes partial batch files left by interrupted runs and the
// directories that end up empty, after uploads removed their batches.
func Cleanup(dir string, log zerolog.Logger) error {
	start := time.Now()
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	var partials int
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), sink.PartialSuffix) {
			if err := os.Remove(path); err != nil {
				return err
			}
			partials++
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Deepest first so parents empty out after their children.
	slices.Reverse(dirs)
	var removed int
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) > 0 {
			continue
		}
		if os.Remove(d) == nil {
			removed++
		}
	}

	log.Info().
		Int("partials_removed", partials).
		Int("dirs_removed", removed).
		Dur("duration", time.Since(start)).
		Msg("output cleanup complete")
	return nil
}
