package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// clean empties the output directory at pipeline start. Top-level names
// matching a keep pattern survive.
type clean struct {
	keep   []string
	logger *slog.Logger
}

func newClean(opts map[string]any, deps Deps) (Plugin, error) {
	keep, err := optStrings(opts, "keep")
	if err != nil {
		return nil, err
	}
	for _, k := range keep {
		if _, err := path.Match(k, ""); err != nil {
			return nil, fmt.Errorf("keep pattern %q: %w", k, err)
		}
	}
	return &clean{keep: keep, logger: deps.logger()}, nil
}

func (c *clean) Name() string { return "clean" }

func (c *clean) Register(o *Orchestrator) {
	o.Register(HookPipelineStart, c.Name(), c.run)
}

func (c *clean) run(_ context.Context, hc *HookContext) error {
	dir := hc.OutputDir
	if dir == "" {
		return nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return fmt.Errorf("refusing to clean filesystem root %s", abs)
	}

	entries, err := os.ReadDir(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	removed := 0
	for _, e := range entries {
		if c.kept(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(abs, e.Name())); err != nil {
			return err
		}
		removed++
	}
	c.logger.Debug("Output cleaned", logfields.Path(abs), logfields.Count(removed))
	return nil
}

func (c *clean) kept(name string) bool {
	for _, k := range c.keep {
		if ok, _ := path.Match(k, name); ok {
			return true
		}
	}
	return false
}
