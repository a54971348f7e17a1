package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/resolve"
)

// NewResolver builds the content resolver selected by cfg.Resolve.Source.
func NewResolver(cfg *config.Config) (resolve.Resolver, error) {
	opts := resolve.Options{Extensions: cfg.Resolve.Extensions, Modules: cfg.Resolve.Modules}
	switch cfg.Resolve.Source {
	case config.SourceGit:
		repo := cfg.Resolve.Git.Repository
		sub, err := filepath.Rel(repo, cfg.Context)
		if err != nil || sub == ".." || strings.HasPrefix(sub, ".."+string(filepath.Separator)) {
			return nil, ferrors.ConfigError(fmt.Sprintf("context %s is outside repository %s", cfg.Context, repo)).Build()
		}
		r, err := resolve.NewGitResolver(repo, cfg.Resolve.Git.Revision, filepath.ToSlash(sub), opts)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "open git source").
				WithContext("repository", repo).
				WithContext("revision", cfg.Resolve.Git.Revision).Build()
		}
		return r, nil
	default:
		return resolve.NewFSResolver(cfg.Context, opts), nil
	}
}
