package resolve

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitResolver resolves modules from the tree of a commit in a local repository,
// so a revision can be built without checking it out.
type GitResolver struct {
	tree   *object.Tree
	commit string
	prefix string
	opts   Options
}

// NewGitResolver opens the repository at repoPath and pins revision. subdir is
// the source root inside the repository ("" for the top level).
func NewGitResolver(repoPath, revision, subdir string, opts Options) (*GitResolver, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	if revision == "" {
		revision = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("resolve revision %s: %w", revision, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("get commit object: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}

	prefix := strings.Trim(path.Clean(strings.ReplaceAll(subdir, "\\", "/")), "/")
	if prefix == "." {
		prefix = ""
	}
	return &GitResolver{tree: tree, commit: hash.String(), prefix: prefix, opts: opts}, nil
}

// Commit returns the resolved commit hash.
func (g *GitResolver) Commit() string { return g.commit }

func (g *GitResolver) Resolve(ctx context.Context, ref, from string) (string, error) {
	return resolveWith(ctx, g.opts, ref, from, func(_ context.Context, id string) (bool, error) {
		f, err := g.tree.File(g.treePath(id))
		if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return f.Mode.IsFile(), nil
	})
}

func (g *GitResolver) Read(_ context.Context, id string) ([]byte, error) {
	f, err := g.tree.File(g.treePath(id))
	if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", id, g.commit, err)
	}
	return []byte(content), nil
}

func (g *GitResolver) treePath(id string) string {
	if g.prefix == "" {
		return id
	}
	return g.prefix + "/" + id
}
