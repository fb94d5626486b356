package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRecorder commits the stories directory after a publish, initializing a
// repository there on first use.
type GitRecorder struct {
	dir   string
	name  string
	email string
}

// NewGitRecorder creates a recorder for dir. Empty author fields get defaults.
func NewGitRecorder(dir, name, email string) *GitRecorder {
	if name == "" {
		name = "proofread"
	}
	if email == "" {
		email = "proofread@localhost"
	}
	return &GitRecorder{dir: dir, name: name, email: email}
}

// Record stages every change under the directory and commits it. It returns
// the commit hash, or "" when the worktree was already clean.
func (r *GitRecorder) Record(ctx context.Context, message string) (string, error) {
	repo, err := git.PlainOpen(r.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(r.dir, false)
	}
	if err != nil {
		return "", fmt.Errorf("open stories repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return "", fmt.Errorf("git status: %w", err)
	}
	if status.IsClean() {
		return "", nil
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.name,
			Email: r.email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit publish: %w", err)
	}
	return hash.String(), nil
}
