package skills

import (
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
)

// GitArchiver commits skill file changes to a repository rooted at the
// library directory, giving every version bump a durable history entry.
type GitArchiver struct {
	root string
	repo *git.Repository
}

// NewGitArchiver opens the repository at root, initializing one when the
// directory is not yet under version control.
func NewGitArchiver(root string) (*GitArchiver, error) {
	repo, err := git.PlainOpen(root)
	if err == git.ErrRepositoryNotExists {
		repo, err = git.PlainInit(root, false)
	}
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError,
			"open skill archive repository").WithContext("root", root)
	}
	return &GitArchiver{root: root, repo: repo}, nil
}

// Commit stages the given paths and records a commit. Paths may be absolute
// or relative to the library root.
func (a *GitArchiver) Commit(paths []string, message string) error {
	wt, err := a.repo.Worktree()
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError,
			"open skill archive worktree")
	}
	for _, p := range paths {
		rel := p
		if filepath.IsAbs(p) {
			rel, err = filepath.Rel(a.root, p)
			if err != nil {
				return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError,
					"resolve archive path").WithContext("path", p)
			}
		}
		if _, err := wt.Add(rel); err != nil {
			return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError,
				"stage skill file").WithContext("path", rel)
		}
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "contentpipe",
			Email: "contentpipe@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError,
			"commit skill archive")
	}
	return nil
}
