package summary

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// commitAuthor identifies the mirror's automated commits.
const (
	commitAuthorName  = "crmirror"
	commitAuthorEmail = "crmirror@users.noreply.github.com"
)

// commitAndPush stages filePath in the repository at repoPath, commits it,
// and pushes to the default remote. Every benign outcome is tolerated: no
// repo at the path, nothing changed, remote already up to date, or no remote
// configured at all.
func commitAndPush(repoPath, filePath, message string, logger *slog.Logger) (bool, bool, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			logger.Info("no repository at path, skipping summary commit", "path", repoPath)
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, false, fmt.Errorf("failed to get worktree: %w", err)
	}

	relPath, err := filepath.Rel(repoPath, filePath)
	if err != nil {
		return false, false, fmt.Errorf("summary path is outside the repository: %w", err)
	}

	if _, err := worktree.Add(relPath); err != nil {
		return false, false, fmt.Errorf("failed to stage %s: %w", relPath, err)
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthorName,
			Email: commitAuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			logger.Info("summary unchanged, nothing to commit")
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to commit summary: %w", err)
	}

	err = repo.Push(&git.PushOptions{})
	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return true, true, nil
		}
		if errors.Is(err, git.ErrRemoteNotFound) {
			logger.Info("no remote configured, summary committed locally only")
			return true, false, nil
		}
		// Push failures (network, auth) leave the commit in place.
		logger.Warn("failed to push summary commit", "error", err)
		return true, false, nil
	}

	return true, true, nil
}
