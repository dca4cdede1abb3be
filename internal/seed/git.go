package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// IsGitURL reports whether source names a remote repository rather than a
// local path.
func IsGitURL(source string) bool {
	u, err := url.Parse(source)
	if err == nil && (u.Scheme == "https" || u.Scheme == "http" || u.Scheme == "ssh") {
		return true
	}
	return strings.HasPrefix(source, "git@")
}

// LocalPath maps a repository URL to a checkout directory under baseDir,
// e.g. https://github.com/a/b.git -> baseDir/github.com/a/b.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		// scp-like form: git@host:owner/repo.git
		if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
			host, repoPath, ok := strings.Cut(rest, ":")
			if ok && host != "" && repoPath != "" {
				return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return filepath.Join(baseDir, parsedURL.Host, strings.TrimSuffix(parsedURL.Path, ".git")), nil
}

// SyncRepo clones repoURL into localPath, or pulls when a checkout is
// already there.
func SyncRepo(ctx context.Context, repoURL, localPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("cloning seed repository", "url", repoURL, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      repoURL,
			Depth:    1,
			Progress: io.Discard,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
	case err == nil:
		logger.Info("pulling seed repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}
