// Package services wraps the repository-level operations the admin API
// exposes: git sync/publish, media files and the static export.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dev-sujan/prepdesk/pkg/logging"
)

// Git shells out to the git binary inside the corpus repository. OAuth tokens
// are injected into the remote URL per call and scrubbed from every line of
// output before it goes anywhere.
type Git struct {
	repoPath  string
	remote    string
	branch    string
	userName  string
	userEmail string
	log       zerolog.Logger
}

// NewGit creates a Git service rooted at repoPath.
func NewGit(repoPath, remote, branch, userName, userEmail string) *Git {
	return &Git{
		repoPath:  repoPath,
		remote:    remote,
		branch:    branch,
		userName:  userName,
		userEmail: userEmail,
		log:       logging.WithComponent("git"),
	}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoPath
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// runWithToken swaps the remote name in args for a token-authenticated URL,
// runs the command and scrubs both the token and the URL from the output.
func (g *Git) runWithToken(ctx context.Context, token string, args ...string) (string, error) {
	rawURL, err := g.run(ctx, "remote", "get-url", g.remote)
	if err != nil {
		return rawURL, fmt.Errorf("resolve remote %q: %w", g.remote, err)
	}
	remoteURL := strings.TrimSpace(rawURL)

	u, err := url.Parse(remoteURL)
	if err != nil {
		return "", fmt.Errorf("remote url %q: %w", remoteURL, err)
	}
	u.User = url.UserPassword("oauth2", token)
	authURL := u.String()

	patched := make([]string, len(args))
	copy(patched, args)
	for i, arg := range patched {
		if arg == g.remote {
			patched[i] = authURL
		}
	}

	out, err := g.run(ctx, patched...)
	out = strings.ReplaceAll(out, authURL, remoteURL)
	if token != "" {
		out = strings.ReplaceAll(out, token, "***")
	}
	return out, err
}

// DirtyFiles returns repo-relative paths with uncommitted changes. The corpus
// listing uses it for dirty flags, so a missing git binary or repo degrades
// to an error the caller can ignore.
func (g *Git) DirtyFiles(ctx context.Context) (map[string]bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status: %s", strings.TrimSpace(out))
	}

	dirty := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		p := strings.TrimSpace(line[3:])
		// Renames come as "old -> new"; only the new path is live.
		if idx := strings.Index(p, " -> "); idx >= 0 {
			p = p[idx+4:]
		}
		p = strings.Trim(p, `"`)
		if p != "" {
			dirty[p] = true
		}
	}
	return dirty, nil
}

// Sync pulls the configured branch using the session token.
func (g *Git) Sync(ctx context.Context, token string) (string, error) {
	out, err := g.runWithToken(ctx, token, "pull", g.remote, g.branch)
	if err != nil {
		return out, fmt.Errorf("git pull: %w", err)
	}
	g.log.Info().Str("branch", g.branch).Msg("corpus synced from remote")
	return out, nil
}

// Publish stages everything, commits as the configured bot author and pushes.
// A clean tree skips the commit and pushes whatever is already there.
func (g *Git) Publish(ctx context.Context, token, message string) (string, error) {
	if out, err := g.run(ctx, "add", "-A"); err != nil {
		return out, fmt.Errorf("git add: %s", strings.TrimSpace(out))
	}

	if message == "" {
		message = "prepdesk: update " + time.Now().Format("2006-01-02 15:04")
	}
	commitOut, err := g.run(ctx,
		"-c", "user.name="+g.userName,
		"-c", "user.email="+g.userEmail,
		"commit", "-m", message)
	if err != nil && !strings.Contains(commitOut, "nothing to commit") {
		return commitOut, fmt.Errorf("git commit: %s", strings.TrimSpace(commitOut))
	}

	out, err := g.runWithToken(ctx, token, "push", g.remote, g.branch)
	if err != nil {
		return out, fmt.Errorf("git push: %w", err)
	}
	g.log.Info().Str("branch", g.branch).Msg("corpus published")
	return out, nil
}

// Diff reports pending changes for one file. Editor content, when given, is
// compared against the saved file first with --no-index; otherwise the
// working tree diff against HEAD is returned. The second result names the
// diff source: "unsaved", "git" or "none".
func (g *Git) Diff(ctx context.Context, absPath, repoRelPath string, edited []byte) (string, string, error) {
	if edited != nil {
		diff, differs, err := g.unsavedDiff(ctx, absPath, edited)
		if err != nil {
			return "", "", err
		}
		if differs {
			return diff, "unsaved", nil
		}
	}

	out, err := g.run(ctx, "diff", "HEAD", "--", repoRelPath)
	if err != nil {
		return "", "", fmt.Errorf("git diff: %s", strings.TrimSpace(out))
	}
	if strings.TrimSpace(out) != "" {
		return out, "git", nil
	}
	return "", "none", nil
}

func (g *Git) unsavedDiff(ctx context.Context, absPath string, edited []byte) (string, bool, error) {
	tmp, err := os.CreateTemp("", "prepdesk-editor-*")
	if err != nil {
		return "", false, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(edited); err != nil {
		_ = tmp.Close()
		return "", false, err
	}
	if err := tmp.Close(); err != nil {
		return "", false, err
	}

	cmd := exec.CommandContext(ctx, "git", "diff", "--no-index", "--", absPath, tmp.Name())
	out, err := cmd.CombinedOutput()
	if err != nil {
		// Exit code 1 just means the files differ.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			diff := strings.ReplaceAll(string(out), tmp.Name(), "editor")
			diff = strings.ReplaceAll(diff, absPath, "saved")
			return diff, true, nil
		}
		return "", false, fmt.Errorf("git diff --no-index: %w", err)
	}
	return "", false, nil
}

// HeadRevision returns the short HEAD commit hash for status displays.
func (g *Git) HeadRevision(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %s", strings.TrimSpace(out))
	}
	return strings.TrimSpace(out), nil
}
