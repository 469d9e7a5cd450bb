// Package git wraps the git CLI behind a small client used for branch
// and worktree management. Commands run through a CommandExecutor so
// tests can substitute a mock without touching a real repository.
//
// Every operation takes a context and applies a timeout: 60 seconds for
// local commands, 300 seconds for anything that talks to a remote. A
// deadline expiry surfaces as TimeoutError; any other failure surfaces
// as GitError carrying the command and its stderr.
package git

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hotter6163/taskctl/internal/errors"
)

const (
	// DefaultTimeout bounds local git commands.
	DefaultTimeout = 60 * time.Second

	// NetworkTimeout bounds fetch, pull, and push.
	NetworkTimeout = 300 * time.Second

	// maxOutput caps captured command output.
	maxOutput = 10 * 1024 * 1024
)

// -----------------------------------------------------------------------------
// Command Executor
// -----------------------------------------------------------------------------

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command in dir and returns stdout and stderr
	// separately. Output is truncated at 10 MiB.
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and captures bounded output.
func (e *CLICommandExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr boundedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// boundedBuffer discards writes past maxOutput so a runaway command
// cannot exhaust memory.
type boundedBuffer struct {
	buf bytes.Buffer
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := maxOutput - b.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) Bytes() []byte { return b.buf.Bytes() }

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client runs git commands against one repository.
type Client struct {
	repoDir  string
	executor CommandExecutor
}

// NewClient creates a client for the repository at repoDir.
func NewClient(repoDir string) *Client {
	return &Client{repoDir: repoDir, executor: NewCLICommandExecutor()}
}

// NewClientWithExecutor creates a client with a custom executor,
// primarily for tests.
func NewClientWithExecutor(repoDir string, executor CommandExecutor) *Client {
	return &Client{repoDir: repoDir, executor: executor}
}

// RepoDir returns the repository path the client operates on.
func (c *Client) RepoDir() string { return c.repoDir }

// run executes a local git command under DefaultTimeout.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	return c.runIn(ctx, c.repoDir, DefaultTimeout, args...)
}

// runNetwork executes a remote-touching git command under NetworkTimeout.
func (c *Client) runNetwork(ctx context.Context, args ...string) (string, error) {
	return c.runIn(ctx, c.repoDir, NetworkTimeout, args...)
}

func (c *Client) runIn(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := c.executor.Run(ctx, dir, "git", args...)
	if err != nil {
		command := "git " + strings.Join(args, " ")
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.NewTimeoutError(command, timeout)
		}
		return "", errors.NewGitError(command, strings.TrimSpace(string(stderr)), err).
			WithRepository(dir)
	}
	return strings.TrimSpace(string(stdout)), nil
}

// -----------------------------------------------------------------------------
// Repository Introspection
// -----------------------------------------------------------------------------

// IsRepo reports whether the client's directory is inside a git
// work tree.
func (c *Client) IsRepo(ctx context.Context) bool {
	out, err := c.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// RepoRoot returns the top-level directory of the work tree.
func (c *Client) RepoRoot(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--show-toplevel")
}

// MainRepoPath returns the primary repository directory even when the
// client points into a linked worktree.
func (c *Client) MainRepoPath(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--path-format=absolute", "--git-common-dir")
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(out, "/.git"), nil
}

// ListFiles returns the paths of all tracked files.
func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CurrentBranch returns the checked-out branch name.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// IsDirty reports whether the work tree has uncommitted changes.
func (c *Client) IsDirty(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// RemoteURL returns the fetch URL of origin, or empty when no remote is
// configured.
func (c *Client) RemoteURL(ctx context.Context) string {
	out, err := c.run(ctx, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return out
}

// AheadBehind returns how many commits branch is ahead of and behind
// base. Unknown when the comparison fails (e.g. unborn branch), in
// which case both counts are -1 with a nil error.
func (c *Client) AheadBehind(ctx context.Context, branch, base string) (ahead, behind int, err error) {
	out, runErr := c.run(ctx, "rev-list", "--left-right", "--count", branch+"..."+base)
	if runErr != nil {
		return -1, -1, nil
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return -1, -1, nil
	}
	ahead, aerr := strconv.Atoi(fields[0])
	behind, berr := strconv.Atoi(fields[1])
	if aerr != nil || berr != nil {
		return -1, -1, nil
	}
	return ahead, behind, nil
}

// -----------------------------------------------------------------------------
// Branches
// -----------------------------------------------------------------------------

// BranchExists reports whether a local branch exists.
func (c *Client) BranchExists(ctx context.Context, branch string) bool {
	_, err := c.run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// CreateBranch creates a branch at the given start point without
// checking it out.
func (c *Client) CreateBranch(ctx context.Context, branch, startPoint string) error {
	_, err := c.run(ctx, "branch", branch, startPoint)
	if err != nil {
		var gitErr *errors.GitError
		if errors.As(err, &gitErr) {
			return gitErr.WithBranch(branch)
		}
	}
	return err
}

// Checkout switches a work tree directory to the given branch.
func (c *Client) Checkout(ctx context.Context, dir, branch string) error {
	_, err := c.runIn(ctx, dir, DefaultTimeout, "checkout", branch)
	if err != nil {
		var gitErr *errors.GitError
		if errors.As(err, &gitErr) {
			return gitErr.WithBranch(branch)
		}
	}
	return err
}

// DeleteBranch removes a local branch; force drops unmerged commits.
func (c *Client) DeleteBranch(ctx context.Context, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := c.run(ctx, "branch", flag, branch)
	return err
}

// -----------------------------------------------------------------------------
// Worktrees
// -----------------------------------------------------------------------------

// Worktree is one entry from `git worktree list`.
type Worktree struct {
	Path   string
	Branch string
	Head   string
}

// AddWorktree creates a linked worktree at path checked out to branch.
func (c *Client) AddWorktree(ctx context.Context, path, branch string) error {
	_, err := c.run(ctx, "worktree", "add", path, branch)
	if err != nil {
		var gitErr *errors.GitError
		if errors.As(err, &gitErr) {
			return gitErr.WithWorktree(path).WithBranch(branch)
		}
	}
	return err
}

// RemoveWorktree removes a linked worktree; force discards local
// changes inside it.
func (c *Client) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := c.run(ctx, args...)
	if err != nil {
		var gitErr *errors.GitError
		if errors.As(err, &gitErr) {
			return gitErr.WithWorktree(path)
		}
	}
	return err
}

// ListWorktrees parses `git worktree list --porcelain`.
func (c *Client) ListWorktrees(ctx context.Context) ([]Worktree, error) {
	out, err := c.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktrees(out), nil
}

// PruneWorktrees drops stale worktree registrations.
func (c *Client) PruneWorktrees(ctx context.Context) error {
	_, err := c.run(ctx, "worktree", "prune")
	return err
}

func parseWorktrees(out string) []Worktree {
	var (
		result  []Worktree
		current Worktree
	)
	flush := func() {
		if current.Path != "" {
			result = append(result, current)
		}
		current = Worktree{}
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return result
}

// -----------------------------------------------------------------------------
// Remote Operations
// -----------------------------------------------------------------------------

// Fetch updates remote tracking branches.
func (c *Client) Fetch(ctx context.Context) error {
	_, err := c.runNetwork(ctx, "fetch", "origin")
	return err
}

// Pull fast-forwards the current branch of the given work tree.
func (c *Client) Pull(ctx context.Context, dir string) error {
	_, err := c.runIn(ctx, dir, NetworkTimeout, "pull", "--ff-only")
	return err
}

// Push publishes a branch to origin, setting the upstream.
func (c *Client) Push(ctx context.Context, dir, branch string) error {
	_, err := c.runIn(ctx, dir, NetworkTimeout, "push", "--set-upstream", "origin", branch)
	if err != nil {
		var gitErr *errors.GitError
		if errors.As(err, &gitErr) {
			return gitErr.WithBranch(branch)
		}
	}
	return err
}
