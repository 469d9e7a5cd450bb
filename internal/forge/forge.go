// Package forge wraps the gh CLI for pull request operations. It
// shares the executor abstraction with internal/git so tests can mock
// gh without a network.
//
// Forge state is translated into the internal PR lifecycle through a
// single table (TranslateStatus); nothing else in the system inspects
// raw gh output.
package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/git"
	"github.com/hotter6163/taskctl/internal/types"
)

// Timeout bounds every gh invocation.
const Timeout = 60 * time.Second

// prFields is the field list requested from gh for every PR read.
const prFields = "number,title,url,state,headRefName,baseRefName,isDraft,reviewDecision"

// PRInfo is the slice of gh's JSON output taskctl consumes.
type PRInfo struct {
	Number         int    `json:"number"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	State          string `json:"state"`
	HeadRefName    string `json:"headRefName"`
	BaseRefName    string `json:"baseRefName"`
	IsDraft        bool   `json:"isDraft"`
	ReviewDecision string `json:"reviewDecision"`
}

// Status translates the gh fields into the internal PR lifecycle.
func (p *PRInfo) Status() types.PRStatus {
	return TranslateStatus(p.State, p.IsDraft, p.ReviewDecision)
}

// TranslateStatus maps forge state to the internal lifecycle. Terminal
// states win over everything; draft wins over review decisions; an
// unrecognised combination degrades to draft rather than failing.
func TranslateStatus(state string, isDraft bool, reviewDecision string) types.PRStatus {
	switch strings.ToUpper(state) {
	case "MERGED":
		return types.PRMerged
	case "CLOSED":
		return types.PRClosed
	}
	if isDraft {
		return types.PRDraft
	}
	switch strings.ToUpper(reviewDecision) {
	case "APPROVED":
		return types.PRApproved
	case "CHANGES_REQUESTED":
		return types.PRInReview
	}
	if strings.EqualFold(state, "OPEN") {
		return types.PROpen
	}
	return types.PRDraft
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client runs gh commands against one repository.
type Client struct {
	repoDir  string
	executor git.CommandExecutor
}

// NewClient creates a client for the repository at repoDir.
func NewClient(repoDir string) *Client {
	return &Client{repoDir: repoDir, executor: git.NewCLICommandExecutor()}
}

// NewClientWithExecutor creates a client with a custom executor,
// primarily for tests.
func NewClientWithExecutor(repoDir string, executor git.CommandExecutor) *Client {
	return &Client{repoDir: repoDir, executor: executor}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	stdout, stderr, err := c.executor.Run(ctx, c.repoDir, "gh", args...)
	if err != nil {
		command := "gh " + strings.Join(args, " ")
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.NewTimeoutError(command, Timeout)
		}
		output := strings.TrimSpace(string(stderr))
		if output == "" {
			output = strings.TrimSpace(string(stdout))
		}
		return "", errors.NewForgeError(command, output, err)
	}
	return strings.TrimSpace(string(stdout)), nil
}

// CheckAvailable verifies gh is installed and authenticated.
func (c *Client) CheckAvailable(ctx context.Context) error {
	_, err := c.run(ctx, "auth", "status")
	return err
}

// -----------------------------------------------------------------------------
// Pull Request Operations
// -----------------------------------------------------------------------------

// CreatePROptions carries the fields of a new pull request.
type CreatePROptions struct {
	Title string
	Body  string
	Base  string
	Head  string
	Draft bool
}

// CreatePR opens a pull request and returns its forge-side view.
func (c *Client) CreatePR(ctx context.Context, opts CreatePROptions) (*PRInfo, error) {
	args := []string{"pr", "create",
		"--title", opts.Title,
		"--body", opts.Body,
		"--base", opts.Base,
		"--head", opts.Head,
	}
	if opts.Draft {
		args = append(args, "--draft")
	}
	if _, err := c.run(ctx, args...); err != nil {
		return nil, err
	}
	return c.GetPRByBranch(ctx, opts.Head)
}

// GetPR fetches one pull request by number.
func (c *Client) GetPR(ctx context.Context, number int) (*PRInfo, error) {
	out, err := c.run(ctx, "pr", "view", fmt.Sprintf("%d", number), "--json", prFields)
	if err != nil {
		var forgeErr *errors.ForgeError
		if errors.As(err, &forgeErr) {
			return nil, forgeErr.WithPRNumber(number)
		}
		return nil, err
	}
	return parsePR(out)
}

// GetPRByBranch fetches the pull request whose head is the given branch.
func (c *Client) GetPRByBranch(ctx context.Context, branch string) (*PRInfo, error) {
	out, err := c.run(ctx, "pr", "view", branch, "--json", prFields)
	if err != nil {
		return nil, err
	}
	return parsePR(out)
}

// ListPRs fetches every pull request in the given gh state filter
// ("open", "closed", "merged", or "all").
func (c *Client) ListPRs(ctx context.Context, stateFilter string) ([]*PRInfo, error) {
	if stateFilter == "" {
		stateFilter = "open"
	}
	out, err := c.run(ctx, "pr", "list", "--state", stateFilter, "--json", prFields)
	if err != nil {
		return nil, err
	}

	var prs []*PRInfo
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, errors.NewForgeError("gh pr list", out, err)
	}
	return prs, nil
}

// MergeMethod selects how a pull request's commits land on the base
// branch.
type MergeMethod string

const (
	MergeSquash MergeMethod = "squash"
	MergeRebase MergeMethod = "rebase"
	MergeCommit MergeMethod = "merge"
)

// MergeOptions controls a merge. The zero value squash-merges and keeps
// the head branch.
type MergeOptions struct {
	Method       MergeMethod
	DeleteBranch bool
}

// MergePR merges a pull request.
func (c *Client) MergePR(ctx context.Context, number int, opts MergeOptions) error {
	method := opts.Method
	if method == "" {
		method = MergeSquash
	}
	switch method {
	case MergeSquash, MergeRebase, MergeCommit:
	default:
		return errors.New("unknown merge method: " + string(method))
	}

	args := []string{"pr", "merge", fmt.Sprintf("%d", number), "--" + string(method)}
	if opts.DeleteBranch {
		args = append(args, "--delete-branch")
	}
	_, err := c.run(ctx, args...)
	if err != nil {
		var forgeErr *errors.ForgeError
		if errors.As(err, &forgeErr) {
			return forgeErr.WithPRNumber(number)
		}
	}
	return err
}

// ClosePR closes a pull request without merging.
func (c *Client) ClosePR(ctx context.Context, number int) error {
	_, err := c.run(ctx, "pr", "close", fmt.Sprintf("%d", number))
	if err != nil {
		var forgeErr *errors.ForgeError
		if errors.As(err, &forgeErr) {
			return forgeErr.WithPRNumber(number)
		}
	}
	return err
}

// MarkReady flips a draft pull request to ready for review.
func (c *Client) MarkReady(ctx context.Context, number int) error {
	_, err := c.run(ctx, "pr", "ready", fmt.Sprintf("%d", number))
	if err != nil {
		var forgeErr *errors.ForgeError
		if errors.As(err, &forgeErr) {
			return forgeErr.WithPRNumber(number)
		}
	}
	return err
}

func parsePR(out string) (*PRInfo, error) {
	var pr PRInfo
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return nil, errors.NewForgeError("gh pr view", out, err)
	}
	return &pr, nil
}
