// Package planner turns a change request into a task DAG. The LLM is
// asked for a JSON decomposition, the response is validated and
// levelled, and the whole result is persisted in one transaction: the
// plan enters planning before the call and lands in ready on success or
// back in draft on any failure, so a crashed run never leaves a
// half-planned plan behind.
package planner

import (
	"context"
	"math"
	"net"
	"os"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/store"
	"github.com/hotter6163/taskctl/internal/types"
)

const (
	defaultModel      = "claude-sonnet-4-5"
	defaultMaxRetries = 3
	initialBackoff    = 1 * time.Second

	// CallTimeout bounds one full decomposition call, retries included,
	// unless Options.Timeout overrides it.
	CallTimeout = 180 * time.Second
)

// Options configures the Anthropic-backed planner. Zero values fall
// back to the package defaults.
type Options struct {
	// APIKey authenticates the API client. The ANTHROPIC_API_KEY
	// environment variable takes precedence.
	APIKey string
	// Model selects the decomposition model.
	Model string
	// MaxRetries is the retry budget for transient call failures.
	MaxRetries int
	// Timeout bounds one full decomposition call, retries included.
	Timeout time.Duration
}

// Completer produces a model response for a prompt. The production
// implementation calls the Anthropic API; tests substitute a stub.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Planner generates and persists task decompositions.
type Planner struct {
	completer Completer
	store     *store.Store
	template  *template.Template
	timeout   time.Duration
}

// New creates a planner backed by the Anthropic API. The
// ANTHROPIC_API_KEY environment variable takes precedence over the
// configured key; with neither set, construction fails.
func New(st *store.Store, opts Options) (*Planner, error) {
	apiKey := opts.APIKey
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, errors.NewPlannerError(errors.PlannerCall,
			"no API key: set ANTHROPIC_API_KEY or configure planner.api_key", nil)
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	p, err := NewWithCompleter(st, &anthropicCompleter{
		client:     client,
		model:      anthropic.Model(model),
		maxRetries: retries,
	})
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		p.timeout = opts.Timeout
	}
	return p, nil
}

// NewWithCompleter creates a planner with a custom completer,
// primarily for tests.
func NewWithCompleter(st *store.Store, completer Completer) (*Planner, error) {
	tmpl, err := template.New("decompose").Parse(decomposePromptTemplate)
	if err != nil {
		return nil, errors.NewPlannerError(errors.PlannerCall, "parse prompt template", err)
	}
	return &Planner{completer: completer, store: st, template: tmpl, timeout: CallTimeout}, nil
}

// Generate decomposes a draft plan into tasks, optionally informed by
// the given prompt context. The plan moves draft -> planning -> ready;
// any failure after entering planning restores draft and deletes
// nothing.
func (p *Planner) Generate(ctx context.Context, planID string, pctx PromptContext) ([]*types.Task, error) {
	plan, err := p.store.FindPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	if err := p.store.UpdatePlanStatus(ctx, plan.ID, types.PlanPlanning); err != nil {
		return nil, err
	}

	tasks, edges, err := p.decompose(ctx, plan, pctx)
	if err == nil {
		err = p.store.CreateTasks(ctx, tasks, edges)
	}
	if err != nil {
		// Best-effort restore; the decomposition error is the one that
		// matters to the caller.
		_ = p.store.UpdatePlanStatus(ctx, plan.ID, types.PlanDraft)
		return nil, err
	}

	if err := p.store.UpdatePlanStatus(ctx, plan.ID, types.PlanReady); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (p *Planner) decompose(ctx context.Context, plan *types.Plan, pctx PromptContext) ([]*types.Task, []*types.TaskDependency, error) {
	prompt, err := p.renderPrompt(plan, pctx)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	response, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, nil, wrapContextErr(err, p.timeout)
	}

	return ParseResponse(plan.ID, response)
}

// -----------------------------------------------------------------------------
// Anthropic Completer
// -----------------------------------------------------------------------------

type anthropicCompleter struct {
	client     anthropic.Client
	model      anthropic.Model
	maxRetries int
}

func (a *anthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", errors.NewPlannerError(errors.PlannerCall, "response has no content blocks", nil)
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", errors.NewPlannerError(errors.PlannerCall,
					"response is not a text block: "+string(content.Type), nil)
			}
			return content.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", errors.NewPlannerError(errors.PlannerCall, "model call failed", err)
		}
	}

	return "", errors.NewPlannerError(errors.PlannerCall, "model call failed after retries", lastErr)
}

// wrapContextErr translates context expiry into the error taxonomy;
// anything else passes through untouched.
func wrapContextErr(err error, timeout time.Duration) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeoutError("planner decomposition", timeout)
	case errors.Is(err, context.Canceled):
		return errors.Wrap(errors.ErrCanceled, "planner decomposition")
	}
	return err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
