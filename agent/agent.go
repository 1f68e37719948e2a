// Package agent runs the memory agent: a tool-calling loop that reads a
// conversation, decides which memory actions to take, applies them one
// at a time, and feeds each outcome back into the next reasoning turn.
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cogents/memu-go/actions"
	"github.com/cogents/memu-go/core"
	"github.com/cogents/memu-go/llm"
	"github.com/cogents/memu-go/recall"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusDone means the model finished with a text turn.
	StatusDone Status = "done"

	// StatusAborted means the iteration budget ran out. Actions applied
	// before exhaustion remain applied; this is a normal outcome, not an
	// error.
	StatusAborted Status = "aborted"

	// StatusCancelled means the context was cancelled between
	// iterations. In-flight actions are never interrupted.
	StatusCancelled Status = "cancelled"
)

// RunResult reports what a run did.
type RunResult struct {
	Status Status

	// Summary is the model's closing text, set when Status is done.
	Summary string

	// Applied lists every successfully applied action, in order.
	Applied []*actions.Result
}

// Config tunes the agent. Zero values get sensible defaults.
type Config struct {
	// ConversationWindow caps how many trailing turns enter the
	// reasoning context. Default: 20.
	ConversationWindow int

	// RecallK caps how many recalled memories enter the reasoning
	// context. Default: 5.
	RecallK int
}

func (c Config) withDefaults() Config {
	if c.ConversationWindow <= 0 {
		c.ConversationWindow = 20
	}
	if c.RecallK <= 0 {
		c.RecallK = 5
	}
	return c
}

// Agent drives the reasoning/acting loop over a fixed action catalog.
type Agent struct {
	completer llm.Completer
	deps      *actions.Deps
	recaller  *recall.Recaller
	cfg       Config
	logger    *zap.Logger
}

// New assembles an agent. The recaller may be nil, in which case runs
// reason over the conversation alone.
func New(completer llm.Completer, deps *actions.Deps, recaller *recall.Recaller, cfg Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		completer: completer,
		deps:      deps,
		recaller:  recaller,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(zap.String("component", "agent")),
	}
}

const systemPromptTemplate = `You are the memory keeper for %s. You read the conversation below and maintain %s's long-term memory with the tools provided.

Rules:
- Store durable facts, not chit-chat. Prefer one focused memory per topic.
- Use category "profile" for stable facts about people, "event" for things that happened, "activity" for tasks and procedures, "general" for everything else.
- For procedures, structure the body with markdown sections: Task Aim, Steps, Alternatives, Notes.
- Link related memories and cluster memories that belong to one theme.
- If a tool reports an error, read it and correct your next call.
- When nothing more needs storing, reply with a short text summary instead of a tool call.`

// Run reads the conversation and applies memory actions until the model
// stops, the iteration budget runs out, or the context is cancelled.
// Actions execute sequentially; each result, success or failure, is fed
// back to the model before it decides again. A stale-revision conflict
// is retried once per action before being reported back.
func (a *Agent) Run(ctx context.Context, conversation []core.Turn, characterName string, maxIterations int) (*RunResult, error) {
	if maxIterations <= 0 {
		maxIterations = 8
	}
	if characterName == "" {
		characterName = "the user"
	}

	system := fmt.Sprintf(systemPromptTemplate, characterName, characterName)
	messages := []llm.Message{{Role: "user"}}

	result := &RunResult{Status: StatusAborted}
	for iter := 0; iter < maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			result.Status = StatusCancelled
			return result, nil
		}

		// Rebuilt every turn so the recalled-memory block reflects
		// actions applied earlier in this same run.
		messages[0].Content = a.buildContext(ctx, conversation)

		resp, err := a.complete(ctx, system, messages)
		if err != nil {
			return nil, fmt.Errorf("reasoning turn %d: %w", iter+1, err)
		}

		if resp.ToolCall == nil {
			result.Status = StatusDone
			result.Summary = resp.Text
			a.logger.Info("run complete",
				zap.Int("iterations", iter+1),
				zap.Int("applied", len(result.Applied)))
			return result, nil
		}

		call := resp.ToolCall
		messages = append(messages, llm.Message{Role: "assistant", ToolCall: call})

		res, actErr := a.execute(ctx, call)
		if actErr != nil {
			a.logger.Warn("action failed",
				zap.String("action", call.Name),
				zap.Error(actErr))
			messages = append(messages, llm.Message{
				Role:       "user",
				ToolResult: &llm.ToolResult{CallID: call.ID, Content: actErr.Error(), IsError: true},
			})
			continue
		}

		result.Applied = append(result.Applied, res)
		messages = append(messages, llm.Message{
			Role:       "user",
			ToolResult: &llm.ToolResult{CallID: call.ID, Content: res.Summary},
		})
	}

	a.logger.Info("run aborted: iteration budget exhausted",
		zap.Int("iterations", maxIterations),
		zap.Int("applied", len(result.Applied)))
	return result, nil
}

// complete calls the model, retrying once when the failure is
// transient.
func (a *Agent) complete(ctx context.Context, system string, messages []llm.Message) (*llm.Response, error) {
	resp, err := a.completer.Complete(ctx, system, messages, actions.Catalog())
	if err != nil && core.Retryable(err) && ctx.Err() == nil {
		a.logger.Warn("completion failed, retrying once", zap.Error(err))
		resp, err = a.completer.Complete(ctx, system, messages, actions.Catalog())
	}
	return resp, err
}

// execute parses and applies one tool call. A revision conflict means
// another writer got in between our read and write; one immediate
// re-apply re-reads the record and usually succeeds.
//
// The action runs on a detached context: cancellation takes effect at
// the top of the run loop, never mid-action, so a multi-step action
// like Delete is never left half-applied.
func (a *Agent) execute(ctx context.Context, call *llm.ToolCall) (*actions.Result, error) {
	act, err := actions.Parse(call.Name, call.Arguments)
	if err != nil {
		return nil, err
	}
	actCtx := context.WithoutCancel(ctx)
	res, err := actions.Apply(actCtx, a.deps, act)
	if core.IsConflict(err) {
		a.logger.Debug("revision conflict, retrying action", zap.String("action", call.Name))
		res, err = actions.Apply(actCtx, a.deps, act)
	}
	return res, err
}

// buildContext renders the trailing conversation window plus any
// recalled memories that look relevant to the latest user turns.
func (a *Agent) buildContext(ctx context.Context, conversation []core.Turn) string {
	window := conversation
	if len(window) > a.cfg.ConversationWindow {
		window = window[len(window)-a.cfg.ConversationWindow:]
	}

	var b strings.Builder
	b.WriteString("Conversation:\n\n")
	b.WriteString(core.RenderConversation(window))

	if excerpts := a.recallFor(ctx, window); len(excerpts) > 0 {
		b.WriteString("\n\nExisting memories that may be related:\n")
		for _, ex := range excerpts {
			fmt.Fprintf(&b, "\n[%s/%s]\n%s\n", ex.Record.Category, ex.Record.ID, ex.Record.Body)
		}
	}
	return b.String()
}

// recallFor queries the recaller with the latest user turn. Recall
// failures degrade to an empty context rather than failing the run.
func (a *Agent) recallFor(ctx context.Context, window []core.Turn) []recall.Excerpt {
	if a.recaller == nil {
		return nil
	}
	var query string
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Role == core.RoleUser {
			query = window[i].Content
			break
		}
	}
	if query == "" {
		return nil
	}
	excerpts, err := a.recaller.Recall(ctx, query, "", a.cfg.RecallK, true)
	if err != nil {
		a.logger.Warn("recall failed, continuing without context", zap.Error(err))
		return nil
	}
	return excerpts
}
