// Package agent runs the bounded tool-calling loop between the hosted model
// and the mirror's tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/llm"
	"github.com/ekaya-inc/pokedex/pkg/logging"
	"github.com/ekaya-inc/pokedex/pkg/retry"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

const (
	DefaultMaxRounds   = 10
	DefaultTemperature = 0.1
)

// State is a step of one answer.
type State string

const (
	StateAwaitingModel State = "awaiting_model"
	StateExecutingTool State = "executing_tool"
	StateDone          State = "done"
	StateAborted       State = "aborted"
)

// Executor dispatches tool calls. *tools.Registry satisfies it.
type Executor interface {
	Definitions() []llm.ToolDefinition
	Execute(ctx context.Context, call llm.ToolCall) tools.Invocation
}

// Answer is the outcome of one question.
type Answer struct {
	Text        string             `json:"text"`
	State       State              `json:"state"`
	Rounds      int                `json:"rounds"`
	Invocations []tools.Invocation `json:"invocations"`
	Duration    time.Duration      `json:"duration"`

	// Err is set when State is StateAborted. Its kind is KindAborted,
	// KindTimeout (a model request ran out of time) or KindTransportFailed.
	Err error `json:"-"`
}

// Config tunes the loop. Zero values use the defaults; a nil Temperature
// uses DefaultTemperature and a non-nil one is sent as-is, zero included.
type Config struct {
	MaxRounds   int
	Temperature *float64
	Retry       *retry.Config
}

// Agent holds what every session shares: the model client, the tools and
// the system prompt.
type Agent struct {
	client       llm.ChatClient
	executor     Executor
	systemPrompt string
	maxRounds    int
	temperature  float64
	retry        *retry.Config
	logger       *zap.Logger
}

// New creates an agent.
func New(client llm.ChatClient, executor Executor, systemPrompt string, cfg *Config, logger *zap.Logger) *Agent {
	a := &Agent{
		client:       client,
		executor:     executor,
		systemPrompt: systemPrompt,
		maxRounds:    DefaultMaxRounds,
		temperature:  DefaultTemperature,
		retry:        retry.ModelConfig(),
		logger:       logger.Named("agent"),
	}
	if cfg != nil {
		if cfg.MaxRounds > 0 {
			a.maxRounds = cfg.MaxRounds
		}
		if cfg.Temperature != nil {
			a.temperature = *cfg.Temperature
		}
		if cfg.Retry != nil {
			a.retry = cfg.Retry
		}
	}
	return a
}

// MaxRounds returns the model round-trip budget per question.
func (a *Agent) MaxRounds() int {
	return a.maxRounds
}

// Ask answers one question in a fresh session.
func (a *Agent) Ask(ctx context.Context, question string) (*Answer, error) {
	return a.NewSession().Ask(ctx, question)
}

// run drives one question to Done or Aborted, appending to history.
// The returned history is the new conversation; on abort the caller
// discards it.
func (a *Agent) run(ctx context.Context, sessionID uuid.UUID, history []llm.Message) (*Answer, []llm.Message) {
	start := time.Now()
	ans := &Answer{State: StateAwaitingModel, Invocations: []tools.Invocation{}}
	logger := a.logger.With(zap.String("session_id", sessionID.String()))

	finish := func(state State, text string, err error) (*Answer, []llm.Message) {
		ans.State = state
		ans.Text = text
		ans.Err = err
		ans.Duration = time.Since(start)
		logger.Info("Answer finished",
			zap.String("state", string(state)),
			zap.Int("rounds", ans.Rounds),
			zap.Int("tool_calls", len(ans.Invocations)),
			zap.Duration("elapsed", ans.Duration))
		return ans, history
	}

	for ans.Rounds < a.maxRounds {
		if ctx.Err() != nil {
			return finish(StateAborted, "The request was cancelled.",
				apperrors.Wrap(apperrors.KindAborted, "cancelled", ctx.Err()))
		}

		ans.State = StateAwaitingModel
		ans.Rounds++
		resp, err := a.chat(ctx, history)
		if err != nil {
			logger.Warn("Model request failed",
				zap.Int("round", ans.Rounds),
				zap.String("error", logging.SanitizeError(err)))
			switch apperrors.KindOf(err) {
			case apperrors.KindAborted:
				return finish(StateAborted, "The request was cancelled.", err)
			case apperrors.KindTimeout:
				return finish(StateAborted, "Sorry, the language model did not answer in time. Please try again.", err)
			}
			return finish(StateAborted,
				"Sorry, I could not reach the language model: "+apperrors.MessageOf(err), err)
		}

		if !resp.HasToolCalls() {
			history = append(history, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			return finish(StateDone, resp.Content, nil)
		}

		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = "call_" + uuid.NewString()
			}
		}
		history = append(history, resp.AssistantMessage())

		ans.State = StateExecutingTool
		for _, call := range resp.ToolCalls {
			inv := a.executor.Execute(ctx, call)
			ans.Invocations = append(ans.Invocations, inv)
			history = append(history, llm.Message{
				Role:       llm.RoleTool,
				Content:    inv.Result,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				IsError:    inv.Failed(),
			})
			logger.Debug("Tool executed",
				zap.Int("round", ans.Rounds),
				zap.String("tool", inv.Name),
				zap.String("error_kind", string(inv.ErrorKind)))

			if inv.Failed() && !inv.ErrorKind.Recoverable() {
				return finish(StateAborted, "The request was cancelled.",
					apperrors.New(inv.ErrorKind, "tool "+inv.Name+" was interrupted"))
			}
		}
	}

	return finish(StateAborted,
		fmt.Sprintf("Sorry, I could not complete an answer within %d steps. Try a narrower question.", a.maxRounds),
		apperrors.Newf(apperrors.KindAborted, "round budget of %d exhausted", a.maxRounds))
}

// chat performs one model round-trip, retrying transient transport errors.
func (a *Agent) chat(ctx context.Context, history []llm.Message) (*llm.ChatResponse, error) {
	req := &llm.ChatRequest{
		SystemPrompt: a.systemPrompt,
		Messages:     history,
		Tools:        a.executor.Definitions(),
		Temperature:  a.temperature,
	}

	cfg := *a.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.logger.Info("Retrying model request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error", logging.SanitizeError(err)))
	}

	var resp *llm.ChatResponse
	err := retry.DoIfRetryable(ctx, &cfg, func() error {
		r, err := a.client.Chat(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.KindAborted, "cancelled", err)
		}
		if llm.IsTimeout(err) {
			return nil, apperrors.Wrap(apperrors.KindTimeout, "model request timed out", err)
		}
		return nil, apperrors.Wrap(apperrors.KindTransportFailed, llmMessage(err), err)
	}
	if resp == nil {
		return nil, apperrors.New(apperrors.KindTransportFailed, "model returned no response")
	}
	return resp, nil
}

// llmMessage prefers the classified message of an *llm.Error.
func llmMessage(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return llmErr.Message
	}
	return logging.SanitizeError(err)
}
