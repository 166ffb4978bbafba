package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/pokedex/pkg/llm"
)

// ErrEmptyQuestion is returned by Ask for blank input.
var ErrEmptyQuestion = errors.New("question is empty")

// Session is one conversation. History lives only in memory and is
// carried across questions until Reset.
type Session struct {
	ID uuid.UUID

	agent   *Agent
	mu      sync.Mutex
	history []llm.Message
}

// NewSession starts an empty conversation.
func (a *Agent) NewSession() *Session {
	return &Session{ID: uuid.New(), agent: a}
}

// Ask answers question with the session's history as context. Failures are
// reported through Answer.State and Answer.Err; an aborted question leaves
// the history as it was before the question was asked.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(append([]llm.Message(nil), s.history...), llm.Message{Role: llm.RoleUser, Content: question})
	ans, history := s.agent.run(ctx, s.ID, history)
	if ans.State == StateDone {
		s.history = history
	}
	return ans, nil
}

// Reset clears the conversation and assigns a new session id.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.ID = uuid.New()
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}
