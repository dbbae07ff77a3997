// Package llmtest provides a scripted llm.Gateway for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/ericksa/contractlens/internal/llm"
)

// ErrExhausted is returned once every scripted reply has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted gateway outcome.
type Reply struct {
	Text string
	Err  error
}

// Stub replays scripted replies in order and records every request.
type Stub struct {
	mu      sync.Mutex
	replies []Reply
	calls   []llm.Request
}

var _ llm.Gateway = (*Stub)(nil)

// New returns a stub that answers with replies in order.
func New(replies ...Reply) *Stub {
	return &Stub{replies: replies}
}

// Texts is shorthand for New with successful text replies.
func Texts(texts ...string) *Stub {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return New(replies...)
}

// Complete pops the next scripted reply.
func (s *Stub) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	if len(s.replies) == 0 {
		return llm.Response{}, ErrExhausted
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	if next.Err != nil {
		return llm.Response{}, next.Err
	}
	return llm.Response{Text: next.Text, Model: req.Model}, nil
}

// Calls returns a copy of the recorded requests.
func (s *Stub) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many requests were made.
func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
