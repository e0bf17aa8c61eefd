package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Reply is one scripted provider answer.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays a fixed sequence of replies and records every prompt
// it receives. Once the script is exhausted the last reply repeats.
// It is safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	calls   []Prompt
}

// NewScripted creates a provider that answers with replies in order.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Generate implements Provider.
func (s *Scripted) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	if len(s.replies) == 0 {
		return "", errors.New("scripted provider: no replies configured")
	}
	idx := s.next
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	} else {
		s.next++
	}
	r := s.replies[idx]
	return r.Text, r.Err
}

// Calls returns a copy of the prompts received so far.
func (s *Scripted) Calls() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.calls...)
}

// OutputMarker introduces the example output block in every user prompt.
// The Echo provider relies on it.
const OutputMarker = "Respond with JSON shaped like:"

// Echo answers every prompt with the example output embedded in the
// prompt itself. It lets the server run end to end without a model
// (provider "echo").
type Echo struct{}

// Generate implements Provider.
func (Echo) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	idx := strings.LastIndex(p.User, OutputMarker)
	if idx < 0 {
		return "", ErrMalformedOutput
	}
	return strings.TrimSpace(p.User[idx+len(OutputMarker):]), nil
}
