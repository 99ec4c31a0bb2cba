package generate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/antoniostano/scenegen/internal/chat"
)

// MockGenerator provides deterministic local scripts when no model
// endpoint is configured. When given scripted replies it plays them back
// in order, which is how the pipeline tests drive failure sequences.
type MockGenerator struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func NewMockGenerator(replies ...string) *MockGenerator {
	return &MockGenerator{replies: replies}
}

// Calls reports how many times Generate has been invoked.
func (g *MockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *MockGenerator) Generate(ctx context.Context, msgs []Message) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	g.mu.Lock()
	idx := g.calls
	g.calls++
	replies := g.replies
	g.mu.Unlock()

	if len(replies) > 0 {
		if idx >= len(replies) {
			idx = len(replies) - 1
		}
		if strings.TrimSpace(replies[idx]) == "" {
			return "", chat.ErrEmptyResponse
		}
		return replies[idx], nil
	}

	return defaultMockScript(msgs), nil
}

func defaultMockScript(msgs []Message) string {
	concept := "the requested concept"
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser && strings.TrimSpace(msgs[i].Content) != "" {
			concept = strings.TrimSpace(msgs[i].Content)
			break
		}
	}
	if len(concept) > 60 {
		concept = concept[:60]
	}

	return fmt.Sprintf("```python\nfrom manim import *\n\nclass MockScene(Scene):\n    def construct(self):\n        label = Text(%q, font_size=24)\n        self.play(Write(label))\n        self.wait(1)\n```", concept)
}
