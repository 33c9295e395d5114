package mock

import (
	"context"
	"sync"

	"github.com/intervox/intervox/pkg/llm"
	"github.com/intervox/intervox/pkg/turns"
)

type LLMConfig struct {
	ReplyText    string
	EvaluateJSON string
	// Err, when set, fails every call.
	Err error
}

// Generator is a canned answer generator that records the histories it was
// asked about.
type Generator struct {
	cfg LLMConfig

	mu        sync.Mutex
	histories [][]turns.Turn
}

func NewGenerator(cfg LLMConfig) *Generator {
	if cfg.ReplyText == "" {
		cfg.ReplyText = "mock reply"
	}
	if cfg.EvaluateJSON == "" {
		cfg.EvaluateJSON = `{"rating": 5, "feedbackText": "mock feedback"}`
	}
	return &Generator{cfg: cfg}
}

func (g *Generator) Name() string { return "mock_llm" }

func (g *Generator) Reply(ctx context.Context, history []turns.Turn) (string, error) {
	g.mu.Lock()
	snapshot := make([]turns.Turn, len(history))
	copy(snapshot, history)
	g.histories = append(g.histories, snapshot)
	g.mu.Unlock()
	if g.cfg.Err != nil {
		return "", g.cfg.Err
	}
	return g.cfg.ReplyText, nil
}

func (g *Generator) Evaluate(ctx context.Context, instructions, transcript string) (string, error) {
	if g.cfg.Err != nil {
		return "", g.cfg.Err
	}
	return g.cfg.EvaluateJSON, nil
}

// Calls reports how many replies were requested.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.histories)
}

// LastHistory returns the history snapshot of the most recent Reply call.
func (g *Generator) LastHistory() []turns.Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.histories) == 0 {
		return nil
	}
	return g.histories[len(g.histories)-1]
}

var (
	_ llm.Generator = (*Generator)(nil)
	_ llm.Evaluator = (*Generator)(nil)
)
