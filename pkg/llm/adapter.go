package llm

import (
	"context"

	"github.com/intervox/intervox/pkg/turns"
)

// Generator produces the agent's next reply from the conversation so far.
// Failures carry errorsx.ReasonLLMGenerate; callers supply their own
// fallback text, generation errors are never user-facing.
type Generator interface {
	Name() string
	Reply(ctx context.Context, history []turns.Turn) (string, error)
}

// Evaluator produces a structured (JSON) evaluation of a finished
// transcript. Kept separate from Generator: live replies and after-the-fact
// scoring have different failure policies.
type Evaluator interface {
	Evaluate(ctx context.Context, instructions, transcript string) (string, error)
}
