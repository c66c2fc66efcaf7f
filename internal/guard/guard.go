// Package guard gates execute calls behind an optional Rego policy.
package guard

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Input is what the policy sees for one execute call.
type Input struct {
	UserID      string         `json:"user_id"`
	Integration string         `json:"integration"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params"`
}

// Guard evaluates data.hublink.allow against each execute call. A nil Guard
// (no policy configured) allows everything.
type Guard struct {
	query rego.PreparedEvalQuery
}

// Load compiles the policy module at path. Returns (nil, nil) when path is
// empty so callers can keep a plain nil check on the hot path.
func Load(ctx context.Context, path string) (*Guard, error) {
	if path == "" {
		return nil, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("guard: read policy: %w", err)
	}
	q, err := rego.New(
		rego.Query("data.hublink.allow"),
		rego.Module(path, string(src)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("guard: compile policy: %w", err)
	}
	return &Guard{query: q}, nil
}

// Allow evaluates the policy. A missing or non-true result denies, so a
// typo'd rule name fails closed rather than open.
func (g *Guard) Allow(ctx context.Context, in Input) (bool, error) {
	if g == nil {
		return true, nil
	}
	rs, err := g.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	return allowed, nil
}
