// Package policy evaluates an optional rego policy that turns a
// verification result into a send/review/reject verdict.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// DefaultQuery is the rule evaluated for every output record.
const DefaultQuery = "data.email_verifier.verdict"

// Verdict is the shape a verdict policy must produce.
type Verdict struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// PreparedPolicy holds a compiled policy ready for evaluation
type PreparedPolicy struct {
	query rego.PreparedEvalQuery
}

// PreparePolicy compiles a rego v1 module and query once so that it can be
// evaluated for many inputs.
func PreparePolicy(ctx context.Context, module string, query string) (*PreparedPolicy, error) {
	r := rego.New(
		rego.Query(query),
		rego.Module("verdict.rego", module),
		rego.SetRegoVersion(ast.RegoV1),
	)

	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy: %w", err)
	}

	return &PreparedPolicy{query: pq}, nil
}

// Evaluate runs pp against input and decodes the first expression into T.
func Evaluate[T any](ctx context.Context, pp *PreparedPolicy, input any) (*T, error) {
	rs, err := pp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("policy produced no result")
	}

	bs, err := json.Marshal(rs[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy result: %w", err)
	}

	var out T
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy result: %w", err)
	}

	return &out, nil
}

// Evaluator produces verdicts from a prepared policy.
type Evaluator struct {
	pp *PreparedPolicy
}

// Load reads and compiles the policy file at path.
func Load(ctx context.Context, path string) (*Evaluator, error) {
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return New(ctx, string(module))
}

func New(ctx context.Context, module string) (*Evaluator, error) {
	pp, err := PreparePolicy(ctx, module, DefaultQuery)
	if err != nil {
		return nil, err
	}
	return &Evaluator{pp: pp}, nil
}

// Verdict evaluates input, typically an output record. A policy without
// an action is treated as an error.
func (e *Evaluator) Verdict(ctx context.Context, input any) (*Verdict, error) {
	v, err := Evaluate[Verdict](ctx, e.pp, input)
	if err != nil {
		return nil, err
	}
	if v.Action == "" {
		return nil, fmt.Errorf("policy verdict is missing an action")
	}
	return v, nil
}
