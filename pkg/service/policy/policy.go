// Package policy evaluates an optional Rego intake policy against analyze
// input before any expensive stage runs. Operators drop .rego files into a
// directory to reject content the deployment must not process.
package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Gate decides whether an analyze input may enter the pipeline. A nil *Gate
// allows everything.
type Gate struct {
	query *rego.PreparedEvalQuery
}

// New loads all .rego files from policyDir and prepares the data.intake
// query. An empty directory (or empty policyDir) yields a nil Gate.
func New(ctx context.Context, policyDir string) (*Gate, error) {
	if policyDir == "" {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.intake"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	query, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare intake policy")
	}

	return &Gate{query: &query}, nil
}

// NewFromModule prepares a Gate from an inline module, for tests.
func NewFromModule(ctx context.Context, name, module string) (*Gate, error) {
	query, err := rego.New(
		rego.Query("data.intake"),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare intake policy")
	}
	return &Gate{query: &query}, nil
}

// Check evaluates the intake policy against the input text. It returns the
// deny reasons; an empty slice means the input is allowed.
func (g *Gate) Check(ctx context.Context, text string) ([]string, error) {
	if g == nil {
		return nil, nil
	}

	input := map[string]any{"text": text}
	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate intake policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, nil
	}
	denyData, ok := data["deny"]
	if !ok {
		return nil, nil
	}
	items, ok := denyData.([]any)
	if !ok {
		return nil, goerr.New("invalid intake policy result: deny is not an array")
	}

	reasons := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			reasons = append(reasons, s)
		}
	}
	return reasons, nil
}
