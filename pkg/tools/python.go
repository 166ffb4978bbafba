package tools

import (
	"context"
	"encoding/json"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/llm"
	"github.com/ekaya-inc/pokedex/pkg/sandbox"
)

// Evaluator runs one snippet in the sandbox.
type Evaluator interface {
	RunPython(ctx context.Context, code string) (*sandbox.EvalResult, error)
}

// PythonTool is run_python.
type PythonTool struct {
	evaluator Evaluator
}

// NewPythonTool creates the run_python handler.
func NewPythonTool(evaluator Evaluator) *PythonTool {
	return &PythonTool{evaluator: evaluator}
}

func (t *PythonTool) Name() string { return RunPythonName }

func (t *PythonTool) Definition() llm.ToolDefinition {
	return llm.NewToolDefinition(RunPythonName,
		"Run a short Python-like snippet (Starlark dialect) for calculations on query results. "+
			"No imports, files or network. Predeclared: math, json, statistics (mean, median, stdev), sum, round. "+
			"Use print() to return output; if nothing is printed the snippet's variables are returned.",
		map[string]llm.ParameterProperty{
			"code": {Type: "string", Description: "Snippet to execute", MinLength: 1},
		},
		[]string{"code"})
}

type pythonArgs struct {
	Code string `json:"code"`
}

func (t *PythonTool) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args pythonArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArguments, "arguments must be an object with a code string", err)
	}
	return t.evaluator.RunPython(ctx, args.Code)
}

// AgentHandlers returns the two tools offered to the model in a chat turn.
func AgentHandlers(runner QueryRunner, evaluator Evaluator) []Handler {
	return []Handler{NewQueryTool(runner), NewPythonTool(evaluator)}
}

// ServerHandlers returns every tool served over MCP.
func ServerHandlers(gw interface {
	QueryRunner
	SchemaInspector
}, evaluator Evaluator) []Handler {
	return []Handler{
		NewQueryTool(gw),
		NewPythonTool(evaluator),
		NewListTablesTool(gw),
		NewDescribeTableTool(gw),
	}
}
