package tools

import (
	"context"
	"encoding/json"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/database"
	"github.com/ekaya-inc/pokedex/pkg/gateway"
	"github.com/ekaya-inc/pokedex/pkg/llm"
)

// Tool names.
const (
	RunQueryName      = "run_query"
	RunPythonName     = "run_python"
	ListTablesName    = "list_tables"
	DescribeTableName = "describe_table"
)

// QueryRunner executes one read-only statement against the mirror.
type QueryRunner interface {
	RunQuery(ctx context.Context, query string) (*gateway.QueryResult, error)
}

// SchemaInspector lists mirror tables and their columns.
type SchemaInspector interface {
	ListTables(ctx context.Context) ([]string, error)
	TableInfo(ctx context.Context, table string) ([]database.ColumnInfo, error)
}

// QueryTool is run_query.
type QueryTool struct {
	runner QueryRunner
}

// NewQueryTool creates the run_query handler.
func NewQueryTool(runner QueryRunner) *QueryTool {
	return &QueryTool{runner: runner}
}

func (t *QueryTool) Name() string { return RunQueryName }

func (t *QueryTool) Definition() llm.ToolDefinition {
	return llm.NewToolDefinition(RunQueryName,
		"Execute one read-only SQLite SELECT against the Pokémon database. "+
			"Returns columns, rows (at most 500), row_count and truncated.",
		map[string]llm.ParameterProperty{
			"sql": {Type: "string", Description: "A single SELECT statement", MinLength: 1},
		},
		[]string{"sql"})
}

type queryArgs struct {
	SQL string `json:"sql"`
}

func (t *QueryTool) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args queryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArguments, "arguments must be an object with a sql string", err)
	}
	return t.runner.RunQuery(ctx, args.SQL)
}

// ListTablesTool is list_tables.
type ListTablesTool struct {
	inspector SchemaInspector
}

// NewListTablesTool creates the list_tables handler.
func NewListTablesTool(inspector SchemaInspector) *ListTablesTool {
	return &ListTablesTool{inspector: inspector}
}

func (t *ListTablesTool) Name() string { return ListTablesName }

func (t *ListTablesTool) Definition() llm.ToolDefinition {
	return llm.NewToolDefinition(ListTablesName,
		"List the tables in the Pokémon database.", nil, nil)
}

func (t *ListTablesTool) Invoke(ctx context.Context, _ json.RawMessage) (any, error) {
	tables, err := t.inspector.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tables": tables}, nil
}

// DescribeTableTool is describe_table.
type DescribeTableTool struct {
	inspector SchemaInspector
}

// NewDescribeTableTool creates the describe_table handler.
func NewDescribeTableTool(inspector SchemaInspector) *DescribeTableTool {
	return &DescribeTableTool{inspector: inspector}
}

func (t *DescribeTableTool) Name() string { return DescribeTableName }

func (t *DescribeTableTool) Definition() llm.ToolDefinition {
	return llm.NewToolDefinition(DescribeTableName,
		"Show the columns of one table: name, type and whether it is part of the primary key.",
		map[string]llm.ParameterProperty{
			"table": {Type: "string", Description: "Table name, e.g. pokemon_stats", MinLength: 1},
		},
		[]string{"table"})
}

type describeArgs struct {
	Table string `json:"table"`
}

func (t *DescribeTableTool) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args describeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArguments, "arguments must be an object with a table string", err)
	}
	columns, err := t.inspector.TableInfo(ctx, args.Table)
	if err != nil {
		return nil, err
	}
	return map[string]any{"table": args.Table, "columns": columns}, nil
}
