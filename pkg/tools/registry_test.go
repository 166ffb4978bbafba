package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/database"
	"github.com/ekaya-inc/pokedex/pkg/gateway"
	"github.com/ekaya-inc/pokedex/pkg/llm"
	"github.com/ekaya-inc/pokedex/pkg/sandbox"
)

type fakeGateway struct {
	queries []string
	result  *gateway.QueryResult
	err     error
}

func (f *fakeGateway) RunQuery(_ context.Context, query string) (*gateway.QueryResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeGateway) ListTables(context.Context) ([]string, error) {
	return []string{"pokemon", "pokemon_stats"}, nil
}

func (f *fakeGateway) TableInfo(_ context.Context, table string) ([]database.ColumnInfo, error) {
	if table != "pokemon" {
		return nil, apperrors.New(apperrors.KindQueryFailed, "no such table: "+table)
	}
	return []database.ColumnInfo{{Name: "id", Type: "INTEGER", PrimaryKey: true}, {Name: "name", Type: "TEXT"}}, nil
}

type fakeEvaluator struct {
	codes []string
	err   error
	panic any
}

func (f *fakeEvaluator) RunPython(_ context.Context, code string) (*sandbox.EvalResult, error) {
	f.codes = append(f.codes, code)
	if f.panic != nil {
		panic(f.panic)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &sandbox.EvalResult{Stdout: "42\n"}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeGateway, *fakeEvaluator) {
	t.Helper()
	gw := &fakeGateway{result: &gateway.QueryResult{
		Columns:  []string{"base_stat"},
		Rows:     [][]any{{int64(90)}},
		RowCount: 1,
	}}
	ev := &fakeEvaluator{}
	reg, err := NewRegistry(zap.NewNop(), ServerHandlers(gw, ev)...)
	require.NoError(t, err)
	return reg, gw, ev
}

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call_1", Type: "function", Function: llm.ToolCallFunc{Name: name, Arguments: args}}
}

func decodeError(t *testing.T, result string) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(result), &resp))
	require.True(t, resp.Error, "expected an error result, got %s", result)
	return resp
}

func TestRegistry_Definitions(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	assert.Equal(t, []string{RunQueryName, RunPythonName, ListTablesName, DescribeTableName}, reg.Names())
	defs := reg.Definitions()
	require.Len(t, defs, 4)
	assert.Equal(t, []string{"sql"}, defs[0].Parameters["required"])
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(zap.NewNop(), NewQueryTool(&fakeGateway{}), NewQueryTool(&fakeGateway{}))
	assert.Error(t, err)
}

func TestRegistry_ExecuteQuery(t *testing.T) {
	reg, gw, _ := newTestRegistry(t)

	inv := reg.Execute(context.Background(), call(RunQueryName, `{"sql":"SELECT base_stat FROM pokemon_stats"}`))

	assert.False(t, inv.Failed())
	assert.Equal(t, "call_1", inv.ID)
	assert.Equal(t, []string{"SELECT base_stat FROM pokemon_stats"}, gw.queries)
	assert.JSONEq(t, `{"columns":["base_stat"],"rows":[[90]],"row_count":1,"truncated":false}`, inv.Result)
}

func TestRegistry_ExecutePython(t *testing.T) {
	reg, _, ev := newTestRegistry(t)

	inv := reg.Execute(context.Background(), call(RunPythonName, `{"code":"print(6*7)"}`))

	assert.False(t, inv.Failed())
	assert.Equal(t, []string{"print(6*7)"}, ev.codes)
	assert.JSONEq(t, `{"stdout":"42\n"}`, inv.Result)
}

func TestRegistry_UnknownToolFailsClosed(t *testing.T) {
	reg, gw, ev := newTestRegistry(t)

	inv := reg.Execute(context.Background(), call("shell", `{"cmd":"ls"}`))

	assert.Equal(t, apperrors.KindUnknownTool, inv.ErrorKind)
	resp := decodeError(t, inv.Result)
	assert.Equal(t, "unknown_tool", resp.Code)
	assert.Contains(t, resp.Message, `"shell"`)
	assert.Empty(t, gw.queries)
	assert.Empty(t, ev.codes)

	_, err := reg.Lookup("shell")
	assert.ErrorIs(t, err, apperrors.ErrUnknownTool)
}

func TestRegistry_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args string
	}{
		{"not json", RunQueryName, `SELECT 1`},
		{"missing required", RunQueryName, `{}`},
		{"empty arguments", RunPythonName, ``},
		{"wrong type", RunQueryName, `{"sql": 1}`},
		{"empty string", RunPythonName, `{"code": ""}`},
		{"unexpected property", RunQueryName, `{"sql":"SELECT 1","limit":5}`},
		{"array", DescribeTableName, `["pokemon"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, gw, ev := newTestRegistry(t)
			inv := reg.Execute(context.Background(), call(tt.tool, tt.args))

			if inv.ErrorKind != apperrors.KindInvalidArguments {
				t.Errorf("ErrorKind = %q, want %q (result %s)", inv.ErrorKind, apperrors.KindInvalidArguments, inv.Result)
			}
			decodeError(t, inv.Result)
			assert.Empty(t, gw.queries, "handler must not run")
			assert.Empty(t, ev.codes, "handler must not run")
		})
	}
}

func TestRegistry_HandlerErrorsBecomeResults(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"forbidden", apperrors.New(apperrors.KindForbidden, "only SELECT statements are permitted"), apperrors.KindForbidden},
		{"query failed", apperrors.New(apperrors.KindQueryFailed, "no such column: spd"), apperrors.KindQueryFailed},
		{"timeout", apperrors.New(apperrors.KindTimeout, "query exceeded 10s"), apperrors.KindTimeout},
		{"unclassified", errors.New("boom"), apperrors.KindEvalFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, gw, _ := newTestRegistry(t)
			gw.err = tt.err

			inv := reg.Execute(context.Background(), call(RunQueryName, `{"sql":"DROP TABLE pokemon"}`))

			assert.Equal(t, tt.want, inv.ErrorKind)
			resp := decodeError(t, inv.Result)
			assert.Equal(t, string(tt.want), resp.Code)
			assert.Equal(t, apperrors.MessageOf(tt.err), resp.Message)
		})
	}
}

func TestRegistry_SchemaTools(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	inv := reg.Execute(ctx, call(ListTablesName, `{}`))
	require.False(t, inv.Failed())
	assert.JSONEq(t, `{"tables":["pokemon","pokemon_stats"]}`, inv.Result)

	inv = reg.Execute(ctx, call(DescribeTableName, `{"table":"pokemon"}`))
	require.False(t, inv.Failed())
	assert.Contains(t, inv.Result, `"primary_key":true`)

	inv = reg.Execute(ctx, call(DescribeTableName, `{"table":"pokemons"}`))
	assert.Equal(t, apperrors.KindQueryFailed, inv.ErrorKind)
}

func TestRegistry_HandlerPanicBecomesEvalFailed(t *testing.T) {
	reg, _, ev := newTestRegistry(t)
	ev.panic = "walker hit an unknown node"

	inv := reg.Execute(context.Background(), call(RunPythonName, `{"code":"while True:\n    pass"}`))
	require.True(t, inv.Failed())
	assert.Equal(t, apperrors.KindEvalFailed, inv.ErrorKind)
	assert.Contains(t, inv.Result, "walker hit an unknown node")

	ev.panic = nil
	inv = reg.Execute(context.Background(), call(RunPythonName, `{"code":"print(42)"}`))
	assert.False(t, inv.Failed(), "registry keeps working after a panic")
}

func TestNewErrorResult(t *testing.T) {
	assert.JSONEq(t,
		`{"error":true,"code":"forbidden","message":"only SELECT statements are permitted"}`,
		NewErrorResult(apperrors.KindForbidden, "only SELECT statements are permitted"))
	assert.JSONEq(t,
		`{"error":true,"code":"query_failed","message":"m","details":{"table":"x"}}`,
		NewErrorResultWithDetails(apperrors.KindQueryFailed, "m", map[string]string{"table": "x"}))
}
