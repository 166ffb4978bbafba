package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/config"
	"github.com/ekaya-inc/pokedex/pkg/database"
	"github.com/ekaya-inc/pokedex/pkg/llm"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

func newTestApp(t *testing.T, mock *llm.MockChatClient) *app {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "openai")
	return &app{
		version: "test",
		dbPath:  filepath.Join(t.TempDir(), "pokedex.db"),
		newClient: func(*config.Config, *zap.Logger) (llm.ChatClient, error) {
			if mock == nil {
				return llm.NewMockChatClient(), nil
			}
			return mock, nil
		},
	}
}

// run executes one command against a's store. newRootCmd rebinds the flag
// fields of a, so the store path is read before the tree is built.
func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	dbPath := a.dbPath
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db", dbPath, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seedMirror writes a tiny completed mirror at a.dbPath.
func seedMirror(t *testing.T, a *app) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, &database.Config{Path: a.dbPath}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		INSERT INTO pokemon (id, name, height, weight) VALUES
			(1, 'bulbasaur', 7, 69),
			(25, 'pikachu', 4, 60);
		INSERT INTO pokemon_stats (pokemon_id, stat_name, base_stat, effort) VALUES
			(1, 'speed', 45, 0),
			(25, 'speed', 90, 2);
		INSERT INTO mirror_runs (id, started_at, finished_at, records) VALUES
			('run-1', '2026-01-01T00:00:00Z', '2026-01-01T00:01:00Z', 2);`)
	require.NoError(t, err)
}

func newFakePokeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v2/pokemon/":
			fmt.Fprintf(w, `{"count":1,"next":null,"results":[{"name":"pikachu","url":"%s/api/v2/pokemon/25/"}]}`, srv.URL)
		case "/api/v2/pokemon/25/":
			fmt.Fprint(w, `{"id":25,"name":"pikachu","height":4,"weight":60,
				"stats":[{"base_stat":90,"effort":2,"stat":{"name":"speed","url":"x"}}]}`)
		default:
			if strings.Count(strings.Trim(r.URL.Path, "/"), "/") == 2 {
				fmt.Fprint(w, `{"count":0,"next":null,"results":[]}`)
				return
			}
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_UsesPerTestStore(t *testing.T) {
	a := newTestApp(t, nil)
	want := a.dbPath

	_, err := run(t, a, "query", "SELECT 1")
	assert.ErrorIs(t, err, apperrors.ErrStoreMissing)
	assert.Equal(t, want, a.dbPath)
	assert.Equal(t, want, a.cfg.Store.Path)
}

func TestRefresh_ThenQuery(t *testing.T) {
	srv := newFakePokeAPI(t)
	t.Setenv("POKEAPI_BASE_URL", srv.URL+"/api/v2")
	a := newTestApp(t, nil)

	out, err := run(t, a, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Mirrored 1 records")

	out, err = run(t, a, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "already populated")

	out, err = run(t, a, "query", "SELECT p.name, s.base_stat FROM pokemon p JOIN pokemon_stats s ON s.pokemon_id = p.id")
	require.NoError(t, err)
	assert.Contains(t, out, "pikachu")
	assert.Contains(t, out, "90")
	assert.Contains(t, out, "(1 rows)")
}

func TestQuery_MissingStore(t *testing.T) {
	a := newTestApp(t, nil)
	_, err := run(t, a, "query", "SELECT 1")
	assert.ErrorIs(t, err, apperrors.ErrStoreMissing)
}

func TestQuery_EmptyStoreIsMissing(t *testing.T) {
	a := newTestApp(t, nil)
	db, err := database.Open(context.Background(), &database.Config{Path: a.dbPath}, zap.NewNop())
	require.NoError(t, err)
	db.Close()

	_, err = run(t, a, "query", "SELECT 1")
	assert.ErrorIs(t, err, apperrors.ErrStoreMissing)
}

func TestQuery_Forbidden(t *testing.T) {
	a := newTestApp(t, nil)
	seedMirror(t, a)

	_, err := run(t, a, "query", "DELETE FROM pokemon")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestQuery_JSON(t *testing.T) {
	a := newTestApp(t, nil)
	seedMirror(t, a)

	out, err := run(t, a, "query", "--json", "SELECT name FROM pokemon ORDER BY id")
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["name"],"rows":[["bulbasaur"],["pikachu"]],"row_count":2,"truncated":false}`, out)
}

func TestSchema(t *testing.T) {
	a := newTestApp(t, nil)
	seedMirror(t, a)

	out, err := run(t, a, "schema", "pokemon")
	require.NoError(t, err)
	assert.Contains(t, out, "weight")
	assert.Contains(t, out, "PK")

	out, err = run(t, a, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "pokemon_stats")
	assert.NotContains(t, out, "mirror_runs")

	_, err = run(t, a, "schema", "pokemons")
	assert.ErrorIs(t, err, apperrors.ErrQueryFailed)
}

func TestAsk(t *testing.T) {
	mock := llm.NewMockChatClient().Script(
		llm.ToolCallResponse("c1", tools.RunQueryName, `{"sql":"SELECT base_stat FROM pokemon_stats WHERE pokemon_id = 25 AND stat_name = 'speed'"}`),
		llm.TextResponse("Pikachu's base speed is 90."),
	)
	a := newTestApp(t, mock)
	seedMirror(t, a)

	out, err := run(t, a, "ask", "--show-tools", "How", "fast", "is", "Pikachu?")
	require.NoError(t, err)

	assert.Contains(t, out, "[1] run_query")
	assert.Contains(t, out, "Pikachu's base speed is 90.")
	assert.Equal(t, "How fast is Pikachu?", mock.Request(0).Messages[0].Content)
}

func TestAsk_AbortedReturnsError(t *testing.T) {
	mock := llm.NewMockChatClient()
	mock.ChatFunc = func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return llm.ToolCallResponse("c", tools.RunQueryName, `{"sql":"SELECT 1"}`), nil
	}
	a := newTestApp(t, mock)
	seedMirror(t, a)
	t.Setenv("AGENT_MAX_ROUNDS", "2")

	out, err := run(t, a, "ask", "loop")
	assert.ErrorIs(t, err, apperrors.ErrAborted)
	assert.Contains(t, out, "could not complete")
	assert.Equal(t, 2, mock.Calls())
}
