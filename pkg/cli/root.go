// Package cli implements the pokedex commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/agent"
	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/config"
	"github.com/ekaya-inc/pokedex/pkg/database"
	"github.com/ekaya-inc/pokedex/pkg/gateway"
	"github.com/ekaya-inc/pokedex/pkg/llm"
	"github.com/ekaya-inc/pokedex/pkg/logging"
	"github.com/ekaya-inc/pokedex/pkg/mirror"
	"github.com/ekaya-inc/pokedex/pkg/sandbox"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

// app carries flags and the state built from them for one invocation.
type app struct {
	version    string
	configPath string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger

	// newClient builds the model client; tests replace it with a mock.
	newClient func(cfg *config.Config, logger *zap.Logger) (llm.ChatClient, error)
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(&app{version: version, newClient: defaultClient})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pokedex",
		Short:         "Ask questions about Pokémon, answered from a local PokéAPI mirror",
		Long:          "pokedex mirrors PokéAPI into SQLite and answers questions with a tool-calling language model that queries the mirror.",
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: ./pokedex.yaml if present)")
	root.PersistentFlags().StringVarP(&a.dbPath, "db", "d", "", "Mirror path (default: $POKEDEX_DB_PATH or data/pokedex.db)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOG_LEVEL or info)")

	root.AddCommand(
		newRefreshCmd(a),
		newAskCmd(a),
		newChatCmd(a),
		newSchemaCmd(a),
		newQueryCmd(a),
		newMCPCmd(a),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(version)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath, a.version)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Store.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func defaultClient(cfg *config.Config, logger *zap.Logger) (llm.ChatClient, error) {
	return llm.NewChatClient(&llm.Config{
		Provider:       cfg.LLM.Provider,
		Endpoint:       cfg.LLM.BaseURL,
		Model:          cfg.LLM.EffectiveModel(),
		APIKey:         cfg.LLM.APIKey(),
		RequestTimeout: cfg.LLM.RequestTimeout,
	}, logger)
}

// openReadOnly opens the mirror for the query path. A missing file or a
// mirror without a completed refresh is reported as ErrStoreMissing.
func (a *app) openReadOnly(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(ctx, &database.Config{Path: a.cfg.Store.Path, ReadOnly: true}, a.logger)
	if err != nil {
		return nil, err
	}
	last, err := mirror.LastRun(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if last == nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s has no completed refresh", apperrors.ErrStoreMissing, a.cfg.Store.Path)
	}
	return db, nil
}

func (a *app) newGateway(db *database.DB) *gateway.Gateway {
	return gateway.New(db, &gateway.Config{
		RowCap:  a.cfg.Query.RowCap,
		Timeout: a.cfg.Query.Timeout,
	}, a.logger)
}

func (a *app) newEvaluator() *sandbox.Evaluator {
	return sandbox.New(&sandbox.Config{
		Timeout:  a.cfg.Sandbox.Timeout,
		MaxSteps: a.cfg.Sandbox.MaxSteps,
	}, a.logger)
}

// newAgent wires the model client, tools and system prompt over db.
func (a *app) newAgent(ctx context.Context, db *database.DB) (*agent.Agent, error) {
	client, err := a.newClient(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}

	gw := a.newGateway(db)
	registry, err := tools.NewRegistry(a.logger, tools.AgentHandlers(gw, a.newEvaluator())...)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Agent configured",
		zap.String("model", client.GetModel()),
		zap.Int("max_rounds", a.cfg.Agent.MaxRounds))

	temperature := a.cfg.LLM.Temperature
	return agent.New(client, registry, agent.SystemPrompt(ctx, gw, a.logger), &agent.Config{
		MaxRounds:   a.cfg.Agent.MaxRounds,
		Temperature: &temperature,
	}, a.logger), nil
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
