package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/mcp"
	"github.com/ekaya-inc/pokedex/pkg/middleware"
	"github.com/ekaya-inc/pokedex/pkg/mirror"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

func newMCPCmd(a *app) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the mirror's tools over the Model Context Protocol",
		Long: "Serves run_query, run_python, list_tables, describe_table and health to an MCP client. " +
			"Uses stdio by default; --http serves streamable HTTP at /mcp instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(db)

			registry, err := tools.NewRegistry(a.logger, tools.ServerHandlers(a.newGateway(db), a.newEvaluator())...)
			if err != nil {
				return err
			}
			status := func(ctx context.Context) (*mirror.Stats, error) {
				return mirror.LastRun(ctx, db)
			}
			srv := mcp.NewServer("pokedex", a.version, registry, status, a.logger)

			if httpAddr == "" {
				return srv.ServeStdio(ctx, os.Stdin, cmd.OutOrStdout())
			}

			httpServer := &http.Server{
				Addr:              httpAddr,
				Handler:           middleware.MCPRequestLogger(a.logger)(srv.Handler()),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			a.logger.Info("Serving MCP over HTTP", zap.String("addr", httpAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve streamable HTTP on this address (e.g. :8080) instead of stdio")
	return cmd
}
