package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/database"
	"github.com/ekaya-inc/pokedex/pkg/mirror"
	"github.com/ekaya-inc/pokedex/pkg/pokeapi"
)

func newRefreshCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Build or rebuild the local PokéAPI mirror",
		Long: "Fetches every catalog resource from PokéAPI into the local SQLite mirror. " +
			"An existing mirror is left alone unless --force is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := database.Open(ctx, &database.Config{Path: a.cfg.Store.Path}, a.logger)
			if err != nil {
				return err
			}
			defer closeQuietly(db)

			client := pokeapi.NewClient(&pokeapi.Config{
				BaseURL:  a.cfg.PokeAPI.BaseURL,
				Timeout:  a.cfg.PokeAPI.Timeout,
				PageSize: a.cfg.PokeAPI.PageSize,
			}, a.logger)

			builder, err := mirror.NewBuilder(db, client, nil, a.logger)
			if err != nil {
				return err
			}

			a.logger.Info("Refreshing mirror",
				zap.String("path", db.Path()),
				zap.String("source", client.BaseURL()),
				zap.Bool("force", force))

			stats, err := builder.Refresh(ctx, force)
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if stats.Skipped {
				fmt.Fprintf(out, "Mirror at %s is already populated; use --force to rebuild.\n", db.Path())
				return nil
			}
			fmt.Fprintf(out, "Mirrored %d records and %d association rows from %d categories in %s.\n",
				stats.Records, stats.Associations, stats.Categories, stats.Duration.Round(1e6))
			if len(stats.Failures) > 0 {
				fmt.Fprintf(out, "%d resources could not be fetched:\n", len(stats.Failures))
				for _, f := range stats.Failures {
					fmt.Fprintf(out, "  %s %s: %s\n", f.Category, f.Name, f.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Empty the mirror and reload everything")
	return cmd
}
