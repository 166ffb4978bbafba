package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/prompts"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

// SystemPrompt builds the system message from the live schema. Schema
// errors are logged and produce a prompt without the schema section.
func SystemPrompt(ctx context.Context, inspector tools.SchemaInspector, logger *zap.Logger) string {
	tableNames, err := inspector.ListTables(ctx)
	if err != nil {
		logger.Warn("Failed to get schema tables for system prompt", zap.Error(err))
		return prompts.BuildSystemPrompt(nil)
	}

	tables := make([]prompts.TableContext, 0, len(tableNames))
	for _, name := range tableNames {
		cols, err := inspector.TableInfo(ctx, name)
		if err != nil {
			logger.Warn("Failed to describe table for system prompt",
				zap.String("table", name),
				zap.Error(err))
			continue
		}
		tc := prompts.TableContext{Name: name}
		for _, c := range cols {
			tc.Columns = append(tc.Columns, prompts.ColumnContext{
				Name:         c.Name,
				DataType:     c.Type,
				IsPrimaryKey: c.PrimaryKey,
			})
		}
		tables = append(tables, tc)
	}
	return prompts.BuildSystemPrompt(tables)
}
