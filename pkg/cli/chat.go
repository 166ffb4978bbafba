package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/agent"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

const chatHelp = `Commands:
  /help           Show this help
  /clear          Forget the conversation so far
  /schema         List mirror tables and columns
  /tools          Toggle printing of tool calls
  /quit, /exit    Leave

Example questions:
  What is Pikachu's base speed?
  Which Pokémon have the highest attack stat?
  What types are super effective against water?
`

// repl handles chat input one line at a time.
type repl struct {
	session   *agent.Session
	inspector tools.SchemaInspector
	out       io.Writer
	showTools bool
	logger    *zap.Logger
}

// handle processes one line and reports whether the user asked to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch strings.ToLower(line) {
	case "/quit", "/exit", "quit", "exit":
		fmt.Fprintln(r.out, "Goodbye!")
		return true
	case "/help":
		fmt.Fprint(r.out, chatHelp)
		return false
	case "/clear":
		r.session.Reset()
		fmt.Fprintln(r.out, "Conversation cleared.")
		return false
	case "/schema":
		if err := printSchema(ctx, r.out, r.inspector); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		return false
	case "/tools":
		r.showTools = !r.showTools
		fmt.Fprintf(r.out, "Tool output %s.\n", map[bool]string{true: "on", false: "off"}[r.showTools])
		return false
	}
	if strings.HasPrefix(line, "/") {
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for commands.\n", line)
		return false
	}

	ans, err := r.session.Ask(ctx, line)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return false
	}
	renderAnswer(r.out, ans, r.showTools)
	if ans.State == agent.StateAborted {
		r.logger.Debug("Question aborted", zap.Error(ans.Err))
	}
	return false
}

func newChatCmd(a *app) *cobra.Command {
	var showTools bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive question session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(db)

			ag, err := a.newAgent(ctx, db)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "pokedex> ",
				HistoryFile:     historyFile(),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("failed to start line editor: %w", err)
			}
			defer closeQuietly(rl)

			r := &repl{
				session:   ag.NewSession(),
				inspector: a.newGateway(db),
				out:       cmd.OutOrStdout(),
				showTools: showTools,
				logger:    a.logger,
			}

			fmt.Fprintf(r.out, "Pokédex %s. Ask anything about Pokémon; /help for commands.\n", a.version)
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if r.handle(ctx, line) {
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&showTools, "show-tools", "t", false, "Print each tool call and its result")
	return cmd
}

// historyFile returns ~/.pokedex_history, or "" when there is no home directory.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pokedex_history")
}
