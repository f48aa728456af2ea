package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/bondanherumurti-transfez/nl-to-sql-agent/internal/config"
	"github.com/bondanherumurti-transfez/nl-to-sql-agent/internal/shell"
	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/agent"
	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/postgres"
	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/prompts"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const schemaCacheTTL = 15 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may be set another way.
	_ = godotenv.Load()

	var verbose bool

	root := &cobra.Command{
		Use:           "nlsql",
		Short:         "Ask a Postgres database questions in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), verbose)
			if err != nil {
				return err
			}
			defer app.Close()

			err = shell.New(app.agent, app.schema, app.log).Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), verbose)
			if err != nil {
				return err
			}
			defer app.Close()

			question := strings.Join(args, " ")
			return shell.New(app.agent, app.schema, app.log).AskOnce(cmd.Context(), question)
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the introspected database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), verbose)
			if err != nil {
				return err
			}
			defer app.Close()

			schema, err := app.schema.FetchSchema(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(schema)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nlsql %s (commit %s, built %s)\n", version, commit, date)
		},
	}

	root.AddCommand(askCmd, schemaCmd, versionCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return root.ExecuteContext(ctx)
}

// app holds the wired components behind every subcommand.
type app struct {
	log    *slog.Logger
	pool   *pgxpool.Pool
	agent  *agent.Agent
	schema *postgres.SchemaFetcher
}

func newApp(ctx context.Context, verbose bool) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log := newLogger(verbose)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	log.Debug("connected to postgres")

	var knowledge *prompts.Knowledge
	if cfg.KnowledgeFile != "" {
		knowledge, err = prompts.LoadKnowledge(cfg.KnowledgeFile)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("loading knowledge file: %w", err)
		}
		log.Debug("loaded prompt knowledge", "path", cfg.KnowledgeFile)
	}
	builder, err := prompts.NewBuilder(knowledge)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building prompts: %w", err)
	}

	llm := agent.NewAnthropicClient(agent.AnthropicClientConfig{
		APIKey:    cfg.AnthropicKey,
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: int64(cfg.MaxTokens),
		Logger:    log,
	})

	executor := postgres.NewExecutor(pool, cfg.QueryTimeout, log)
	schemaFetcher := postgres.NewSchemaFetcher(pool, schemaCacheTTL, log)

	a, err := agent.New(agent.Config{
		Logger:       log,
		LLM:          llm,
		Querier:      executor,
		Schema:       schemaFetcher,
		Prompts:      builder,
		MaxRetries:   cfg.MaxRetries,
		DefaultLimit: cfg.DefaultLimit,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &app{log: log, pool: pool, agent: a, schema: schemaFetcher}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
