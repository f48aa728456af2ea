// Package shell implements the interactive question loop.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/agent"
	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/postgres"
)

// Shell reads questions from the terminal, runs them through the agent
// and renders the answers.
type Shell struct {
	agent  *agent.Agent
	schema agent.SchemaFetcher
	log    *slog.Logger
	in     io.Reader
}

func New(a *agent.Agent, schema agent.SchemaFetcher, log *slog.Logger) *Shell {
	return &Shell{
		agent:  a,
		schema: schema,
		log:    log,
		in:     os.Stdin,
	}
}

// Run loops until the user quits or ctx is cancelled. Input lines are
// either commands (schema, help, exit) or natural-language questions.
func (s *Shell) Run(ctx context.Context) error {
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("nlsql")).
		WithPadding(1).
		Println("Ask questions about your database in plain language.\nType \"schema\" to inspect tables, \"exit\" to quit.")
	pterm.Println()

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pterm.Print(pterm.FgGreen.Sprint("? "))
		if !scanner.Scan() {
			pterm.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := s.handle(ctx, line); quit {
			return nil
		}
	}
}

// handle dispatches a single input line. It returns true when the user
// asked to leave the shell.
func (s *Shell) handle(ctx context.Context, line string) bool {
	switch strings.ToLower(line) {
	case "exit", "quit", "q":
		pterm.Println("Bye.")
		return true
	case "help":
		printHelp()
		return false
	case "schema":
		s.printSchema(ctx)
		return false
	}
	_ = s.ask(ctx, line)
	return false
}

// AskOnce answers a single question and renders the result, for the
// non-interactive CLI path. The returned error is non-nil when no
// answer was produced.
func (s *Shell) AskOnce(ctx context.Context, question string) error {
	return s.ask(ctx, question)
}

func (s *Shell) ask(ctx context.Context, question string) error {
	spinner, _ := pterm.DefaultSpinner.Start("Thinking...")
	res, err := s.agent.Ask(ctx, question)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		pterm.Error.Println(err.Error())
		return err
	}
	reportRetries(res)
	if !res.Succeeded() {
		pterm.Error.Println(res.Err.Error())
		return res.Err
	}

	pterm.Println(pterm.FgCyan.Sprint(res.SQL))
	pterm.Println()
	renderResult(res.Result)
	return nil
}

func (s *Shell) printSchema(ctx context.Context) {
	schema, err := s.schema.FetchSchema(ctx)
	if err != nil {
		pterm.Error.Println("fetching schema: " + err.Error())
		return
	}
	pterm.Println(schema)
}

// reportRetries surfaces the attempts that failed before the final one,
// so the user sees what the model was corrected on.
func reportRetries(res *agent.SessionResult) {
	for _, att := range res.Attempts {
		if !att.Failed() {
			continue
		}
		pterm.Warning.Printfln("attempt %d failed: %s", att.Number, att.FailureDetail)
	}
}

func renderResult(result *postgres.QueryResult) {
	if result == nil {
		return
	}
	if result.Count == 0 {
		pterm.Info.Println("No rows returned.")
		return
	}

	data := resultTable(result)
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Error.Println("rendering table: " + err.Error())
		return
	}
	pterm.Println()
	pterm.Info.Printfln("%d row(s)", result.Count)
}

// resultTable flattens a query result into pterm table data, keeping the
// column order the query produced.
func resultTable(result *postgres.QueryResult) pterm.TableData {
	data := pterm.TableData{result.Columns}
	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = formatValue(row[col])
		}
		data = append(data, cells)
	}
	return data
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func printHelp() {
	pterm.Println("Commands:")
	pterm.Println("  schema         show the database schema")
	pterm.Println("  help           show this help")
	pterm.Println("  exit, quit, q  leave the shell")
	pterm.Println("Anything else is treated as a question about your data.")
}
