// Command pgpipelinedemo drives a pgpipeline.Conn from the command line:
// issue one or more statements pipelined, force their results, and print
// what came back. It exists to exercise the adapter end-to-end against a
// real Postgres server, the way a teacher cmd/ entrypoint exercises its
// own generators against a real project.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shipq/pgpipeline/cli"
	"github.com/shipq/pgpipeline/pgpipeline"
	"github.com/shipq/pgpipeline/pgpipeline/pglog"
	"github.com/shipq/pgpipeline/pgpipeline/pgpipelineconfig"
	"github.com/shipq/pgpipeline/pgpipeline/pgtypes"
)

const usage = `pgpipelinedemo - exercise the pipelined Postgres adapter

Usage:
  pgpipelinedemo <command> [arguments]

Commands:
  query <sql>            Run a single statement immediately and print its result
  pipeline <sql> [sql...] Issue every statement pipelined, then force and print each
  reset                   Connect, run reset!, and report success

Options:
  --config <path>  Path to a pgpipeline.ini file (default: ./pgpipeline.ini)
  --env <env>      Logging environment: development (default) or production
  -h, --help       Show this help message
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	configPath := "pgpipeline.ini"
	env := "development"

	var remaining []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "error: --config requires a path argument")
				return 1
			}
			configPath = args[i+1]
			i++
		case "--env":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "error: --env requires a value")
				return 1
			}
			env = args[i+1]
			i++
		default:
			remaining = args[i:]
			i = len(args)
		}
	}

	if len(remaining) == 0 {
		fmt.Print(usage)
		return 0
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]

	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
		return 0

	case "query":
		if len(cmdArgs) != 1 {
			fmt.Fprintln(os.Stderr, "error: 'query' takes exactly one SQL argument")
			return 1
		}
		return runQuery(configPath, env, cmdArgs[0])

	case "pipeline":
		if len(cmdArgs) == 0 {
			fmt.Fprintln(os.Stderr, "error: 'pipeline' takes one or more SQL arguments")
			return 1
		}
		return runPipeline(configPath, env, cmdArgs)

	case "reset":
		return runReset(configPath, env)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		return 1
	}
}

func connect(ctx context.Context, configPath, env string) (*pgpipeline.Conn, error) {
	cfg, err := pgpipelineconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	opts := cfg.ToOptions()
	opts.TypeRegistry = pgtypes.Default()
	opts.Logger = pglog.For(env)

	conn, err := pgpipeline.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return conn, nil
}

func runQuery(configPath, env, sql string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := connect(ctx, configPath, env)
	if err != nil {
		cli.Warnf("%v", err)
		return 1
	}
	defer func() { _ = conn.Disconnect(ctx) }()

	result, err := conn.Execute(ctx, sql)
	if err != nil {
		cli.Warnf("query failed: %v", err)
		return 1
	}
	printResult(result)
	return 0
}

func runPipeline(configPath, env string, statements []string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := connect(ctx, configPath, env)
	if err != nil {
		cli.Warnf("%v", err)
		return 1
	}
	defer func() { _ = conn.Disconnect(ctx) }()

	handles := make([]*pgpipeline.Deferred, 0, len(statements))
	for _, sql := range statements {
		h, err := conn.ExecQuery(ctx, sql, nil, false, nil)
		if err != nil {
			cli.Warnf("issue %q: %v", sql, err)
			return 1
		}
		handles = append(handles, h)
	}

	status := 0
	for i, h := range handles {
		result, err := h.Force()
		if err != nil {
			cli.Warnf("statement %d (%q) failed: %v", i, statements[i], err)
			status = 1
			continue
		}
		cli.Infof("-- %s", statements[i])
		printResult(result)
	}
	return status
}

func runReset(configPath, env string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := connect(ctx, configPath, env)
	if err != nil {
		cli.Warnf("%v", err)
		return 1
	}
	defer func() { _ = conn.Disconnect(ctx) }()

	if err := conn.Reset(ctx); err != nil {
		cli.Warnf("reset failed: %v", err)
		return 1
	}
	cli.Success("connection reset")
	return 0
}

func printResult(result pgpipeline.Result) {
	switch result.Kind() {
	case pgpipeline.KindRowSet:
		cols := result.Columns()
		header := ""
		for i, col := range cols {
			if i > 0 {
				header += " | "
			}
			header += col.Name
		}
		cli.Info(header)
		for _, row := range result.Rows() {
			fmt.Println(row)
		}
		cli.Infof("(%d rows)", result.Len())
	case pgpipeline.KindAffectedCount:
		cli.Infof("(%d rows affected)", result.RowsAffected())
	case pgpipeline.KindRawArray:
		cli.Infof("%v", result.Items())
	}
}
